package summaries

import (
	"strings"
	"testing"
	"time"

	"github.com/pondside-labs/loom/pkg/types"
)

func TestStampHeader_DayPeriod(t *testing.T) {
	s := &types.Summary{
		PeriodStart: time.Date(2026, time.January, 5, 9, 0, 0, 0, locale),
		PeriodEnd:   time.Date(2026, time.January, 5, 17, 0, 0, 0, locale),
		Text:        "worked on the proxy",
	}
	stampHeader(s)

	want := "## This part is a summary of the events of Monday Jan 5 2026"
	if !strings.HasPrefix(s.Text, want) {
		t.Errorf("unexpected day header, got %q", s.Text)
	}
	if !strings.HasSuffix(s.Text, "worked on the proxy") {
		t.Errorf("original summary text should survive, got %q", s.Text)
	}
}

func TestStampHeader_NightPeriod(t *testing.T) {
	s := &types.Summary{
		PeriodStart: time.Date(2026, time.January, 5, 23, 0, 0, 0, locale),
		PeriodEnd:   time.Date(2026, time.January, 6, 5, 0, 0, 0, locale),
		Text:        "late-night debugging",
	}
	stampHeader(s)

	want := "## This part is a summary of the events of Monday night Jan 5-6 2026"
	if !strings.HasPrefix(s.Text, want) {
		t.Errorf("unexpected night header, got %q", s.Text)
	}
}

func TestIsNightPeriod_Boundaries(t *testing.T) {
	cases := []struct {
		hour int
		want bool
	}{
		{0, true},
		{5, true},
		{6, false},
		{21, false},
		{22, true},
		{23, true},
	}
	for _, tc := range cases {
		start := time.Date(2026, time.January, 5, tc.hour, 0, 0, 0, locale)
		if got := isNightPeriod(start); got != tc.want {
			t.Errorf("hour %d: got %v, want %v", tc.hour, got, tc.want)
		}
	}
}
