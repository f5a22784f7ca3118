package metadata

import (
	"testing"
	"time"

	"github.com/pondside-labs/loom/pkg/types"
)

func TestExtract_AlphaCanary_PassthroughPrompt(t *testing.T) {
	body := &types.RequestBody{
		Messages: []types.Message{
			{Role: "user", Content: `{"canary":"ALPHA_METADATA_UlVCQkVSRFVDSw","prompt":"hello world","memories":[],"session_id":"sess-1"}`},
		},
	}

	env := Extract(body)
	if env == nil {
		t.Fatal("expected metadata to be found")
	}
	if env.Prompt != "hello world" || env.SessionID != "sess-1" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if len(env.Memories) != 0 {
		t.Errorf("expected no memories, got %+v", env.Memories)
	}
	if len(body.Messages) != 1 {
		t.Fatalf("expected the message to survive with rewritten content, got %+v", body.Messages)
	}
	if body.Messages[0].Content != "hello world" {
		t.Errorf("expected block text to become exactly the prompt, got %q", body.Messages[0].Content)
	}
}

func TestExtract_AlphaCanary_ConcatenatesOneMemory(t *testing.T) {
	restore := fixTimeNow(t, time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC))
	defer restore()

	createdAt := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC).Format(time.RFC3339)
	body := &types.RequestBody{
		Messages: []types.Message{
			{Role: "user", Content: `{"canary":"ALPHA_METADATA_UlVCQkVSRFVDSw","prompt":"hello world","memories":[` +
				`{"id":42,"created_at":"` + createdAt + `","content":"remember to check the pond"}]}`},
		},
	}

	env := Extract(body)
	if env == nil {
		t.Fatal("expected metadata to be found")
	}
	if len(env.Memories) != 1 || env.Memories[0].ID != 42 {
		t.Fatalf("unexpected memories: %+v", env.Memories)
	}

	want := "hello world\n\nMemory #42 (today at 3:00 PM):\nremember to check the pond"
	got, _ := body.Messages[0].Content.(string)
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtract_DeliveratorCanary_RequiresAntiSpoofPrefix(t *testing.T) {
	textWithoutPrefix := `some preamble {"canary":"EAVESDROP_METADATA_BLOCK_UlVCQkVSRFVDSw","prompt":"x"} trailer`
	body := &types.RequestBody{
		Messages: []types.Message{{Role: "user", Content: textWithoutPrefix}},
	}
	if env := Extract(body); env != nil {
		t.Fatalf("expected no match without anti-spoof prefix, got %+v", env)
	}

	textWithPrefix := "UserPromptSubmit hook additional context: " +
		`{"canary":"EAVESDROP_METADATA_BLOCK_UlVCQkVSRFVDSw","prompt":"y","trace_id":"t1","sent_at":"2026-07-31T12:00:00Z"}`
	body2 := &types.RequestBody{
		Messages: []types.Message{{Role: "user", Content: textWithPrefix}},
	}
	env := Extract(body2)
	if env == nil {
		t.Fatal("expected deliverator match with anti-spoof prefix present")
	}
	if env.Prompt != "y" || env.TraceID != "t1" {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if body2.Messages[0].Content != "[Sent 2026-07-31T12:00:00Z]" {
		t.Errorf("expected sent-at stamp, got %q", body2.Messages[0].Content)
	}
}

func TestExtract_DeliveratorCanary_NoSentAtRemovesBlock(t *testing.T) {
	text := "UserPromptSubmit hook additional context: " +
		`{"canary":"EAVESDROP_METADATA_BLOCK_UlVCQkVSRFVDSw","prompt":"y"}`
	body := &types.RequestBody{
		Messages: []types.Message{{Role: "user", Content: text}},
	}
	env := Extract(body)
	if env == nil {
		t.Fatal("expected a match")
	}
	if len(body.Messages) != 0 {
		t.Errorf("expected the message to be dropped entirely, got %+v", body.Messages)
	}
}

func TestExtract_LastMatchWinsButEarlierBlocksAreStillCleaned(t *testing.T) {
	body := &types.RequestBody{
		Messages: []types.Message{
			{Role: "user", Content: `{"canary":"ALPHA_METADATA_UlVCQkVSRFVDSw","prompt":"first"}`},
			{Role: "assistant", Content: "ok"},
			{Role: "user", Content: `{"canary":"ALPHA_METADATA_UlVCQkVSRFVDSw","prompt":"second"}`},
		},
	}

	env := Extract(body)
	if env == nil || env.Prompt != "second" {
		t.Fatalf("expected last match to win, got %+v", env)
	}
	if body.Messages[0].Content != "first" {
		t.Errorf("expected the earlier match to still be cleaned to its own prompt, got %q", body.Messages[0].Content)
	}
	if body.Messages[2].Content != "second" {
		t.Errorf("expected the last match cleaned to its own prompt, got %q", body.Messages[2].Content)
	}
}

func TestExtract_NoMatchReturnsNil(t *testing.T) {
	body := &types.RequestBody{
		Messages: []types.Message{{Role: "user", Content: "just a normal message"}},
	}
	if env := Extract(body); env != nil {
		t.Fatalf("expected nil, got %+v", env)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	cases := []struct {
		t    time.Time
		want string
	}{
		{now, "today at 3:00 PM"},
		{now.AddDate(0, 0, -1), "yesterday at 3:00 PM"},
		{now.AddDate(0, 0, -3), "3 days ago"},
		{now.AddDate(0, 0, -14), "2 weeks ago"},
		{now.AddDate(0, -3, 0), now.AddDate(0, -3, 0).Format("Mon Jan 2 2006")},
	}
	for _, tc := range cases {
		if got := formatRelativeTime(tc.t, now); got != tc.want {
			t.Errorf("formatRelativeTime(%v) = %q, want %q", tc.t, got, tc.want)
		}
	}
}

func TestFormatMemoryBlock_WithAndWithoutScore(t *testing.T) {
	now := time.Date(2026, 7, 31, 15, 0, 0, 0, time.UTC)
	m := types.Memory{ID: 42, Content: "remember to check the pond", CreatedAt: now}
	want := "Memory #42 (today at 3:00 PM):\nremember to check the pond"
	if got := formatMemoryBlock(m, now); got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	score := 0.87
	m.Score = &score
	want = "Memory #42 (today at 3:00 PM, score 0.87):\nremember to check the pond"
	if got := formatMemoryBlock(m, now); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

// fixTimeNow overrides the package-level timeNow clock for the duration of
// a test, returning a func to restore it.
func fixTimeNow(t *testing.T, at time.Time) func() {
	t.Helper()
	prev := timeNow
	timeNow = func() time.Time { return at }
	return func() { timeNow = prev }
}
