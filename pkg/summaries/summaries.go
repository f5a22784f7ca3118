// Package summaries fetches the two most recent period summaries from the
// relational store, used to assemble the PAST section of an assembled
// prompt.
package summaries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pondside-labs/loom/pkg/types"
)

// locale is the fixed timezone period-summary headers are rendered in,
// matching original_source's pendulum.now("America/Los_Angeles") call.
var locale = mustLoadLocation("America/Los_Angeles")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Fetcher reads summaries from Postgres.
type Fetcher struct {
	DB *sql.DB
}

// Open opens a *sql.DB against the pq driver using dsn, matching the
// standard database/sql + lib/pq idiom: import registers the driver,
// sql.Open merely validates the DSN and defers the real connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("summaries: open: %w", err)
	}
	return db, nil
}

// FetchLatestTwo returns the two most recent period summaries, newest
// first. Either or both may be nil if fewer than two rows exist. A query
// failure degrades to (nil, nil) — the caller treats store unavailability
// as field-level absence, not a request failure.
func (f *Fetcher) FetchLatestTwo(ctx context.Context) (newer, older *types.Summary) {
	if f == nil || f.DB == nil {
		return nil, nil
	}
	rows, err := f.DB.QueryContext(ctx, `
		SELECT period_start, period_end, summary
		FROM cortex.summaries
		ORDER BY period_start DESC
		LIMIT 2
	`)
	if err != nil {
		return nil, nil
	}
	defer rows.Close()

	var results []types.Summary
	for rows.Next() {
		var s types.Summary
		if err := rows.Scan(&s.PeriodStart, &s.PeriodEnd, &s.Text); err != nil {
			continue
		}
		results = append(results, s)
	}

	if len(results) > 0 {
		newer = &results[0]
		stampHeader(newer)
	}
	if len(results) > 1 {
		older = &results[1]
		stampHeader(older)
	}
	return newer, older
}

// isNightPeriod reports whether a period's start-hour falls in [22,24) ∪
// [0,6), the half-open window spec.md designates as an overnight period.
func isNightPeriod(start time.Time) bool {
	h := start.Hour()
	return h >= 22 || h < 6
}

// stampHeader prepends the locale-rendered "## This part is a summary of
// the events of ..." header to a summary's text, in the day or night
// form depending on its period_start hour.
func stampHeader(s *types.Summary) {
	start := s.PeriodStart.In(locale)
	end := s.PeriodEnd.In(locale)

	var header string
	if isNightPeriod(start) {
		header = fmt.Sprintf("## This part is a summary of the events of %s night %s %d-%d %d",
			start.Format("Monday"), start.Format("Jan"), start.Day(), end.Day(), start.Year())
	} else {
		header = "## This part is a summary of the events of " + start.Format("Monday Jan 2 2006")
	}

	s.Text = header + "\n\n" + s.Text
}
