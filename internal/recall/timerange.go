// Package recall answers questions about past episodes and observations.
package recall

import (
	"strings"
	"time"
)

// TimeRange is an inclusive UTC window with a human label.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Label string    `json:"label"`
}

// Contains reports whether t falls inside the range, ends included.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// ParseTimeRange reads a time reference out of a query. Phrases are
// checked in a fixed order; anything unrecognized means the last 7 days.
func ParseTimeRange(query string, now time.Time) TimeRange {
	now = now.UTC()
	q := strings.ToLower(query)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	switch {
	case strings.Contains(q, "last week"), strings.Contains(q, "past week"):
		return TimeRange{Start: now.Add(-7 * day), End: now, Label: "the last 7 days"}
	case strings.Contains(q, "yesterday"):
		start := midnight.Add(-day)
		return TimeRange{Start: start, End: midnight.Add(-time.Nanosecond), Label: "yesterday"}
	case strings.Contains(q, "last month"), strings.Contains(q, "past month"):
		return TimeRange{Start: now.Add(-30 * day), End: now, Label: "the last 30 days"}
	case strings.Contains(q, "last 3 days"), strings.Contains(q, "past 3 days"):
		return TimeRange{Start: now.Add(-3 * day), End: now, Label: "the last 3 days"}
	case strings.Contains(q, "today"):
		return TimeRange{Start: midnight, End: midnight.Add(day - time.Nanosecond), Label: "today"}
	default:
		return TimeRange{Start: now.Add(-7 * day), End: now, Label: "the last 7 days (default range)"}
	}
}
