package aggregate

import (
	"strings"
	"time"
)

// Range is a resolved chart window: an inclusive start, an exclusive end and
// the bucket width implied by the requested label.
type Range struct {
	Label string
	Start time.Time
	End   time.Time
	Width time.Duration
}

// ParseRange maps a chart range label to its lookback window and bucket
// width. Unrecognized labels behave like "day".
//
//	hour  -> last 1 hour, 1-minute buckets
//	day   -> since start of the current UTC day, 1-minute buckets
//	week  -> last 7 days, 1-hour buckets
//	month -> last 30 days, 1-day buckets
func ParseRange(label string, now time.Time) Range {
	now = now.UTC()
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "hour":
		return Range{Label: "hour", Start: now.Add(-time.Hour), End: now, Width: time.Minute}
	case "week":
		return Range{Label: "week", Start: now.AddDate(0, 0, -7), End: now, Width: time.Hour}
	case "month":
		return Range{Label: "month", Start: now.AddDate(0, 0, -30), End: now, Width: 24 * time.Hour}
	default:
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return Range{Label: "day", Start: start, End: now, Width: time.Minute}
	}
}

// Bucket truncates a timestamp to the start of its bucket.
func (r Range) Bucket(ts time.Time) time.Time {
	return ts.UTC().Truncate(r.Width)
}

// Contains reports whether ts falls inside the window.
func (r Range) Contains(ts time.Time) bool {
	ts = ts.UTC()
	return !ts.Before(r.Start) && ts.Before(r.End.Add(time.Nanosecond))
}
