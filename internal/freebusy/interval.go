// Package freebusy computes the free windows left in a day once known busy
// intervals are subtracted, and aggregates per-date results into the final
// response shape.
package freebusy

import (
	"sort"
	"strings"
	"time"
)

// BusyInterval is one calendar event inside a single civil day, already
// normalized to the request's timezone. All-day events act as location/context
// markers only; they never subtract from free time.
type BusyInterval struct {
	Start    time.Time
	End      time.Time
	Title    string
	Location string
	AllDay   bool
}

// FreeInterval is one open span inside the bounding window of a single date.
type FreeInterval struct {
	Start time.Time
	End   time.Time
}

// Options tunes a single free-interval computation.
type Options struct {
	// Location, when set, gates the date: free time is only reported when an
	// all-day marker whose title or location contains this string exists.
	Location string
	// TravelMargin shrinks every free interval on both ends; intervals that
	// collapse to zero or negative length are dropped.
	TravelMargin time.Duration
}

// ComputeFree returns the ordered free intervals inside [windowStart,
// windowEnd) once the busy intervals are subtracted. The second result is
// false when a location filter is active and no all-day marker on this date
// matches it, meaning the date is excluded from the response entirely.
func ComputeFree(windowStart, windowEnd time.Time, busy []BusyInterval, opts Options) ([]FreeInterval, bool) {
	timed := make([]BusyInterval, 0, len(busy))
	locationMatched := false
	for _, b := range busy {
		if b.AllDay {
			if opts.Location != "" && markerMatches(b, opts.Location) {
				locationMatched = true
			}
			// All-day entries gate, they never obstruct.
			continue
		}
		timed = append(timed, b)
	}
	if opts.Location != "" && !locationMatched {
		return nil, false
	}

	clipped := make([]BusyInterval, 0, len(timed))
	for _, b := range timed {
		if !b.End.After(windowStart) || !windowEnd.After(b.Start) {
			continue
		}
		start := b.Start
		if start.Before(windowStart) {
			start = windowStart
		}
		end := b.End
		if end.After(windowEnd) {
			end = windowEnd
		}
		clipped = append(clipped, BusyInterval{Start: start, End: end})
	}
	sort.Slice(clipped, func(i, j int) bool {
		return clipped[i].Start.Before(clipped[j].Start)
	})

	free := make([]FreeInterval, 0, len(clipped)+1)
	cursor := windowStart
	for _, b := range clipped {
		if cursor.Before(b.Start) {
			free = append(free, FreeInterval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if cursor.Before(windowEnd) {
		free = append(free, FreeInterval{Start: cursor, End: windowEnd})
	}

	if opts.TravelMargin > 0 {
		buffered := free[:0]
		for _, f := range free {
			start := f.Start.Add(opts.TravelMargin)
			end := f.End.Add(-opts.TravelMargin)
			if start.Before(end) {
				buffered = append(buffered, FreeInterval{Start: start, End: end})
			}
		}
		free = buffered
	}
	return free, true
}

func markerMatches(b BusyInterval, location string) bool {
	return strings.Contains(b.Title, location) || strings.Contains(b.Location, location)
}
