package slot

import (
	"iter"
	"time"

	"cloud.google.com/go/civil"
)

// Filter keeps the candidates that are not booked. When date is the civil date
// of now (in now's location) only candidates strictly after now survive.
// Matching is exact: a candidate is dropped only if a booked time equals it.
func Filter(candidates iter.Seq[time.Time], booked []time.Time, date civil.Date, now time.Time) iter.Seq[time.Time] {
	taken := make(map[int64]struct{}, len(booked))
	for _, b := range booked {
		taken[b.UnixNano()] = struct{}{}
	}
	today := date == civil.DateOf(now)

	return func(yield func(time.Time) bool) {
		for t := range candidates {
			if _, ok := taken[t.UnixNano()]; ok {
				continue
			}
			if today && !t.After(now) {
				continue
			}
			if !yield(t) {
				return
			}
		}
	}
}

// Empty reports whether seq yields nothing, consuming at most one element.
func Empty(seq iter.Seq[time.Time]) bool {
	for range seq {
		return false
	}
	return true
}
