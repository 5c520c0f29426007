// Package slot derives bookable appointment start times from an availability
// window and a service duration.
package slot

import (
	"errors"
	"iter"
	"time"
)

// ErrInvalidDuration is returned for a non-positive slot length.
var ErrInvalidDuration = errors.New("slot duration must be positive")

// Generate yields start, start+d, start+2d, ... for every slot that fits
// entirely inside [start, end). A trailing segment shorter than d is dropped.
// The sequence is lazy and may be ranged over any number of times.
func Generate(start, end time.Time, d time.Duration) (iter.Seq[time.Time], error) {
	if d <= 0 {
		return nil, ErrInvalidDuration
	}

	return func(yield func(time.Time) bool) {
		for t := start; !t.Add(d).After(end); t = t.Add(d) {
			if !yield(t) {
				return
			}
		}
	}, nil
}
