// Package interval holds the time range primitives used by slot resolution.
// All comparisons operate on absolute instants; callers resolve wall-clock
// times to a location before calling in.
package interval

import (
	"errors"
	"time"
)

var ErrInvalidRange = errors.New("range start must be before end")

// TimeRange is the instant range [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// New builds a range and validates that start < end.
func New(start, end time.Time) (TimeRange, error) {
	r := TimeRange{Start: start, End: end}
	if !r.Valid() {
		return TimeRange{}, ErrInvalidRange
	}
	return r, nil
}

// FromDuration returns [start, start+d).
func FromDuration(start time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: start, End: start.Add(d)}
}

func (r TimeRange) Valid() bool {
	return r.Start.Before(r.End)
}

func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// StartsWithin reports whether a begins inside b.
func StartsWithin(a, b TimeRange) bool {
	return b.Contains(a.Start)
}

// EndsWithin reports whether a finishes inside b. The end of a is exclusive,
// so an a that ends exactly at b.Start does not count.
func EndsWithin(a, b TimeRange) bool {
	return a.End.After(b.Start) && !a.End.After(b.End)
}

// Spans reports whether a covers all of b.
func Spans(a, b TimeRange) bool {
	return !a.Start.After(b.Start) && !a.End.Before(b.End)
}

// Overlaps combines the starts-within, ends-within and spans checks. Ranges
// that only touch at an endpoint do not overlap.
func Overlaps(a, b TimeRange) bool {
	if !a.Valid() || !b.Valid() {
		return false
	}
	return StartsWithin(a, b) || EndsWithin(a, b) || Spans(a, b)
}

// Excluded reports whether the candidate must be dropped because it overlaps
// any of the blocked ranges.
func Excluded(candidate TimeRange, blocked []TimeRange) bool {
	for _, b := range blocked {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}

// Intersecting returns the ranges in rs that overlap window, preserving order.
func Intersecting(rs []TimeRange, window TimeRange) []TimeRange {
	var out []TimeRange
	for _, r := range rs {
		if Overlaps(r, window) {
			out = append(out, r)
		}
	}
	return out
}
