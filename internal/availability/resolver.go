package availability

import (
	"sort"
	"time"

	"github.com/hackgods/therapy-booking/internal/interval"
	"github.com/hackgods/therapy-booking/internal/sessiontype"
)

// ResolveSlots computes the bookable slots of one calendar date. Only the
// civil fields (year, month, day) of date are used; they are interpreted in
// the provider's location.
//
// Candidate starts step by the slot interval from the start of every
// availability window (recurring and override ranges alike). A candidate is
// dropped when either its slot-interval body or its full session body
// overlaps a blocked range.
func ResolveSlots(rules Rules, session sessiontype.SessionType, date time.Time) []Slot {
	loc := rules.Settings.location()
	step := rules.Settings.slotInterval()
	length := session.Duration()
	if length <= 0 {
		return nil
	}

	windows := windowsFor(rules, date, loc)
	if len(windows) == 0 {
		return nil
	}

	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	reach := interval.TimeRange{Start: dayStart, End: time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(length)}
	blocked := interval.Intersecting(rules.Blocked, reach)

	seen := make(map[int64]struct{})
	var slots []Slot
	for _, w := range windows {
		for cur := w.Start; cur.Before(w.End); cur = cur.Add(step) {
			body := interval.FromDuration(cur, length)
			if rules.Settings.EnforceRangeEnd && body.End.After(w.End) {
				break
			}
			if interval.Excluded(interval.FromDuration(cur, step), blocked) || interval.Excluded(body, blocked) {
				continue
			}
			key := cur.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			slots = append(slots, Slot{Start: body.Start, End: body.End})
		}
	}

	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots
}

// windowsFor merges the recurring ranges of the date's weekday with the
// override ranges of that exact date, sorted by start. Empty or inverted
// ranges are ignored.
func windowsFor(rules Rules, date time.Time, loc *time.Location) []interval.TimeRange {
	y, m, d := date.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, loc)
	dayEnd := time.Date(y, m, d+1, 0, 0, 0, 0, loc)
	weekday := dayStart.Weekday()

	var out []interval.TimeRange
	for _, rule := range rules.Recurring {
		if rule.Weekday != weekday {
			continue
		}
		for _, r := range rule.Ranges {
			tr := interval.TimeRange{Start: r.Start.on(y, m, d, loc), End: r.End.on(y, m, d, loc)}
			if tr.Valid() {
				out = append(out, tr)
			}
		}
	}

	for _, o := range rules.Overrides {
		oy, om, od := o.Date.Date()
		if oy != y || om != m || od != d {
			continue
		}
		for _, r := range o.Ranges {
			tr := interval.TimeRange{Start: r.Start.In(loc), End: r.End.In(loc)}
			if tr.Start.Before(dayStart) {
				tr.Start = dayStart
			}
			if tr.End.After(dayEnd) {
				tr.End = dayEnd
			}
			if tr.Valid() {
				out = append(out, tr)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
