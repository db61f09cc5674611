package availability

import (
	"fmt"
	"time"

	"github.com/hackgods/therapy-booking/internal/interval"
)

// DefaultSlotInterval is used when a provider has no interval configured.
const DefaultSlotInterval = 15 * time.Minute

// WallClock is a local time of day. Hour 24 with Minute 0 denotes midnight at
// the end of the day.
type WallClock struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseWallClock parses "HH:MM".
func ParseWallClock(s string) (WallClock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		if s == "24:00" {
			return WallClock{Hour: 24}, nil
		}
		return WallClock{}, fmt.Errorf("parse wall clock %q: %w", s, err)
	}
	return WallClock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// MinutesOfDay converts to minutes after midnight.
func (w WallClock) MinutesOfDay() int {
	return w.Hour*60 + w.Minute
}

// WallClockFromMinutes is the inverse of MinutesOfDay.
func WallClockFromMinutes(m int) WallClock {
	return WallClock{Hour: m / 60, Minute: m % 60}
}

func (w WallClock) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

// on places the wall clock on the given civil date in loc.
func (w WallClock) on(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, w.Hour, w.Minute, 0, 0, loc)
}

// DailyRange is a wall-clock window within one day.
type DailyRange struct {
	Start WallClock `json:"start"`
	End   WallClock `json:"end"`
}

// RecurringRule is the weekly availability for one weekday. Ranges on the
// same day are expected not to overlap.
type RecurringRule struct {
	Weekday time.Weekday `json:"weekday"`
	Ranges  []DailyRange `json:"ranges"`
}

// DateOverride adds availability on one calendar date. Date is matched on its
// civil fields; the ranges are absolute instants.
type DateOverride struct {
	Date   time.Time             `json:"date"`
	Ranges []interval.TimeRange `json:"ranges"`
}

// Settings controls slot generation for a provider.
type Settings struct {
	SlotIntervalMinutes int
	Location            *time.Location
	// EnforceRangeEnd drops slots whose session would run past the end of the
	// availability window they were generated from.
	EnforceRangeEnd bool
}

func (s Settings) slotInterval() time.Duration {
	if s.SlotIntervalMinutes <= 0 {
		return DefaultSlotInterval
	}
	return time.Duration(s.SlotIntervalMinutes) * time.Minute
}

func (s Settings) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

// Rules is the complete calendar configuration of one provider.
type Rules struct {
	Settings  Settings
	Recurring []RecurringRule
	Overrides []DateOverride
	Blocked   []interval.TimeRange
}

// Slot is a bookable session interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
