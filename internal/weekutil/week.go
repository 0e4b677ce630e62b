// Package weekutil is the single source of truth for week boundaries.
// Every component that needs to know which week a reflection belongs to
// (scheduler, handler, storage keys) goes through these functions so the
// week numbering can never drift between them.
package weekutil

import (
	"fmt"
	"time"
)

// Week identifies one Monday-start ISO week.
type Week struct {
	WeekNumber int       `json:"weekNumber"`
	Year       int       `json:"year"` // ISO week-numbering year, not calendar year
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

// ISOWeekOf returns the ISO week containing t. Start is Monday 00:00:00 and
// End is Sunday 23:59:59.999999999 in t's location.
func ISOWeekOf(t time.Time) Week {
	year, week := t.ISOWeek()

	// Walk back to Monday of t's week.
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()).
		AddDate(0, 0, -(weekday - 1))
	end := start.AddDate(0, 0, 7).Add(-time.Nanosecond)

	return Week{
		WeekNumber: week,
		Year:       year,
		Start:      start,
		End:        end,
	}
}

// LastCompletedWeek returns the most recently finished week relative to now.
// Reflections summarize a finished week, so the scheduler targets the week
// before the one containing now.
func LastCompletedWeek(now time.Time) Week {
	return ISOWeekOf(ISOWeekOf(now).Start.AddDate(0, 0, -1))
}

// Key returns the storage key for the week, e.g. "2026-W36". Used for the
// operation dedup index and as the weekKey field on operation input.
func (w Week) Key() string {
	return fmt.Sprintf("%04d-W%02d", w.Year, w.WeekNumber)
}

// Contains reports whether t falls inside the week.
func (w Week) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
