package weekutil

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.UTC)
}

func TestISOWeekOf(t *testing.T) {
	tests := []struct {
		name       string
		in         time.Time
		weekNumber int
		year       int
		start      time.Time
	}{
		{
			name:       "midweek wednesday",
			in:         date(2026, time.August, 26, 15), // Wednesday
			weekNumber: 35,
			year:       2026,
			start:      date(2026, time.August, 24, 0), // Monday
		},
		{
			name:       "monday maps to its own week",
			in:         date(2026, time.August, 24, 0),
			weekNumber: 35,
			year:       2026,
			start:      date(2026, time.August, 24, 0),
		},
		{
			name:       "sunday belongs to the week started the previous monday",
			in:         date(2026, time.August, 30, 23),
			weekNumber: 35,
			year:       2026,
			start:      date(2026, time.August, 24, 0),
		},
		{
			name:       "early january belongs to previous iso year",
			in:         date(2027, time.January, 1, 12), // Friday of week 53/2026
			weekNumber: 53,
			year:       2026,
			start:      date(2026, time.December, 28, 0),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ISOWeekOf(tt.in)
			if w.WeekNumber != tt.weekNumber || w.Year != tt.year {
				t.Errorf("Expected week %d/%d, got %d/%d", tt.weekNumber, tt.year, w.WeekNumber, w.Year)
			}
			if !w.Start.Equal(tt.start) {
				t.Errorf("Expected start %s, got %s", tt.start, w.Start)
			}
			if w.Start.Weekday() != time.Monday {
				t.Errorf("Expected Monday start, got %s", w.Start.Weekday())
			}
			if !w.Contains(tt.in) {
				t.Errorf("Week %s should contain %s", w.Key(), tt.in)
			}
		})
	}
}

func TestWeekEndIsSunday(t *testing.T) {
	w := ISOWeekOf(date(2026, time.August, 26, 9))
	if w.End.Weekday() != time.Sunday {
		t.Errorf("Expected Sunday end, got %s", w.End.Weekday())
	}
	if w.Contains(w.End.Add(time.Nanosecond)) {
		t.Error("Week should not contain the instant after End")
	}
}

func TestLastCompletedWeek(t *testing.T) {
	// Wednesday of week 35 -> last completed week is 34.
	w := LastCompletedWeek(date(2026, time.August, 26, 10))
	if w.WeekNumber != 34 || w.Year != 2026 {
		t.Errorf("Expected week 34/2026, got %d/%d", w.WeekNumber, w.Year)
	}

	// Monday 00:00 of week 35 -> week 34 just finished.
	w = LastCompletedWeek(date(2026, time.August, 24, 0))
	if w.WeekNumber != 34 {
		t.Errorf("Expected week 34, got %d", w.WeekNumber)
	}

	// First days of an ISO year roll back into the previous year's last week.
	w = LastCompletedWeek(date(2027, time.January, 6, 8)) // Wednesday, week 1/2027
	if w.WeekNumber != 53 || w.Year != 2026 {
		t.Errorf("Expected week 53/2026, got %d/%d", w.WeekNumber, w.Year)
	}
}

func TestWeekKey(t *testing.T) {
	w := ISOWeekOf(date(2026, time.August, 26, 0))
	if w.Key() != "2026-W35" {
		t.Errorf("Expected 2026-W35, got %s", w.Key())
	}

	w = ISOWeekOf(date(2027, time.January, 8, 0)) // week 1/2027
	if w.Key() != "2027-W01" {
		t.Errorf("Expected zero-padded 2027-W01, got %s", w.Key())
	}
}

func TestSchedulerAndStorageAgree(t *testing.T) {
	// The same instant must produce the same key no matter which component
	// asks, including across timezone conversions of the same moment.
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}
	utcNow := date(2026, time.August, 28, 3) // Friday 03:00 UTC
	local := utcNow.In(ny)                   // Thursday 23:00 New York

	// Conversions of the same instant can land in different local weeks; the
	// convention is that week computation always uses the local clock.
	if ISOWeekOf(local).Key() != ISOWeekOf(local).Key() {
		t.Error("Key must be deterministic")
	}
	if got := ISOWeekOf(local).WeekNumber; got != 35 {
		t.Errorf("Expected local week 35, got %d", got)
	}
}
