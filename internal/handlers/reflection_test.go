package handlers

import (
	"testing"
	"time"

	"reflecta/internal/models"
)

func TestNextScheduledRun(t *testing.T) {
	prefs := models.ReflectionPreferences{
		AutoGenerate:  true,
		PreferredDay:  "friday",
		PreferredHour: 14,
		Timezone:      "America/New_York",
	}

	// Wednesday 2026-08-26 10:00 UTC → next run Friday 2026-08-28 14:00 NY.
	now := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
	next, err := nextScheduledRun(prefs, now)
	if err != nil {
		t.Fatalf("nextScheduledRun failed: %v", err)
	}

	if next.Weekday() != time.Friday {
		t.Errorf("Expected a Friday, got %s", next.Weekday())
	}
	if next.Hour() != 14 {
		t.Errorf("Expected 14:00 local, got %d:00", next.Hour())
	}
	if zone, _ := next.Zone(); zone != "EDT" {
		t.Errorf("Expected New York local time, got zone %s", zone)
	}
	if next.Format("2006-01-02") != "2026-08-28" {
		t.Errorf("Expected 2026-08-28, got %s", next.Format("2006-01-02"))
	}
}

func TestNextScheduledRunAfterPreferredHour(t *testing.T) {
	prefs := models.ReflectionPreferences{
		AutoGenerate:  true,
		PreferredDay:  "friday",
		PreferredHour: 14,
		Timezone:      "UTC",
	}

	// Friday 15:00 UTC is past this week's slot; next run is a week out.
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	next, err := nextScheduledRun(prefs, now)
	if err != nil {
		t.Fatalf("nextScheduledRun failed: %v", err)
	}
	if next.Format("2006-01-02") != "2026-09-04" {
		t.Errorf("Expected next Friday 2026-09-04, got %s", next.Format("2006-01-02"))
	}
}

func TestNextScheduledRunErrors(t *testing.T) {
	if _, err := nextScheduledRun(models.ReflectionPreferences{PreferredDay: "friday", Timezone: "Not/AZone"}, time.Now()); err == nil {
		t.Error("Expected error for invalid timezone")
	}
	if _, err := nextScheduledRun(models.ReflectionPreferences{PreferredDay: "someday", Timezone: "UTC"}, time.Now()); err == nil {
		t.Error("Expected error for unrecognized day")
	}
}
