package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Preferred reflection days accepted by the scheduler.
const (
	DayMonday = "monday"
	DayFriday = "friday"
	DaySunday = "sunday"
)

// User represents one account with its profile and reflection settings.
type User struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID string             `bson:"userId" json:"user_id"` // External identity, unique
	Email  string             `bson:"email" json:"email"`
	Name   string             `bson:"name,omitempty" json:"name,omitempty"`

	// Profile context handed to the consolidation prompt.
	Role             string `bson:"role,omitempty" json:"role,omitempty"`
	SenioritySummary string `bson:"senioritySummary,omitempty" json:"seniority_summary,omitempty"`

	ReflectionPreferences ReflectionPreferences `bson:"reflectionPreferences" json:"reflection_preferences"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// ReflectionPreferences controls automatic weekly generation. Read-only input
// to the scheduler; mutated only through the preferences API.
type ReflectionPreferences struct {
	AutoGenerate        bool     `bson:"autoGenerate" json:"auto_generate"`
	PreferredDay        string   `bson:"preferredDay" json:"preferred_day"` // monday, friday or sunday
	PreferredHour       int      `bson:"preferredHour" json:"preferred_hour"`
	Timezone            string   `bson:"timezone" json:"timezone"` // IANA name
	IncludeIntegrations []string `bson:"includeIntegrations" json:"include_integrations"`
	NotifyOnGeneration  bool     `bson:"notifyOnGeneration" json:"notify_on_generation"`
}

// weekdayNames maps time.Weekday to the lowercase names stored in
// preferences.
var weekdayNames = map[time.Weekday]string{
	time.Monday:    DayMonday,
	time.Tuesday:   "tuesday",
	time.Wednesday: "wednesday",
	time.Thursday:  "thursday",
	time.Friday:    DayFriday,
	time.Saturday:  "saturday",
	time.Sunday:    DaySunday,
}

// DueAt reports whether the preferences make the user due at the given local
// time. Hour granularity: the scheduler runs once per hour and matches the
// local day and hour exactly.
func (p ReflectionPreferences) DueAt(local time.Time) bool {
	if !p.AutoGenerate {
		return false
	}
	day := strings.ToLower(strings.TrimSpace(p.PreferredDay))
	return weekdayNames[local.Weekday()] == day && local.Hour() == p.PreferredHour
}

// CronDayOfWeek returns the cron day-of-week number for the preferred day,
// or -1 if the day is not recognized.
func (p ReflectionPreferences) CronDayOfWeek() int {
	switch strings.ToLower(strings.TrimSpace(p.PreferredDay)) {
	case DaySunday:
		return 0
	case DayMonday:
		return 1
	case "tuesday":
		return 2
	case "wednesday":
		return 3
	case "thursday":
		return 4
	case DayFriday:
		return 5
	case "saturday":
		return 6
	}
	return -1
}
