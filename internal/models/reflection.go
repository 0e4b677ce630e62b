package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AttributionUnspecified is the sentinel used when an evidence item carries
// no attribution tag.
const AttributionUnspecified = "UNSPECIFIED"

// Snippet status values stored in AISuggestions.
const (
	SnippetStatusDraft = "draft"
	SnippetStatusFinal = "final"
)

// Consolidation processing status markers.
const (
	ConsolidationCompleted = "completed"
	ConsolidationFailed    = "failed"
)

// RawIntegrationData is one week of activity pulled from a single
// integration, before any model pass. Zero meetings with empty slices is a
// valid payload, not an error.
type RawIntegrationData struct {
	IntegrationType      string       `json:"integration_type"`
	TotalMeetings        int          `json:"total_meetings"`
	MeetingHours         float64      `json:"meeting_hours"`
	KeyMeetings          []KeyMeeting `json:"key_meetings"`
	MeetingContext       []string     `json:"meeting_context"`
	WeeklyContextSummary string       `json:"weekly_context_summary"`
}

// IsEmpty reports whether the week contained no activity at all.
func (d *RawIntegrationData) IsEmpty() bool {
	return d.TotalMeetings == 0 && len(d.KeyMeetings) == 0 && len(d.MeetingContext) == 0
}

// KeyMeeting is a single notable meeting surfaced by an integration.
type KeyMeeting struct {
	Title        string    `bson:"title" json:"title"`
	Start        time.Time `bson:"start" json:"start"`
	DurationMins int       `bson:"durationMins" json:"duration_mins"`
	Attendees    []string  `bson:"attendees,omitempty" json:"attendees,omitempty"`
	Notes        string    `bson:"notes,omitempty" json:"notes,omitempty"`
}

// Evidence is one concrete statement supporting a category, with its
// attribution tag (USER, TEAM, or the unspecified sentinel).
type Evidence struct {
	Statement   string `bson:"statement" json:"statement"`
	Attribution string `bson:"attribution" json:"attribution"`
}

// Category groups evidence under a named aspect of a theme.
type Category struct {
	Name     string     `bson:"name" json:"name"`
	Evidence []Evidence `bson:"evidence" json:"evidence"`
}

// Theme is the top level of the consolidation tree. Order follows the model
// output.
type Theme struct {
	Name       string     `bson:"name" json:"name"`
	Categories []Category `bson:"categories" json:"categories"`
}

// ConsolidationMetrics carries the countable facts of the week.
type ConsolidationMetrics struct {
	TotalMeetings int     `bson:"totalMeetings" json:"total_meetings"`
	MeetingHours  float64 `bson:"meetingHours" json:"meeting_hours"`
}

// IntegrationConsolidation is the structured distillation of one user's one
// week of integration data. Created once per (user, integration type, week)
// and overwritten on regeneration, never merged.
type IntegrationConsolidation struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          string             `bson:"userId" json:"user_id"`
	IntegrationType string             `bson:"integrationType" json:"integration_type"`
	WeekNumber      int                `bson:"weekNumber" json:"week_number"`
	Year            int                `bson:"year" json:"year"`

	ConsolidatedSummary string               `bson:"consolidatedSummary" json:"consolidated_summary"`
	KeyInsights         []string             `bson:"keyInsights" json:"key_insights"`
	Metrics             ConsolidationMetrics `bson:"metrics" json:"metrics"`
	Themes              []Theme              `bson:"themes" json:"themes"`

	ProcessingStatus string `bson:"processingStatus" json:"processing_status"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// AISuggestions records how a snippet was produced.
type AISuggestions struct {
	GeneratedAutomatically bool   `bson:"generatedAutomatically" json:"generated_automatically"`
	Status                 string `bson:"status" json:"status"` // draft or final
	Model                  string `bson:"model,omitempty" json:"model,omitempty"`
	ConsolidationID        string `bson:"consolidationId,omitempty" json:"consolidation_id,omitempty"`
}

// WeeklySnippet is the final user-facing reflection for one week. At most one
// exists per (user, week, year); the handler treats an existing snippet as
// already satisfied and never overwrites it.
type WeeklySnippet struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     string             `bson:"userId" json:"user_id"`
	WeekNumber int                `bson:"weekNumber" json:"week_number"`
	Year       int                `bson:"year" json:"year"`

	// Content is narrative markdown with the three required sections:
	// "## Done", "## Next", "## Notes".
	Content string `bson:"content" json:"content"`

	AISuggestions AISuggestions `bson:"aiSuggestions" json:"ai_suggestions"`

	CreatedAt time.Time `bson:"createdAt" json:"created_at"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updated_at"`
}

// CalendarEvent is a stored calendar entry used by the calendar gateway to
// assemble RawIntegrationData for a week.
type CalendarEvent struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       string             `bson:"userId" json:"user_id"`
	Title        string             `bson:"title" json:"title"`
	Start        time.Time          `bson:"start" json:"start"`
	DurationMins int                `bson:"durationMins" json:"duration_mins"`
	Attendees    []string           `bson:"attendees,omitempty" json:"attendees,omitempty"`
	Notes        string             `bson:"notes,omitempty" json:"notes,omitempty"`
	Important    bool               `bson:"important" json:"important"`
}
