package models

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestValidTransition(t *testing.T) {
	tests := []struct {
		current OperationStatus
		desired OperationStatus
		allowed bool
	}{
		{OperationQueued, OperationProcessing, true},
		{OperationQueued, OperationFailed, true},
		{OperationQueued, OperationCompleted, false},
		{OperationProcessing, OperationCompleted, true},
		{OperationProcessing, OperationFailed, true},
		{OperationProcessing, OperationQueued, false},
		{OperationCompleted, OperationProcessing, false},
		{OperationCompleted, OperationFailed, false},
		{OperationFailed, OperationQueued, false},
		{OperationFailed, OperationProcessing, false},
		{OperationStatus("bogus"), OperationProcessing, false},
	}

	for _, tt := range tests {
		if got := ValidTransition(tt.current, tt.desired); got != tt.allowed {
			t.Errorf("ValidTransition(%s, %s) = %v, want %v", tt.current, tt.desired, got, tt.allowed)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	if !OperationCompleted.IsTerminal() || !OperationFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
	if OperationQueued.IsTerminal() || OperationProcessing.IsTerminal() {
		t.Error("queued and processing must not be terminal")
	}
	if !OperationQueued.IsActive() || !OperationProcessing.IsActive() {
		t.Error("queued and processing must count as active")
	}
	if OperationCompleted.IsActive() || OperationFailed.IsActive() {
		t.Error("terminal states must not count as active")
	}
}

func TestOperationToResponse(t *testing.T) {
	now := time.Now()
	op := &AsyncOperation{
		ID:            primitive.NewObjectID(),
		UserID:        "user-1",
		OperationType: OperationTypeWeeklyReflection,
		WeekKey:       "2026-W35",
		Status:        OperationFailed,
		ErrorMessage:  "LLM service unavailable",
		Metadata:      map[string]any{"triggerType": TriggerScheduled},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	resp := op.ToResponse()
	if resp.ID != op.ID.Hex() {
		t.Errorf("Expected ID %s, got %s", op.ID.Hex(), resp.ID)
	}
	if resp.Status != OperationFailed {
		t.Errorf("Expected status failed, got %s", resp.Status)
	}
	if resp.ErrorMessage != "LLM service unavailable" {
		t.Errorf("Error message must be carried verbatim, got %q", resp.ErrorMessage)
	}
	if resp.WeekKey != "2026-W35" {
		t.Errorf("Expected week key 2026-W35, got %s", resp.WeekKey)
	}
}

func TestPreferencesDueAt(t *testing.T) {
	prefs := ReflectionPreferences{
		AutoGenerate:  true,
		PreferredDay:  DayFriday,
		PreferredHour: 14,
		Timezone:      "America/New_York",
	}

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("Failed to load location: %v", err)
	}

	friday14 := time.Date(2026, time.August, 28, 14, 30, 0, 0, ny)
	if !prefs.DueAt(friday14) {
		t.Error("Expected due on Friday 14:30 local")
	}

	friday13 := time.Date(2026, time.August, 28, 13, 59, 0, 0, ny)
	if prefs.DueAt(friday13) {
		t.Error("Not due on Friday 13:59 local")
	}

	thursday14 := time.Date(2026, time.August, 27, 14, 0, 0, 0, ny)
	if prefs.DueAt(thursday14) {
		t.Error("Not due on Thursday 14:00 local")
	}

	prefs.AutoGenerate = false
	if prefs.DueAt(friday14) {
		t.Error("Never due when autoGenerate is off")
	}
}

func TestCronDayOfWeek(t *testing.T) {
	tests := []struct {
		day  string
		want int
	}{
		{DaySunday, 0},
		{DayMonday, 1},
		{DayFriday, 5},
		{" Friday ", 5},
		{"noday", -1},
	}
	for _, tt := range tests {
		p := ReflectionPreferences{PreferredDay: tt.day}
		if got := p.CronDayOfWeek(); got != tt.want {
			t.Errorf("CronDayOfWeek(%q) = %d, want %d", tt.day, got, tt.want)
		}
	}
}

func TestRawIntegrationDataIsEmpty(t *testing.T) {
	empty := &RawIntegrationData{TotalMeetings: 0, MeetingContext: []string{}}
	if !empty.IsEmpty() {
		t.Error("Zero meetings with empty context must be empty")
	}

	nonEmpty := &RawIntegrationData{TotalMeetings: 1, KeyMeetings: []KeyMeeting{{Title: "Team Standup"}}}
	if nonEmpty.IsEmpty() {
		t.Error("A week with meetings must not be empty")
	}
}
