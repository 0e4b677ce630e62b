package services

import (
	"strings"
	"testing"
	"time"

	"reflecta/internal/config"
	"reflecta/internal/models"
	"reflecta/internal/weekutil"
)

func testWeek(t *testing.T) weekutil.Week {
	t.Helper()
	return weekutil.ISOWeekOf(time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC))
}

func emptyGuidelineStore(t *testing.T) *config.GuidelineStore {
	t.Helper()
	store, err := config.LoadGuidelines("does-not-exist.yaml")
	if err != nil {
		t.Fatalf("LoadGuidelines failed: %v", err)
	}
	return store
}

func TestBuildPromptUsesLiteralMeetingTitles(t *testing.T) {
	svc := &ConsolidationService{guidelines: emptyGuidelineStore(t)}
	user := &models.User{UserID: "user-1", Name: "Jordan", Role: "Engineer"}
	data := &models.RawIntegrationData{
		IntegrationType: "calendar",
		TotalMeetings:   1,
		MeetingHours:    0.5,
		KeyMeetings: []models.KeyMeeting{
			{Title: "Team Standup", Start: time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC), DurationMins: 30},
		},
	}

	prompt := svc.BuildPrompt(user, testWeek(t), data)

	if !strings.Contains(prompt, "Team Standup") {
		t.Errorf("Prompt must contain the literal meeting title, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "Review session") {
		t.Errorf("Prompt contains a meeting name that was never in the input:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Total meetings: 1") {
		t.Errorf("Prompt missing meeting count:\n%s", prompt)
	}
	if !strings.Contains(prompt, "2026-W35") {
		t.Errorf("Prompt missing week key:\n%s", prompt)
	}
}

func TestBuildPromptEmptyWeek(t *testing.T) {
	svc := &ConsolidationService{guidelines: emptyGuidelineStore(t)}
	user := &models.User{UserID: "user-1", Name: "Jordan"}
	data := &models.RawIntegrationData{IntegrationType: "calendar", TotalMeetings: 0}

	prompt := svc.BuildPrompt(user, testWeek(t), data)

	if !strings.Contains(prompt, "Total meetings: 0") {
		t.Errorf("Empty week should still state zero meetings:\n%s", prompt)
	}
	if !strings.Contains(prompt, "No recorded activity") {
		t.Errorf("Empty week should carry the no-activity note:\n%s", prompt)
	}
}

func TestExtractSummaryAndInsights(t *testing.T) {
	content := `## Summary
A steady week focused on the billing migration.
Coordination with platform went smoothly.

## Key Insights
- Migration risk is now retired.
- Cross-team syncs are paying off.

## Themes
### Delivery
**Category: Execution**
- Evidence: Shipped the billing migration [USER]
`

	summary, insights := extractSummaryAndInsights(content)

	if !strings.Contains(summary, "billing migration") || !strings.Contains(summary, "platform") {
		t.Errorf("Summary paragraph not captured, got %q", summary)
	}
	if len(insights) != 2 {
		t.Fatalf("Expected 2 insights, got %d: %v", len(insights), insights)
	}
	if insights[0] != "Migration risk is now retired." {
		t.Errorf("Unexpected first insight: %q", insights[0])
	}
	if strings.Contains(summary, "Shipped the billing") {
		t.Errorf("Theme evidence leaked into the summary: %q", summary)
	}
}

func TestExtractSummaryAndInsightsMissingSections(t *testing.T) {
	summary, insights := extractSummaryAndInsights("### Delivery\n**Category: X**\n")
	if summary != "" || len(insights) != 0 {
		t.Errorf("Expected empty summary and insights, got %q / %v", summary, insights)
	}
}
