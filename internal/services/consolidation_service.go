package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"reflecta/internal/config"
	"reflecta/internal/database"
	"reflecta/internal/models"
	"reflecta/internal/weekutil"
)

const consolidationSystemPrompt = `You are an assistant that distills one week of workplace activity into a structured review. Respond in markdown with exactly these sections:

## Summary
A short paragraph summarizing the week.

## Key Insights
- One bullet per insight.

## Themes
### <theme name>
**Category: <category name>**
- Evidence: <concrete statement> Attribution: [USER] or [TEAM]

Only reference meetings and facts present in the input. Never invent meeting names or events.`

// ConsolidationService turns one week of raw integration data into a stored
// IntegrationConsolidation through a single model call.
//
// A model or parse failure is recorded as a failed consolidation document and
// returned as an error. The service never substitutes placeholder themes or
// summaries for content the model did not produce.
type ConsolidationService struct {
	consolidations *mongo.Collection
	llm            LanguageModel
	guidelines     *config.GuidelineStore
}

// NewConsolidationService creates the consolidation engine.
func NewConsolidationService(mongoDB *database.MongoDB, llm LanguageModel, guidelines *config.GuidelineStore) *ConsolidationService {
	return &ConsolidationService{
		consolidations: mongoDB.Collection(database.CollectionConsolidations),
		llm:            llm,
		guidelines:     guidelines,
	}
}

// ConsolidateWeeklyData runs the model over one integration's weekly data and
// upserts the result keyed by (user, integration type, week). Regeneration
// overwrites the previous document wholesale.
func (s *ConsolidationService) ConsolidateWeeklyData(ctx context.Context, user *models.User, week weekutil.Week, integrationType string, data *models.RawIntegrationData) (*models.IntegrationConsolidation, error) {
	prompt := s.BuildPrompt(user, week, data)

	log.Printf("🧠 [CONSOLIDATION] Requesting consolidation for user %s, %s, %s (meetings=%d)",
		user.UserID, integrationType, week.Key(), data.TotalMeetings)

	resp, err := s.llm.Request(ctx, &LLMRequest{
		System:      consolidationSystemPrompt,
		Prompt:      prompt,
		Temperature: 0.4,
		MaxTokens:   2000,
		Purpose:     "consolidation",
	})
	if err != nil {
		s.recordFailure(ctx, user.UserID, integrationType, week)
		return nil, fmt.Errorf("consolidation model call failed: %w", err)
	}

	summary, insights := extractSummaryAndInsights(resp.Content)
	themes, err := ParseThemeTree(resp.Content)
	if err != nil {
		s.recordFailure(ctx, user.UserID, integrationType, week)
		return nil, fmt.Errorf("consolidation response unparseable: %w", err)
	}

	now := time.Now()
	consolidation := &models.IntegrationConsolidation{
		UserID:              user.UserID,
		IntegrationType:     integrationType,
		WeekNumber:          week.WeekNumber,
		Year:                week.Year,
		ConsolidatedSummary: summary,
		KeyInsights:         insights,
		Metrics: models.ConsolidationMetrics{
			TotalMeetings: data.TotalMeetings,
			MeetingHours:  data.MeetingHours,
		},
		Themes:           themes,
		ProcessingStatus: models.ConsolidationCompleted,
		UpdatedAt:        now,
	}

	stored, err := s.upsert(ctx, consolidation)
	if err != nil {
		return nil, fmt.Errorf("failed to store consolidation: %w", err)
	}

	log.Printf("✅ [CONSOLIDATION] Stored consolidation %s for user %s, %s (%d themes)",
		stored.ID.Hex(), user.UserID, week.Key(), len(themes))
	return stored, nil
}

// GetConsolidation returns a stored consolidation, or (nil, nil) when none
// exists for the key.
func (s *ConsolidationService) GetConsolidation(ctx context.Context, userID, integrationType string, week weekutil.Week) (*models.IntegrationConsolidation, error) {
	filter := bson.M{
		"userId":          userID,
		"integrationType": integrationType,
		"weekNumber":      week.WeekNumber,
		"year":            week.Year,
	}
	var consolidation models.IntegrationConsolidation
	err := s.consolidations.FindOne(ctx, filter).Decode(&consolidation)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch consolidation: %w", err)
	}
	return &consolidation, nil
}

// BuildPrompt renders the user prompt for the consolidation call. Meeting
// titles and context lines are passed through literally so the model cannot
// drift from what actually happened.
func (s *ConsolidationService) BuildPrompt(user *models.User, week weekutil.Week, data *models.RawIntegrationData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Consolidate the following week of activity for %s.\n\n", user.Name)
	fmt.Fprintf(&b, "Week: %s (%s to %s)\n",
		week.Key(), week.Start.Format("2006-01-02"), week.End.Format("2006-01-02"))
	if user.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", user.Role)
	}
	if user.SenioritySummary != "" {
		fmt.Fprintf(&b, "Seniority context: %s\n", user.SenioritySummary)
	}
	b.WriteString("\n")

	if guidelineContext := s.guidelines.Current().PromptContext(); guidelineContext != "" {
		b.WriteString(guidelineContext)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Total meetings: %d\n", data.TotalMeetings)
	fmt.Fprintf(&b, "Meeting hours: %.1f\n", data.MeetingHours)

	if len(data.KeyMeetings) > 0 {
		b.WriteString("\nKey meetings:\n")
		for _, m := range data.KeyMeetings {
			fmt.Fprintf(&b, "- %s (%s, %d min", m.Title, m.Start.Format("Mon Jan 2"), m.DurationMins)
			if len(m.Attendees) > 0 {
				fmt.Fprintf(&b, ", with %s", strings.Join(m.Attendees, ", "))
			}
			b.WriteString(")")
			if m.Notes != "" {
				fmt.Fprintf(&b, " — %s", m.Notes)
			}
			b.WriteString("\n")
		}
	}

	if len(data.MeetingContext) > 0 {
		b.WriteString("\nMeeting context:\n")
		for _, line := range data.MeetingContext {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}

	if data.WeeklyContextSummary != "" {
		fmt.Fprintf(&b, "\nWeekly context: %s\n", data.WeeklyContextSummary)
	}

	if data.IsEmpty() {
		b.WriteString("\nNo recorded activity this week. Consolidate a quiet week honestly; do not invent meetings or events.\n")
	}

	return b.String()
}

func (s *ConsolidationService) upsert(ctx context.Context, c *models.IntegrationConsolidation) (*models.IntegrationConsolidation, error) {
	filter := bson.M{
		"userId":          c.UserID,
		"integrationType": c.IntegrationType,
		"weekNumber":      c.WeekNumber,
		"year":            c.Year,
	}
	update := bson.M{
		"$set": bson.M{
			"consolidatedSummary": c.ConsolidatedSummary,
			"keyInsights":         c.KeyInsights,
			"metrics":             c.Metrics,
			"themes":              c.Themes,
			"processingStatus":    c.ProcessingStatus,
			"updatedAt":           c.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"userId":          c.UserID,
			"integrationType": c.IntegrationType,
			"weekNumber":      c.WeekNumber,
			"year":            c.Year,
			"createdAt":       c.UpdatedAt,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var stored models.IntegrationConsolidation
	if err := s.consolidations.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// recordFailure marks the (user, integration, week) consolidation as failed
// so status queries can distinguish "never attempted" from "attempted and
// broke". Best effort: a storage error here is logged, not returned, because
// the original failure is what the caller needs to see.
func (s *ConsolidationService) recordFailure(ctx context.Context, userID, integrationType string, week weekutil.Week) {
	now := time.Now()
	filter := bson.M{
		"userId":          userID,
		"integrationType": integrationType,
		"weekNumber":      week.WeekNumber,
		"year":            week.Year,
	}
	update := bson.M{
		"$set": bson.M{
			"processingStatus": models.ConsolidationFailed,
			"updatedAt":        now,
		},
		"$setOnInsert": bson.M{
			"userId":          userID,
			"integrationType": integrationType,
			"weekNumber":      week.WeekNumber,
			"year":            week.Year,
			"createdAt":       now,
		},
	}
	opts := options.Update().SetUpsert(true)
	if _, err := s.consolidations.UpdateOne(ctx, filter, update, opts); err != nil {
		log.Printf("⚠️ [CONSOLIDATION] Failed to record failed consolidation for user %s: %v", userID, err)
	}
}

// extractSummaryAndInsights pulls the "## Summary" paragraph and the
// "## Key Insights" bullets out of the model response. Either may be absent;
// the theme tree is the part whose absence fails the consolidation.
func extractSummaryAndInsights(content string) (string, []string) {
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")

	var summaryLines []string
	var insights []string
	section := ""

	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if strings.HasPrefix(line, "## ") {
			heading := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			switch {
			case strings.HasPrefix(heading, "summary"):
				section = "summary"
			case strings.HasPrefix(heading, "key insight"):
				section = "insights"
			default:
				section = ""
			}
			continue
		}
		if strings.HasPrefix(line, "### ") {
			section = ""
			continue
		}

		switch section {
		case "summary":
			if line != "" {
				summaryLines = append(summaryLines, line)
			}
		case "insights":
			if strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* ") {
				insight := strings.TrimSpace(line[2:])
				if insight != "" {
					insights = append(insights, insight)
				}
			}
		}
	}

	return strings.Join(summaryLines, " "), insights
}
