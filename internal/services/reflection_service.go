package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"reflecta/internal/database"
	"reflecta/internal/models"
	"reflecta/internal/weekutil"
)

const reflectionSystemPrompt = `You are an assistant that writes a first-person weekly work reflection from a structured consolidation. Respond in markdown with exactly three sections:

## Done
What was accomplished this week, grounded in the consolidation.

## Next
What the coming week should focus on.

## Notes
Observations, risks, or anything worth remembering.

Only reference work present in the consolidation. Never invent meetings, projects, or outcomes.`

var requiredSnippetSections = []string{"## Done", "## Next", "## Notes"}

// ReflectionService generates and stores weekly snippets. A snippet is
// written at most once per (user, week): the unique index backs this up, and
// a duplicate insert resolves to the already-stored snippet rather than an
// error.
type ReflectionService struct {
	snippets *mongo.Collection
	llm      LanguageModel
}

// NewReflectionService creates the reflection generator.
func NewReflectionService(mongoDB *database.MongoDB, llm LanguageModel) *ReflectionService {
	return &ReflectionService{
		snippets: mongoDB.Collection(database.CollectionSnippets),
		llm:      llm,
	}
}

// FindSnippet returns the stored snippet for (user, week), or (nil, nil)
// when none exists.
func (s *ReflectionService) FindSnippet(ctx context.Context, userID string, week weekutil.Week) (*models.WeeklySnippet, error) {
	filter := bson.M{
		"userId":     userID,
		"weekNumber": week.WeekNumber,
		"year":       week.Year,
	}
	var snippet models.WeeklySnippet
	err := s.snippets.FindOne(ctx, filter).Decode(&snippet)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch snippet: %w", err)
	}
	return &snippet, nil
}

// GenerateReflection produces narrative draft content from a stored
// consolidation. previousContent, when non-empty, is last week's snippet and
// gives the model continuity for the Next section. The response must contain
// the Done/Next/Notes sections; a response without them fails with
// ErrMalformedReflection rather than being stored partially.
func (s *ReflectionService) GenerateReflection(ctx context.Context, user *models.User, week weekutil.Week, consolidation *models.IntegrationConsolidation, previousContent string) (string, string, error) {
	prompt := buildReflectionPrompt(user, week, consolidation, previousContent)

	log.Printf("✍️ [REFLECTION] Generating reflection for user %s, %s (consolidation %s)",
		user.UserID, week.Key(), consolidation.ID.Hex())

	resp, err := s.llm.Request(ctx, &LLMRequest{
		System:          reflectionSystemPrompt,
		Prompt:          prompt,
		Temperature:     0.6,
		MaxTokens:       1500,
		Purpose:         "reflection",
		ConsolidationID: consolidation.ID.Hex(),
	})
	if err != nil {
		return "", "", fmt.Errorf("reflection model call failed: %w", err)
	}

	for _, section := range requiredSnippetSections {
		if !strings.Contains(resp.Content, section) {
			return "", "", fmt.Errorf("%w: missing section %q", ErrMalformedReflection, section)
		}
	}

	return resp.Content, resp.Model, nil
}

// SaveSnippet stores a generated snippet. When a concurrent run already
// stored one for the same week, the existing snippet wins and is returned
// unchanged.
func (s *ReflectionService) SaveSnippet(ctx context.Context, snippet *models.WeeklySnippet) (*models.WeeklySnippet, error) {
	now := time.Now()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now

	result, err := s.snippets.InsertOne(ctx, snippet)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			week := weekutil.Week{WeekNumber: snippet.WeekNumber, Year: snippet.Year}
			existing, findErr := s.FindSnippet(ctx, snippet.UserID, week)
			if findErr != nil {
				return nil, fmt.Errorf("failed to load existing snippet after duplicate insert: %w", findErr)
			}
			if existing != nil {
				log.Printf("ℹ️ [REFLECTION] Snippet for user %s week %d/%d already stored, keeping existing",
					snippet.UserID, snippet.WeekNumber, snippet.Year)
				return existing, nil
			}
		}
		return nil, fmt.Errorf("failed to store snippet: %w", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		snippet.ID = oid
		log.Printf("✅ [REFLECTION] Stored snippet %s for user %s week %d/%d",
			oid.Hex(), snippet.UserID, snippet.WeekNumber, snippet.Year)
	}
	return snippet, nil
}

func buildReflectionPrompt(user *models.User, week weekutil.Week, c *models.IntegrationConsolidation, previousContent string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write %s's reflection for week %s (%s to %s).\n\n",
		user.Name, week.Key(), week.Start.Format("2006-01-02"), week.End.Format("2006-01-02"))

	if c.ConsolidatedSummary != "" {
		fmt.Fprintf(&b, "Week summary: %s\n\n", c.ConsolidatedSummary)
	}
	fmt.Fprintf(&b, "Meetings: %d (%.1f hours)\n\n", c.Metrics.TotalMeetings, c.Metrics.MeetingHours)

	if len(c.KeyInsights) > 0 {
		b.WriteString("Key insights:\n")
		for _, insight := range c.KeyInsights {
			fmt.Fprintf(&b, "- %s\n", insight)
		}
		b.WriteString("\n")
	}

	for _, theme := range c.Themes {
		fmt.Fprintf(&b, "Theme: %s\n", theme.Name)
		for _, category := range theme.Categories {
			fmt.Fprintf(&b, "  %s:\n", category.Name)
			for _, ev := range category.Evidence {
				fmt.Fprintf(&b, "  - %s [%s]\n", ev.Statement, ev.Attribution)
			}
		}
	}

	if previousContent != "" {
		fmt.Fprintf(&b, "\nLast week's reflection, for continuity:\n%s\n", previousContent)
	}

	return b.String()
}
