package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"reflecta/internal/models"
	"reflecta/internal/weekutil"
)

// ProfileStore is the slice of the user service the handler needs.
type ProfileStore interface {
	GetUserProfile(ctx context.Context, userID string) (*models.User, error)
}

// SnippetStore finds and persists weekly snippets.
type SnippetStore interface {
	FindSnippet(ctx context.Context, userID string, week weekutil.Week) (*models.WeeklySnippet, error)
	SaveSnippet(ctx context.Context, snippet *models.WeeklySnippet) (*models.WeeklySnippet, error)
}

// Consolidator runs the consolidation engine for one integration's week.
type Consolidator interface {
	ConsolidateWeeklyData(ctx context.Context, user *models.User, week weekutil.Week, integrationType string, data *models.RawIntegrationData) (*models.IntegrationConsolidation, error)
}

// Generator produces the narrative snippet content from a consolidation,
// optionally carrying the previous week's snippet for continuity. Returns
// (content, model name, error).
type Generator interface {
	GenerateReflection(ctx context.Context, user *models.User, week weekutil.Week, consolidation *models.IntegrationConsolidation, previousContent string) (string, string, error)
}

// WeeklyReflectionHandler is the handler registered for weekly reflection
// operations. It composes profile load → snippet dedup → integration fetch →
// consolidation → generation → persistence.
//
// Missing profile and existing snippet are domain outcomes returned in the
// result. Gateway, model, and parse failures are returned as errors so the
// dispatcher records them on the operation; the handler never substitutes
// content for a failed stage.
type WeeklyReflectionHandler struct {
	profiles     ProfileStore
	snippets     SnippetStore
	gateway      IntegrationGateway
	consolidator Consolidator
	generator    Generator
}

// NewWeeklyReflectionHandler wires the pipeline's collaborators.
func NewWeeklyReflectionHandler(profiles ProfileStore, snippets SnippetStore, gateway IntegrationGateway, consolidator Consolidator, generator Generator) *WeeklyReflectionHandler {
	return &WeeklyReflectionHandler{
		profiles:     profiles,
		snippets:     snippets,
		gateway:      gateway,
		consolidator: consolidator,
		generator:    generator,
	}
}

// Process runs the weekly reflection pipeline for one operation.
func (h *WeeklyReflectionHandler) Process(ctx context.Context, input *models.ReflectionJobInput, jobCtx *JobContext) (map[string]any, error) {
	jobCtx.UpdateProgress(5, "Loading user profile")

	user, err := h.profiles.GetUserProfile(ctx, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}
	if user == nil {
		log.Printf("⚠️ [REFLECTION] No profile for user %s, nothing to generate", input.UserID)
		return resultMap(models.ReflectionJobResult{Status: "error", Error: "User profile not found"}), nil
	}

	week := h.targetWeek(input)
	jobCtx.UpdateProgress(15, fmt.Sprintf("Checking existing reflection for %s", week.Key()))

	existing, err := h.snippets.FindSnippet(ctx, input.UserID, week)
	if err != nil {
		return nil, fmt.Errorf("failed to check for existing snippet: %w", err)
	}
	if existing != nil {
		log.Printf("ℹ️ [REFLECTION] Snippet for user %s %s already exists, returning stored content", input.UserID, week.Key())
		jobCtx.UpdateProgress(100, "Reflection already exists")
		return resultMap(models.ReflectionJobResult{Status: "draft", Content: existing.Content}), nil
	}

	integrations := h.requestedIntegrations(input, user)

	var consolidation *models.IntegrationConsolidation
	for i, integrationType := range integrations {
		percent := 25 + (40*i)/len(integrations)
		jobCtx.UpdateProgress(percent, fmt.Sprintf("Fetching %s data", integrationType))

		data, err := h.gateway.FetchWeeklyData(ctx, input.UserID, week, integrationType)
		if err != nil {
			return nil, fmt.Errorf("integration %s fetch failed: %w", integrationType, err)
		}
		if data.IsEmpty() {
			log.Printf("ℹ️ [REFLECTION] No %s activity for user %s %s, consolidating an empty week", integrationType, input.UserID, week.Key())
		}

		jobCtx.UpdateProgress(percent+10, fmt.Sprintf("Consolidating %s data", integrationType))
		c, err := h.consolidator.ConsolidateWeeklyData(ctx, user, week, integrationType, data)
		if err != nil {
			return nil, err
		}
		if consolidation == nil {
			consolidation = c
		}
	}

	var previousContent string
	if input.IncludePreviousContext {
		jobCtx.UpdateProgress(70, "Loading previous reflection")
		previous, err := h.snippets.FindSnippet(ctx, input.UserID, weekutil.ISOWeekOf(week.Start.AddDate(0, 0, -1)))
		if err != nil {
			return nil, fmt.Errorf("failed to load previous reflection: %w", err)
		}
		if previous != nil {
			previousContent = previous.Content
		}
	}

	jobCtx.UpdateProgress(75, "Generating reflection draft")
	content, modelName, err := h.generator.GenerateReflection(ctx, user, week, consolidation, previousContent)
	if err != nil {
		return nil, err
	}

	jobCtx.UpdateProgress(90, "Storing reflection")
	snippet := &models.WeeklySnippet{
		UserID:     input.UserID,
		WeekNumber: week.WeekNumber,
		Year:       week.Year,
		Content:    content,
		AISuggestions: models.AISuggestions{
			GeneratedAutomatically: true,
			Status:                 models.SnippetStatusDraft,
			Model:                  modelName,
			ConsolidationID:        consolidation.ID.Hex(),
		},
	}
	stored, err := h.snippets.SaveSnippet(ctx, snippet)
	if err != nil {
		return nil, fmt.Errorf("failed to persist snippet: %w", err)
	}

	jobCtx.UpdateProgress(100, "Reflection stored")
	return resultMap(models.ReflectionJobResult{Status: "draft", Content: stored.Content}), nil
}

// targetWeek derives the week to reflect on. Explicit boundaries in the
// input win; they are renormalized through the shared week function so the
// scheduler and handler can never disagree on numbering. Without boundaries
// the current week is used.
func (h *WeeklyReflectionHandler) targetWeek(input *models.ReflectionJobInput) weekutil.Week {
	if !input.WeekStart.IsZero() {
		return weekutil.ISOWeekOf(input.WeekStart)
	}
	return weekutil.ISOWeekOf(time.Now())
}

func (h *WeeklyReflectionHandler) requestedIntegrations(input *models.ReflectionJobInput, user *models.User) []string {
	if len(input.IncludeIntegrations) > 0 {
		return input.IncludeIntegrations
	}
	if len(user.ReflectionPreferences.IncludeIntegrations) > 0 {
		return user.ReflectionPreferences.IncludeIntegrations
	}
	return []string{"calendar"}
}

func resultMap(r models.ReflectionJobResult) map[string]any {
	m := map[string]any{"status": r.Status}
	if r.Content != "" {
		m["content"] = r.Content
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}
