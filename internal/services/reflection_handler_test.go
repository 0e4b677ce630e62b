package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"reflecta/internal/models"
	"reflecta/internal/weekutil"
)

type fakeProfileStore struct {
	user *models.User
	err  error
}

func (f *fakeProfileStore) GetUserProfile(_ context.Context, _ string) (*models.User, error) {
	return f.user, f.err
}

type fakeSnippetStore struct {
	existing  *models.WeeklySnippet // returned for the target week
	previous  *models.WeeklySnippet // returned for any earlier week
	saved     *models.WeeklySnippet
	findCalls int
	saveCalls int
}

func (f *fakeSnippetStore) FindSnippet(_ context.Context, _ string, week weekutil.Week) (*models.WeeklySnippet, error) {
	f.findCalls++
	target := weekutil.ISOWeekOf(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
	if week.Year == target.Year && week.WeekNumber == target.WeekNumber {
		return f.existing, nil
	}
	return f.previous, nil
}

func (f *fakeSnippetStore) SaveSnippet(_ context.Context, snippet *models.WeeklySnippet) (*models.WeeklySnippet, error) {
	f.saveCalls++
	f.saved = snippet
	return snippet, nil
}

type fakeGateway struct {
	data  *models.RawIntegrationData
	err   error
	calls int
}

func (f *fakeGateway) FetchWeeklyData(_ context.Context, _ string, _ weekutil.Week, integrationType string) (*models.RawIntegrationData, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.data != nil {
		return f.data, nil
	}
	return &models.RawIntegrationData{IntegrationType: integrationType}, nil
}

type fakeConsolidator struct {
	err      error
	calls    int
	lastData *models.RawIntegrationData
}

func (f *fakeConsolidator) ConsolidateWeeklyData(_ context.Context, _ *models.User, week weekutil.Week, integrationType string, data *models.RawIntegrationData) (*models.IntegrationConsolidation, error) {
	f.calls++
	f.lastData = data
	if f.err != nil {
		return nil, f.err
	}
	return &models.IntegrationConsolidation{
		ID:              primitive.NewObjectID(),
		IntegrationType: integrationType,
		WeekNumber:      week.WeekNumber,
		Year:            week.Year,
		Metrics:         models.ConsolidationMetrics{TotalMeetings: data.TotalMeetings},
	}, nil
}

type fakeGenerator struct {
	content      string
	model        string
	err          error
	calls        int
	lastPrevious string
}

func (f *fakeGenerator) GenerateReflection(_ context.Context, _ *models.User, _ weekutil.Week, _ *models.IntegrationConsolidation, previousContent string) (string, string, error) {
	f.calls++
	f.lastPrevious = previousContent
	if f.err != nil {
		return "", "", f.err
	}
	return f.content, f.model, nil
}

// progressRecorder captures the UpdateProgress sequence.
type progressRecorder struct {
	percents []int
	messages []string
}

func (r *progressRecorder) jobCtx() *JobContext {
	return &JobContext{
		OperationID: "op-1",
		UserID:      "user-1",
		UpdateProgress: func(percent int, message string) {
			r.percents = append(r.percents, percent)
			r.messages = append(r.messages, message)
		},
	}
}

func handlerInput() *models.ReflectionJobInput {
	week := weekutil.ISOWeekOf(time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC))
	return &models.ReflectionJobInput{
		UserID:              "user-1",
		WeekStart:           week.Start,
		WeekEnd:             week.End,
		WeekNumber:          week.WeekNumber,
		Year:                week.Year,
		IncludeIntegrations: []string{"calendar"},
	}
}

func testUser() *models.User {
	return &models.User{UserID: "user-1", Name: "Jordan", Email: "jordan@example.com"}
}

func TestHandlerSuccessfulRun(t *testing.T) {
	profiles := &fakeProfileStore{user: testUser()}
	snippets := &fakeSnippetStore{}
	gateway := &fakeGateway{data: &models.RawIntegrationData{
		IntegrationType: "calendar",
		TotalMeetings:   2,
		KeyMeetings:     []models.KeyMeeting{{Title: "Team Standup"}},
	}}
	consolidator := &fakeConsolidator{}
	generator := &fakeGenerator{content: "## Done\nx\n## Next\ny\n## Notes\nz", model: "test-model"}

	h := NewWeeklyReflectionHandler(profiles, snippets, gateway, consolidator, generator)
	recorder := &progressRecorder{}

	result, err := h.Process(context.Background(), handlerInput(), recorder.jobCtx())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if result["status"] != "draft" {
		t.Errorf("Expected draft status, got %v", result)
	}
	if snippets.saveCalls != 1 {
		t.Errorf("Expected exactly one snippet save, got %d", snippets.saveCalls)
	}

	saved := snippets.saved
	if !saved.AISuggestions.GeneratedAutomatically {
		t.Error("Stored snippet must be marked generatedAutomatically")
	}
	if saved.AISuggestions.Status != models.SnippetStatusDraft {
		t.Errorf("Expected draft status on snippet, got %q", saved.AISuggestions.Status)
	}
	if saved.AISuggestions.Model != "test-model" {
		t.Errorf("Expected model recorded on snippet, got %q", saved.AISuggestions.Model)
	}

	// Progress starts at 5, ends at 100, never decreases.
	if len(recorder.percents) == 0 || recorder.percents[0] != 5 {
		t.Fatalf("Expected first progress update of 5, got %v", recorder.percents)
	}
	if recorder.messages[0] != "Loading user profile" {
		t.Errorf("Expected first message 'Loading user profile', got %q", recorder.messages[0])
	}
	last := recorder.percents[0]
	for _, p := range recorder.percents[1:] {
		if p < last {
			t.Fatalf("Progress went backwards: %v", recorder.percents)
		}
		last = p
	}
	if last != 100 {
		t.Errorf("Expected final progress of 100, got %d", last)
	}
}

func TestHandlerMissingProfileIsDomainOutcome(t *testing.T) {
	h := NewWeeklyReflectionHandler(&fakeProfileStore{user: nil}, &fakeSnippetStore{}, &fakeGateway{}, &fakeConsolidator{}, &fakeGenerator{})
	recorder := &progressRecorder{}

	result, err := h.Process(context.Background(), handlerInput(), recorder.jobCtx())
	if err != nil {
		t.Fatalf("Missing profile must not be an error: %v", err)
	}
	if result["status"] != "error" {
		t.Errorf("Expected error status in result, got %v", result)
	}
	if result["error"] != "User profile not found" {
		t.Errorf("Expected 'User profile not found', got %v", result["error"])
	}
}

func TestHandlerExistingSnippetShortCircuits(t *testing.T) {
	gateway := &fakeGateway{}
	consolidator := &fakeConsolidator{}
	generator := &fakeGenerator{}
	snippets := &fakeSnippetStore{existing: &models.WeeklySnippet{Content: "## Done\nAlready written.\n## Next\n\n## Notes\n"}}

	h := NewWeeklyReflectionHandler(&fakeProfileStore{user: testUser()}, snippets, gateway, consolidator, generator)

	for i := 0; i < 2; i++ {
		result, err := h.Process(context.Background(), handlerInput(), (&progressRecorder{}).jobCtx())
		if err != nil {
			t.Fatalf("Run %d failed: %v", i, err)
		}
		if result["status"] != "draft" {
			t.Errorf("Run %d: expected draft, got %v", i, result)
		}
		if result["content"] != snippets.existing.Content {
			t.Errorf("Run %d: must return the stored content exactly, got %v", i, result["content"])
		}
	}

	if gateway.calls != 0 || consolidator.calls != 0 || generator.calls != 0 {
		t.Errorf("Existing snippet must short-circuit all downstream calls: gateway=%d consolidator=%d generator=%d",
			gateway.calls, consolidator.calls, generator.calls)
	}
	if snippets.saveCalls != 0 {
		t.Errorf("Existing snippet must never be overwritten, saves=%d", snippets.saveCalls)
	}
}

func TestHandlerEmptyDataStillConsolidates(t *testing.T) {
	gateway := &fakeGateway{data: &models.RawIntegrationData{
		IntegrationType: "calendar",
		TotalMeetings:   0,
		MeetingContext:  []string{},
	}}
	consolidator := &fakeConsolidator{}
	generator := &fakeGenerator{content: "## Done\nQuiet week.\n## Next\n\n## Notes\n"}

	h := NewWeeklyReflectionHandler(&fakeProfileStore{user: testUser()}, &fakeSnippetStore{}, gateway, consolidator, generator)

	if _, err := h.Process(context.Background(), handlerInput(), (&progressRecorder{}).jobCtx()); err != nil {
		t.Fatalf("Empty data is a valid outcome, got error: %v", err)
	}
	if consolidator.calls != 1 {
		t.Fatalf("Consolidation engine must be called exactly once, got %d", consolidator.calls)
	}
	if consolidator.lastData.TotalMeetings != 0 {
		t.Errorf("Expected zero meetings to reach the consolidator, got %d", consolidator.lastData.TotalMeetings)
	}
}

func TestHandlerPreviousContextFlag(t *testing.T) {
	snippets := &fakeSnippetStore{previous: &models.WeeklySnippet{Content: "## Done\nLast week's work.\n## Next\n\n## Notes\n"}}
	generator := &fakeGenerator{content: "## Done\nx\n## Next\ny\n## Notes\nz"}
	h := NewWeeklyReflectionHandler(&fakeProfileStore{user: testUser()}, snippets, &fakeGateway{}, &fakeConsolidator{}, generator)

	input := handlerInput()
	input.IncludePreviousContext = true

	if _, err := h.Process(context.Background(), input, (&progressRecorder{}).jobCtx()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if generator.lastPrevious != snippets.previous.Content {
		t.Errorf("Previous snippet must reach the generator, got %q", generator.lastPrevious)
	}

	// Without the flag the previous snippet stays out of the prompt.
	generator.lastPrevious = "unset"
	snippets.saveCalls = 0
	if _, err := h.Process(context.Background(), handlerInput(), (&progressRecorder{}).jobCtx()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if generator.lastPrevious != "" {
		t.Errorf("Previous content must be empty without the flag, got %q", generator.lastPrevious)
	}
}

func TestHandlerGatewayFailurePropagates(t *testing.T) {
	gateway := &fakeGateway{err: errors.New("calendar auth expired")}
	h := NewWeeklyReflectionHandler(&fakeProfileStore{user: testUser()}, &fakeSnippetStore{}, gateway, &fakeConsolidator{}, &fakeGenerator{})

	_, err := h.Process(context.Background(), handlerInput(), (&progressRecorder{}).jobCtx())
	if err == nil {
		t.Fatal("Gateway failure must propagate")
	}
	if !strings.Contains(err.Error(), "calendar auth expired") {
		t.Errorf("Cause must survive verbatim, got %q", err.Error())
	}
}

func TestHandlerConsolidationFailureNeverFabricates(t *testing.T) {
	consolidator := &fakeConsolidator{err: errors.New("consolidation model call failed: status 503")}
	generator := &fakeGenerator{content: "should never be used"}
	snippets := &fakeSnippetStore{}

	h := NewWeeklyReflectionHandler(&fakeProfileStore{user: testUser()}, snippets, &fakeGateway{}, consolidator, generator)

	_, err := h.Process(context.Background(), handlerInput(), (&progressRecorder{}).jobCtx())
	if err == nil {
		t.Fatal("Consolidation failure must propagate, never degrade")
	}
	if generator.calls != 0 {
		t.Errorf("Generator must not run after a failed consolidation, calls=%d", generator.calls)
	}
	if snippets.saveCalls != 0 {
		t.Errorf("Nothing may be persisted after a failed consolidation, saves=%d", snippets.saveCalls)
	}
}
