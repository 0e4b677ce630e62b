package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"reflecta/internal/models"
)

// fakeOperationStore records lifecycle calls in order.
type fakeOperationStore struct {
	calls        []string
	progress     []int
	failMessage  string
	result       map[string]any
	markErr      error
	completeErr  error
	progressErrs bool
}

func (f *fakeOperationStore) Get(_ context.Context, operationID string) (*models.AsyncOperation, error) {
	f.calls = append(f.calls, "get")
	return &models.AsyncOperation{UserID: "user-1", Status: models.OperationQueued}, nil
}

func (f *fakeOperationStore) MarkProcessing(_ context.Context, operationID string) error {
	f.calls = append(f.calls, "processing")
	return f.markErr
}

func (f *fakeOperationStore) Complete(_ context.Context, operationID string, result map[string]any) error {
	f.calls = append(f.calls, "completed")
	f.result = result
	return f.completeErr
}

func (f *fakeOperationStore) Fail(_ context.Context, operationID string, errorMessage string) error {
	f.calls = append(f.calls, "failed")
	f.failMessage = errorMessage
	return nil
}

func (f *fakeOperationStore) RecordProgress(_ context.Context, operationID string, percent int, message string) error {
	f.progress = append(f.progress, percent)
	if f.progressErrs {
		return errors.New("progress write refused")
	}
	return nil
}

// fakeJobHandler runs a configurable function as the handler body.
type fakeJobHandler struct {
	run func(jobCtx *JobContext) (map[string]any, error)
}

func (h *fakeJobHandler) Process(_ context.Context, _ *models.ReflectionJobInput, jobCtx *JobContext) (map[string]any, error) {
	return h.run(jobCtx)
}

func TestProcessJobSuccess(t *testing.T) {
	store := &fakeOperationStore{}
	handler := &fakeJobHandler{run: func(jobCtx *JobContext) (map[string]any, error) {
		jobCtx.UpdateProgress(5, "Loading user profile")
		jobCtx.UpdateProgress(100, "Done")
		return map[string]any{"status": "draft"}, nil
	}}
	d := NewDispatcher(store, map[string]JobHandler{models.OperationTypeWeeklyReflection: handler})

	result, err := d.ProcessJob(context.Background(), models.OperationTypeWeeklyReflection, "user-1", "op-1", &models.ReflectionJobInput{UserID: "user-1"})
	if err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}
	if result["status"] != "draft" {
		t.Errorf("Expected draft result, got %v", result)
	}

	want := []string{"processing", "completed"}
	if len(store.calls) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, store.calls)
	}
	for i, call := range want {
		if store.calls[i] != call {
			t.Errorf("Call %d: expected %s, got %s", i, call, store.calls[i])
		}
	}
	if len(store.progress) != 2 || store.progress[0] != 5 || store.progress[1] != 100 {
		t.Errorf("Expected progress [5 100], got %v", store.progress)
	}
}

func TestProcessJobHandlerFailure(t *testing.T) {
	store := &fakeOperationStore{}
	handler := &fakeJobHandler{run: func(*JobContext) (map[string]any, error) {
		return nil, errors.New("calendar API auth expired")
	}}
	d := NewDispatcher(store, map[string]JobHandler{models.OperationTypeWeeklyReflection: handler})

	_, err := d.ProcessJob(context.Background(), models.OperationTypeWeeklyReflection, "user-1", "op-1", &models.ReflectionJobInput{})
	if err == nil {
		t.Fatal("Handler error must propagate to the caller")
	}
	if !strings.Contains(err.Error(), "calendar API auth expired") {
		t.Errorf("Error must carry the cause verbatim, got %q", err.Error())
	}
	if !strings.Contains(store.failMessage, "calendar API auth expired") {
		t.Errorf("errorMessage must contain the cause verbatim, got %q", store.failMessage)
	}

	want := []string{"processing", "failed"}
	for i, call := range want {
		if i >= len(store.calls) || store.calls[i] != call {
			t.Fatalf("Expected calls %v, got %v", want, store.calls)
		}
	}
}

func TestProcessJobUnknownType(t *testing.T) {
	store := &fakeOperationStore{}
	d := NewDispatcher(store, map[string]JobHandler{})

	_, err := d.ProcessJob(context.Background(), "nonsense-type", "user-1", "op-1", &models.ReflectionJobInput{})
	if !errors.Is(err, ErrUnknownOperationType) {
		t.Fatalf("Expected ErrUnknownOperationType, got %v", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("Unknown type must fail before any state mutation, got calls %v", store.calls)
	}
}

func TestProcessJobCountsTerminalStatesOnce(t *testing.T) {
	// Terminal-state counters belong to the operation store; the dispatcher
	// calling Complete/Fail must not add its own increments on top. The fake
	// store counts nothing, so any delta here is a dispatcher double-count.
	metrics := InitMetrics()
	completedBefore := testutil.ToFloat64(metrics.OperationsCompleted)
	failedBefore := testutil.ToFloat64(metrics.OperationsFailed)

	okHandler := &fakeJobHandler{run: func(*JobContext) (map[string]any, error) {
		return map[string]any{"status": "draft"}, nil
	}}
	badHandler := &fakeJobHandler{run: func(*JobContext) (map[string]any, error) {
		return nil, errors.New("model unavailable")
	}}
	d := NewDispatcher(&fakeOperationStore{}, map[string]JobHandler{
		"ok-type":  okHandler,
		"bad-type": badHandler,
	})

	if _, err := d.ProcessJob(context.Background(), "ok-type", "user-1", "op-1", &models.ReflectionJobInput{}); err != nil {
		t.Fatalf("ProcessJob failed: %v", err)
	}
	if _, err := d.ProcessJob(context.Background(), "bad-type", "user-1", "op-2", &models.ReflectionJobInput{}); err == nil {
		t.Fatal("Expected handler error to propagate")
	}

	if got := testutil.ToFloat64(metrics.OperationsCompleted) - completedBefore; got != 0 {
		t.Errorf("Dispatcher must not increment the completed counter, got +%v", got)
	}
	if got := testutil.ToFloat64(metrics.OperationsFailed) - failedBefore; got != 0 {
		t.Errorf("Dispatcher must not increment the failed counter, got +%v", got)
	}
}

func TestProcessJobProgressFailuresAreAdvisory(t *testing.T) {
	store := &fakeOperationStore{progressErrs: true}
	handler := &fakeJobHandler{run: func(jobCtx *JobContext) (map[string]any, error) {
		jobCtx.UpdateProgress(50, "Halfway")
		return map[string]any{"status": "draft"}, nil
	}}
	d := NewDispatcher(store, map[string]JobHandler{models.OperationTypeWeeklyReflection: handler})

	if _, err := d.ProcessJob(context.Background(), models.OperationTypeWeeklyReflection, "user-1", "op-1", &models.ReflectionJobInput{}); err != nil {
		t.Fatalf("Progress write failures must not fail the job: %v", err)
	}
	if store.calls[len(store.calls)-1] != "completed" {
		t.Errorf("Expected completion despite progress errors, got calls %v", store.calls)
	}
}
