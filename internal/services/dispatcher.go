package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"reflecta/internal/logging"
	"reflecta/internal/models"
)

// OperationStore is the slice of the operation service the dispatcher needs.
type OperationStore interface {
	Get(ctx context.Context, operationID string) (*models.AsyncOperation, error)
	MarkProcessing(ctx context.Context, operationID string) error
	Complete(ctx context.Context, operationID string, result map[string]any) error
	Fail(ctx context.Context, operationID string, errorMessage string) error
	RecordProgress(ctx context.Context, operationID string, percent int, message string) error
}

// JobContext is handed to handlers so they can report progress and identify
// the operation they run under. Progress updates are advisory; a failed
// progress write never fails the job.
type JobContext struct {
	OperationID string
	UserID      string

	UpdateProgress func(percent int, message string)
}

// JobHandler processes one operation type. The returned map becomes the
// operation's resultData. A returned error fails the operation with the
// error's message recorded verbatim; domain outcomes (missing profile, no
// data) are returned inside the result, not as errors.
type JobHandler interface {
	Process(ctx context.Context, input *models.ReflectionJobInput, jobCtx *JobContext) (map[string]any, error)
}

// Dispatcher routes queued operations to their registered handlers and owns
// every lifecycle transition after creation. Handlers are injected at
// construction so tests can substitute doubles.
type Dispatcher struct {
	store    OperationStore
	handlers map[string]JobHandler
	metrics  *Metrics
}

// NewDispatcher creates a dispatcher with an explicit handler table.
func NewDispatcher(store OperationStore, handlers map[string]JobHandler) *Dispatcher {
	return &Dispatcher{
		store:    store,
		handlers: handlers,
		metrics:  GetMetrics(),
	}
}

// ProcessJob runs one queued operation to a terminal state.
//
// An unknown operation type fails before any state mutation. A handler error
// transitions the operation to failed and is returned to the caller so the
// API route or scheduler can react; the dispatcher is the only layer that
// catches handler errors.
func (d *Dispatcher) ProcessJob(ctx context.Context, operationType, userID, operationID string, input *models.ReflectionJobInput) (map[string]any, error) {
	handler, ok := d.handlers[operationType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperationType, operationType)
	}

	if err := d.store.MarkProcessing(ctx, operationID); err != nil {
		return nil, fmt.Errorf("failed to start operation %s: %w", operationID, err)
	}

	log.Printf("🚀 [DISPATCH] Processing operation %s (type=%s, user=%s)", operationID, operationType, userID)
	start := time.Now()

	jobCtx := &JobContext{
		OperationID: operationID,
		UserID:      userID,
		UpdateProgress: func(percent int, message string) {
			if err := d.store.RecordProgress(ctx, operationID, percent, message); err != nil {
				log.Printf("⚠️ [DISPATCH] Progress update failed for %s: %v", operationID, err)
			}
		},
	}

	result, err := handler.Process(ctx, input, jobCtx)
	elapsed := time.Since(start)

	if d.metrics != nil {
		d.metrics.OperationDuration.Observe(elapsed.Seconds())
	}

	if err != nil {
		log.Printf("❌ [DISPATCH] Operation %s failed after %s: %v", operationID, elapsed.Round(time.Millisecond), err)
		if failErr := d.store.Fail(ctx, operationID, err.Error()); failErr != nil {
			log.Printf("⚠️ [DISPATCH] Could not record failure for %s: %v", operationID, failErr)
		}
		return nil, err
	}

	if completeErr := d.store.Complete(ctx, operationID, result); completeErr != nil {
		return nil, fmt.Errorf("handler succeeded but completion write failed for %s: %w", operationID, completeErr)
	}

	// The terminal-state counters live in the operation store, which owns
	// the transition; the dispatcher only observes duration.
	logging.WithOperation(operationID, userID).Info("operation completed",
		"operation_type", operationType,
		"duration_ms", elapsed.Milliseconds())
	return result, nil
}

// HandlerRegistered reports whether a handler exists for the type. Used by
// the API layer to reject unknown types before creating an operation record.
func (d *Dispatcher) HandlerRegistered(operationType string) bool {
	_, ok := d.handlers[operationType]
	return ok
}
