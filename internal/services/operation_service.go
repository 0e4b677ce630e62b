package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"reflecta/internal/database"
	"reflecta/internal/models"
	"reflecta/internal/weekutil"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// OperationService is the durable store for AsyncOperation records. All
// lifecycle mutations go through the guarded update helpers so the state
// machine cannot be bypassed: each update filters on the expected current
// status and a lost race simply matches zero documents.
type OperationService struct {
	operations *mongo.Collection
	metrics    *Metrics
}

// NewOperationService creates a new operation store
func NewOperationService(mongoDB *database.MongoDB) *OperationService {
	return &OperationService{
		operations: mongoDB.Collection(database.CollectionOperations),
		metrics:    GetMetrics(),
	}
}

// Create inserts a new queued operation for the given week.
//
// Dedup is enforced by the partial unique index on (userId, operationType,
// weekKey) over active statuses: a concurrent duplicate insert fails at the
// storage layer, in which case the existing active operation is fetched and
// returned together with ErrDuplicateOperation.
func (s *OperationService) Create(
	ctx context.Context,
	userID string,
	operationType string,
	week weekutil.Week,
	input models.ReflectionJobInput,
	metadata map[string]any,
) (*models.AsyncOperation, error) {
	now := time.Now().UTC()
	op := &models.AsyncOperation{
		ID:            primitive.NewObjectID(),
		UserID:        userID,
		OperationType: operationType,
		WeekKey:       week.Key(),
		Status:        models.OperationQueued,
		InputData:     input,
		Metadata:      metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	_, err := s.operations.InsertOne(ctx, op)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			existing, findErr := s.findActive(ctx, userID, operationType, week.Key())
			if findErr != nil {
				// The conflicting operation reached a terminal state between
				// our insert and this read; retry once.
				_, retryErr := s.operations.InsertOne(ctx, op)
				if retryErr == nil {
					return op, nil
				}
				return nil, fmt.Errorf("failed to insert operation: %w", retryErr)
			}
			return existing, ErrDuplicateOperation
		}
		return nil, fmt.Errorf("failed to insert operation: %w", err)
	}

	if s.metrics != nil {
		trigger, _ := metadata["triggerType"].(string)
		if trigger == "" {
			trigger = "unknown"
		}
		s.metrics.OperationsStarted.WithLabelValues(trigger).Inc()
	}

	log.Printf("📥 [OPERATIONS] Created %s operation %s for user %s (%s)",
		operationType, op.ID.Hex(), userID, op.WeekKey)
	return op, nil
}

// Get returns the operation with the given hex id.
func (s *OperationService) Get(ctx context.Context, operationID string) (*models.AsyncOperation, error) {
	oid, err := primitive.ObjectIDFromHex(operationID)
	if err != nil {
		return nil, ErrOperationNotFound
	}

	var op models.AsyncOperation
	err = s.operations.FindOne(ctx, bson.M{"_id": oid}).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load operation: %w", err)
	}
	return &op, nil
}

// ListForUser returns the user's most recent operations, newest first.
func (s *OperationService) ListForUser(ctx context.Context, userID string, limit int64) ([]models.AsyncOperation, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(limit)
	cursor, err := s.operations.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query operations: %w", err)
	}
	defer cursor.Close(ctx)

	var ops []models.AsyncOperation
	if err := cursor.All(ctx, &ops); err != nil {
		return nil, fmt.Errorf("failed to decode operations: %w", err)
	}
	return ops, nil
}

// FindActiveOrCompleted is the scheduler's dedup gate: it returns any queued,
// processing or completed operation for the (user, type, week) tuple, or
// (nil, nil) when the week is still open for enqueueing.
func (s *OperationService) FindActiveOrCompleted(ctx context.Context, userID, operationType, weekKey string) (*models.AsyncOperation, error) {
	op, err := s.findByStatuses(ctx, userID, operationType, weekKey,
		models.OperationQueued, models.OperationProcessing, models.OperationCompleted)
	if errors.Is(err, ErrOperationNotFound) {
		return nil, nil
	}
	return op, err
}

// findActive returns the single queued-or-processing operation for the tuple.
func (s *OperationService) findActive(ctx context.Context, userID, operationType, weekKey string) (*models.AsyncOperation, error) {
	return s.findByStatuses(ctx, userID, operationType, weekKey,
		models.OperationQueued, models.OperationProcessing)
}

func (s *OperationService) findByStatuses(
	ctx context.Context,
	userID, operationType, weekKey string,
	statuses ...models.OperationStatus,
) (*models.AsyncOperation, error) {
	filter := bson.M{
		"userId":        userID,
		"operationType": operationType,
		"weekKey":       weekKey,
		"status":        bson.M{"$in": statuses},
	}

	var op models.AsyncOperation
	err := s.operations.FindOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}})).Decode(&op)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrOperationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query operation: %w", err)
	}
	return &op, nil
}

// MarkProcessing transitions a queued operation to processing. It is called
// exactly once per operation, by the dispatcher, immediately before the
// handler runs.
func (s *OperationService) MarkProcessing(ctx context.Context, operationID string) error {
	return s.guardedUpdate(ctx, operationID,
		[]models.OperationStatus{models.OperationQueued},
		models.OperationProcessing,
		bson.M{})
}

// Complete transitions a processing operation to completed with its result.
func (s *OperationService) Complete(ctx context.Context, operationID string, result map[string]any) error {
	err := s.guardedUpdate(ctx, operationID,
		[]models.OperationStatus{models.OperationProcessing},
		models.OperationCompleted,
		bson.M{"resultData": result})
	if err == nil && s.metrics != nil {
		s.metrics.OperationsCompleted.Inc()
	}
	return err
}

// Fail transitions an active operation to failed, recording the underlying
// cause's message verbatim.
func (s *OperationService) Fail(ctx context.Context, operationID string, errorMessage string) error {
	err := s.guardedUpdate(ctx, operationID,
		[]models.OperationStatus{models.OperationQueued, models.OperationProcessing},
		models.OperationFailed,
		bson.M{"errorMessage": errorMessage})
	if err == nil && s.metrics != nil {
		s.metrics.OperationsFailed.Inc()
	}
	return err
}

// guardedUpdate performs a status transition as a single conditional update.
// The filter carries the allowed current statuses, so an illegal transition
// (terminal state, concurrent mutation) matches nothing and is rejected.
func (s *OperationService) guardedUpdate(
	ctx context.Context,
	operationID string,
	from []models.OperationStatus,
	to models.OperationStatus,
	patch bson.M,
) error {
	oid, err := primitive.ObjectIDFromHex(operationID)
	if err != nil {
		return ErrOperationNotFound
	}

	for _, f := range from {
		if !models.ValidTransition(f, to) {
			return fmt.Errorf("invalid transition %s -> %s", f, to)
		}
	}

	set := bson.M{
		"status":    to,
		"updatedAt": time.Now().UTC(),
	}
	for k, v := range patch {
		set[k] = v
	}

	result, err := s.operations.UpdateOne(ctx,
		bson.M{"_id": oid, "status": bson.M{"$in": from}},
		bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update operation: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("operation %s not in expected state for transition to %s", operationID, to)
	}
	return nil
}

// RecordProgress stores an advisory progress snapshot in operation metadata.
// Progress is informational only; failures here never abort the pipeline.
func (s *OperationService) RecordProgress(ctx context.Context, operationID string, percent int, message string) error {
	oid, err := primitive.ObjectIDFromHex(operationID)
	if err != nil {
		return ErrOperationNotFound
	}

	_, err = s.operations.UpdateOne(ctx,
		bson.M{"_id": oid, "status": models.OperationProcessing},
		bson.M{"$set": bson.M{
			"metadata.progress":          percent,
			"metadata.progressMessage":   message,
			"metadata.progressUpdatedAt": time.Now().UTC(),
			"updatedAt":                  time.Now().UTC(),
		}})
	return err
}

// FailStaleProcessing fails operations stuck in processing longer than
// olderThan. Crash recovery: a dispatcher that died mid-run leaves its
// operation processing forever, blocking the dedup gate for that week.
func (s *OperationService) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.operations.UpdateMany(ctx,
		bson.M{
			"status":    models.OperationProcessing,
			"updatedAt": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":       models.OperationFailed,
			"errorMessage": fmt.Sprintf("operation stalled in processing for more than %s", olderThan),
			"updatedAt":    time.Now().UTC(),
		}})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep stale operations: %w", err)
	}
	return result.ModifiedCount, nil
}
