package jobs

import (
	"context"
	"log"
	"time"

	"reflecta/internal/services"
)

// StaleOperationSweeper fails operations stuck in processing past the
// timeout. A crashed instance leaves its operation in processing forever,
// which would block that user's week behind the dedup gate; failing the
// record lets a fresh trigger create a new one.
type StaleOperationSweeper struct {
	operations *services.OperationService
	timeout    time.Duration
}

// NewStaleOperationSweeper creates the sweeper. A non-positive timeout falls
// back to one hour.
func NewStaleOperationSweeper(operations *services.OperationService, timeout time.Duration) *StaleOperationSweeper {
	if timeout <= 0 {
		timeout = time.Hour
	}
	return &StaleOperationSweeper{operations: operations, timeout: timeout}
}

// Run fails every processing operation older than the timeout.
func (s *StaleOperationSweeper) Run(ctx context.Context) error {
	swept, err := s.operations.FailStaleProcessing(ctx, s.timeout)
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Printf("🧹 [STALE-OPS] Failed %d operations stuck in processing for over %v", swept, s.timeout)
	}
	return nil
}
