package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"reflecta/internal/logging"
	"reflecta/internal/models"
	"reflecta/internal/services"
	"reflecta/internal/weekutil"
)

// UserLister returns every user eligible for automatic generation.
type UserLister interface {
	ListAutoGenerateUsers(ctx context.Context) ([]models.User, error)
}

// OperationCreator is the slice of the operation store the scheduler needs
// for its dedup gate and enqueue.
type OperationCreator interface {
	FindActiveOrCompleted(ctx context.Context, userID, operationType, weekKey string) (*models.AsyncOperation, error)
	Create(ctx context.Context, userID, operationType string, week weekutil.Week, input models.ReflectionJobInput, metadata map[string]any) (*models.AsyncOperation, error)
}

// JobRunner executes a queued operation to a terminal state.
type JobRunner interface {
	ProcessJob(ctx context.Context, operationType, userID, operationID string, input *models.ReflectionJobInput) (map[string]any, error)
}

// Locker is the distributed lock used to keep multiple instances from
// running the same hourly scan.
type Locker interface {
	AcquireLock(ctx context.Context, lockKey, lockValue string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

// ReflectionScheduler scans reflection preferences once per hour and
// enqueues a weekly reflection job for every user whose local day and hour
// match their preference. Each user is processed independently: one user's
// failure is logged on their operation and never aborts the scan.
type ReflectionScheduler struct {
	users      UserLister
	operations OperationCreator
	runner     JobRunner
	locker     Locker // nil when Redis is not configured
	instanceID string
}

// NewReflectionScheduler creates the hourly scheduler. locker may be nil for
// single-instance deployments.
func NewReflectionScheduler(users UserLister, operations OperationCreator, runner JobRunner, locker Locker) *ReflectionScheduler {
	return &ReflectionScheduler{
		users:      users,
		operations: operations,
		runner:     runner,
		locker:     locker,
		instanceID: uuid.New().String(),
	}
}

// Run is the scheduler's Task entry point.
func (s *ReflectionScheduler) Run(ctx context.Context) error {
	return s.CheckAndProcessUsers(ctx, time.Now())
}

// CheckAndProcessUsers performs one hourly scan. Returns an error only when
// the scan itself cannot run (user listing failed); per-user failures are
// contained.
func (s *ReflectionScheduler) CheckAndProcessUsers(ctx context.Context, now time.Time) error {
	if s.locker != nil {
		// Hour-bucketed key: a slow scan overlapping the next instance's
		// attempt in the same hour is skipped, the next hour gets a new key.
		lockKey := fmt.Sprintf("reflection-scan:%s", now.UTC().Format("2006-01-02T15"))
		acquired, err := s.locker.AcquireLock(ctx, lockKey, s.instanceID, 30*time.Minute)
		if err != nil {
			return fmt.Errorf("scan lock unavailable: %w", err)
		}
		if !acquired {
			log.Printf("⏭️ [REFLECTION-SCAN] Scan for %s already running on another instance", lockKey)
			return nil
		}
		defer func() {
			if _, err := s.locker.ReleaseLock(ctx, lockKey, s.instanceID); err != nil {
				log.Printf("⚠️ [REFLECTION-SCAN] Failed to release scan lock: %v", err)
			}
		}()
	}

	users, err := s.users.ListAutoGenerateUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list auto-generate users: %w", err)
	}

	if metrics := services.GetMetrics(); metrics != nil {
		metrics.SchedulerScans.Inc()
	}
	log.Printf("🔍 [REFLECTION-SCAN] Checking %d users with auto-generate enabled", len(users))

	var enqueued, skipped, failed int
	for i := range users {
		user := &users[i]
		if err := s.ProcessUser(ctx, user, now); err != nil {
			if errors.Is(err, errNotDue) || errors.Is(err, errAlreadyCovered) {
				skipped++
				continue
			}
			failed++
			log.Printf("❌ [REFLECTION-SCAN] User %s failed: %v", user.UserID, err)
			continue
		}
		enqueued++
	}

	log.Printf("✅ [REFLECTION-SCAN] Scan complete: %d enqueued, %d skipped, %d failed", enqueued, skipped, failed)
	return nil
}

// Internal skip reasons; never surfaced outside the scan loop.
var (
	errNotDue         = errors.New("user not due this hour")
	errAlreadyCovered = errors.New("week already has an operation")
)

// ProcessUser enqueues and runs one user's weekly reflection when they are
// due at the given instant. The target week is the most recently completed
// Monday-start week, not the running one.
func (s *ReflectionScheduler) ProcessUser(ctx context.Context, user *models.User, now time.Time) error {
	metrics := services.GetMetrics()

	location, err := time.LoadLocation(user.ReflectionPreferences.Timezone)
	if err != nil {
		if metrics != nil {
			metrics.SchedulerUsersSkipped.WithLabelValues("bad_timezone").Inc()
		}
		return fmt.Errorf("invalid timezone %q for user %s: %w", user.ReflectionPreferences.Timezone, user.UserID, err)
	}

	localNow := now.In(location)
	if !user.ReflectionPreferences.DueAt(localNow) {
		if metrics != nil {
			metrics.SchedulerUsersSkipped.WithLabelValues("not_due").Inc()
		}
		return errNotDue
	}

	// The week the user just finished is defined by their calendar, not the
	// server's: across the date line local Monday can still be server Sunday.
	week := weekutil.LastCompletedWeek(localNow)

	existing, err := s.operations.FindActiveOrCompleted(ctx, user.UserID, models.OperationTypeWeeklyReflection, week.Key())
	if err != nil {
		return fmt.Errorf("dedup check failed for user %s: %w", user.UserID, err)
	}
	if existing != nil {
		if metrics != nil {
			metrics.SchedulerUsersSkipped.WithLabelValues("already_covered").Inc()
		}
		log.Printf("⏭️ [REFLECTION-SCAN] User %s already has operation %s for %s (%s)",
			user.UserID, existing.ID.Hex(), week.Key(), existing.Status)
		return errAlreadyCovered
	}

	input := models.ReflectionJobInput{
		UserID:              user.UserID,
		WeekStart:           week.Start,
		WeekEnd:             week.End,
		WeekNumber:          week.WeekNumber,
		Year:                week.Year,
		IncludeIntegrations: user.ReflectionPreferences.IncludeIntegrations,
	}
	metadata := map[string]any{"triggerType": models.TriggerScheduled}

	op, err := s.operations.Create(ctx, user.UserID, models.OperationTypeWeeklyReflection, week, input, metadata)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateOperation) {
			// Lost the race to another instance; their operation covers the week.
			if metrics != nil {
				metrics.SchedulerUsersSkipped.WithLabelValues("already_covered").Inc()
			}
			return errAlreadyCovered
		}
		return fmt.Errorf("failed to enqueue operation for user %s: %w", user.UserID, err)
	}

	if metrics != nil {
		metrics.SchedulerUsersEnqueued.Inc()
	}
	logging.WithWeek(logging.WithOperation(op.ID.Hex(), user.UserID), week.Key()).Info("scheduled reflection enqueued")

	// Failures here are already recorded on the operation by the dispatcher;
	// returning nil keeps the scan going and avoids double-counting them.
	if _, err := s.runner.ProcessJob(ctx, models.OperationTypeWeeklyReflection, user.UserID, op.ID.Hex(), &input); err != nil {
		log.Printf("❌ [REFLECTION-SCAN] Operation %s for user %s failed: %v", op.ID.Hex(), user.UserID, err)
	}
	return nil
}
