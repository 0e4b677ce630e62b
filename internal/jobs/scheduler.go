package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Task is one schedulable unit of background work.
type Task func(ctx context.Context) error

// JobScheduler runs registered tasks on cron schedules. All schedules are
// evaluated in UTC; per-user timezone handling belongs to the tasks
// themselves.
type JobScheduler struct {
	scheduler gocron.Scheduler
	tasks     map[string]Task
	jobs      map[string]gocron.Job
	mu        sync.Mutex
	running   bool
}

// NewJobScheduler creates a stopped scheduler.
func NewJobScheduler() (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &JobScheduler{
		scheduler: scheduler,
		tasks:     make(map[string]Task),
		jobs:      make(map[string]gocron.Job),
	}, nil
}

// Register adds a task under a cron expression. Must be called before Start.
func (s *JobScheduler) Register(name, cronExpr string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(func() {
			s.runTask(name, task)
		}),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to register job %s: %w", name, err)
	}

	s.tasks[name] = task
	s.jobs[name] = job
	log.Printf("✅ [SCHEDULER] Registered job %s (cron: %s)", name, cronExpr)
	return nil
}

// Start begins running all registered jobs on their schedules.
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Started with %d jobs", len(s.jobs))
}

// RunNow executes a registered task immediately, outside its schedule.
func (s *JobScheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	task, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no job registered as %s", name)
	}
	return task(ctx)
}

// Shutdown stops the scheduler and waits for running jobs to finish.
func (s *JobScheduler) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	log.Println("🛑 [SCHEDULER] Shutting down...")
	return s.scheduler.Shutdown()
}

func (s *JobScheduler) runTask(name string, task Task) {
	start := time.Now()
	log.Printf("▶️  [SCHEDULER] Running job %s", name)

	if err := task(context.Background()); err != nil {
		log.Printf("❌ [SCHEDULER] Job %s failed after %v: %v", name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("✅ [SCHEDULER] Job %s finished in %v", name, time.Since(start).Round(time.Millisecond))
}
