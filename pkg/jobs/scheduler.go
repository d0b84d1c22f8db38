package jobs

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
)

// Schedule fires a task at the given wall-clock hours (0-23).
type Schedule struct {
	Task  string
	Hours []int
}

// Scheduler enqueues scheduled tasks. Each task is enqueued at most once per
// hour slot; the job idempotency key also collapses it with a queued or
// running job of the same task.
type Scheduler struct {
	store     *JobStore
	schedules []Schedule
	tick      time.Duration
	now       func() time.Time
	logger    *zap.Logger

	mu    sync.Mutex
	fired map[string]string
}

// NewScheduler creates a scheduler that checks its schedules every tick.
func NewScheduler(store *JobStore, schedules []Schedule, tick time.Duration, logger *zap.Logger) *Scheduler {
	if tick <= 0 {
		tick = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:     store,
		schedules: schedules,
		tick:      tick,
		now:       time.Now,
		logger:    logger.With(zap.String("component", "job-scheduler")),
		fired:     make(map[string]string),
	}
}

// SetClock overrides the time source. Hours are evaluated in the clock's
// location.
func (s *Scheduler) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Run checks the schedules on every tick until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	s.logger.Info("job scheduler starting", zap.Int("schedules", len(s.schedules)))
	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick enqueues every task scheduled for the current hour that has not fired
// in this slot yet, and returns the jobs it enqueued or reused.
func (s *Scheduler) Tick(ctx context.Context) []*Job {
	now := s.now()
	slot := now.Format("2006-01-02T15")

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Job
	for _, sc := range s.schedules {
		if !mapset.NewThreadUnsafeSet(sc.Hours...).Contains(now.Hour()) {
			continue
		}
		if s.fired[sc.Task] == slot {
			continue
		}
		job, err := s.store.Enqueue(ctx, NewTaskJob(sc.Task, TriggerSchedule, "scheduler"))
		if err != nil {
			s.logger.Error("failed to enqueue scheduled job", zap.String("task", sc.Task), zap.Error(err))
			continue
		}
		s.fired[sc.Task] = slot
		s.logger.Info("scheduled job enqueued",
			zap.String("task", sc.Task),
			zap.String("jobID", job.ID),
			zap.String("slot", slot))
		out = append(out, job)
	}
	return out
}

// Trigger enqueues task on demand. A queued or running job of the same task
// is returned instead of a new one.
func Trigger(ctx context.Context, store *JobStore, task, requestedBy string) (*Job, error) {
	return store.Enqueue(ctx, NewTaskJob(task, TriggerManual, requestedBy))
}
