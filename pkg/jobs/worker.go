package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hrtools/healthcert/pkg/metrics"
)

// Task executes one kind of background job. The returned message is stored
// on the job when it succeeds.
type Task interface {
	Run(ctx context.Context, job *Job) (message string, err error)
}

// TaskFunc adapts a function to Task.
type TaskFunc func(ctx context.Context, job *Job) (string, error)

// Run calls f.
func (f TaskFunc) Run(ctx context.Context, job *Job) (string, error) { return f(ctx, job) }

// WorkerPool processes queued jobs using a pool of goroutines.
type WorkerPool struct {
	store   *JobStore
	tasks   map[string]Task
	cfg     *JobConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewWorkerPool creates a new worker pool dispatching jobs to tasks by name.
func NewWorkerPool(store *JobStore, tasks map[string]Task, cfg *JobConfig, m *metrics.Metrics, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = DefaultJobConfig()
	}
	return &WorkerPool{
		store:   store,
		tasks:   tasks,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With(zap.String("component", "job-worker")),
	}
}

// Run starts cfg.Concurrency polling workers plus a cleanup loop. It blocks
// until ctx is cancelled, then waits for all of them to finish.
func (wp *WorkerPool) Run(ctx context.Context) {
	if wp.store == nil || !wp.cfg.Enabled {
		wp.logger.Info("job worker pool disabled")
		return
	}

	wp.logger.Info("job worker pool starting",
		zap.Int("concurrency", wp.cfg.Concurrency),
		zap.Int("maxRetries", wp.cfg.MaxRetries),
		zap.Duration("pollInterval", wp.cfg.PollInterval))

	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		wp.cleanupLoop(ctx)
	}()

	for i := 0; i < wp.cfg.Concurrency; i++ {
		wp.wg.Add(1)
		go func(workerID int) {
			defer wp.wg.Done()
			wp.workerLoop(ctx, workerID)
		}(i)
	}

	<-ctx.Done()
	wp.logger.Info("job worker pool shutting down, waiting for workers to finish")
	wp.wg.Wait()
	wp.logger.Info("job worker pool stopped")
}

func (wp *WorkerPool) workerLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(wp.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.processOne(ctx, workerID)
		}
	}
}

// processOne claims and runs a single job. It reports whether a job was found.
func (wp *WorkerPool) processOne(ctx context.Context, workerID int) bool {
	job, err := wp.store.Claim(ctx, wp.cfg.MaxRetries)
	if err != nil {
		if ctx.Err() == nil {
			wp.logger.Error("failed to claim job", zap.Int("workerID", workerID), zap.Error(err))
		}
		return false
	}
	if job == nil {
		return false
	}

	log := wp.logger.With(
		zap.Int("workerID", workerID),
		zap.String("jobID", job.ID),
		zap.String("task", job.Task),
		zap.Int("attempt", job.AttemptCount))
	log.Info("processing job")

	task, ok := wp.tasks[job.Task]
	if !ok {
		wp.fail(ctx, log, job, fmt.Errorf("no task registered for %q", job.Task), 0)
		return true
	}

	start := time.Now()
	message, err := wp.runTask(ctx, task, job)
	if err != nil {
		wp.fail(ctx, log, job, err, wp.cfg.MaxRetries)
		return true
	}

	elapsed := time.Since(start)
	if err := wp.store.Complete(context.WithoutCancel(ctx), job.ID, message, elapsed.Milliseconds()); err != nil {
		log.Error("failed to mark job as complete", zap.Error(err))
		return true
	}
	wp.metrics.Job(job.Task, string(JobStateSucceeded))
	log.Info("job completed", zap.String("message", message), zap.Duration("duration", elapsed))
	return true
}

func (wp *WorkerPool) runTask(ctx context.Context, task Task, job *Job) (message string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task.Run(ctx, job)
}

func (wp *WorkerPool) fail(ctx context.Context, log *zap.Logger, job *Job, cause error, maxRetries int) {
	log.Error("job failed", zap.Error(cause))
	state, err := wp.store.Fail(context.WithoutCancel(ctx), job.ID, cause.Error(), maxRetries)
	if err != nil {
		log.Error("failed to mark job as failed", zap.Error(err))
		return
	}
	if state == JobStateFailed {
		wp.metrics.Job(job.Task, string(JobStateFailed))
	}
}

func (wp *WorkerPool) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wp.cleanup(ctx)
		}
	}
}

func (wp *WorkerPool) cleanup(ctx context.Context) {
	if wp.cfg.ClaimTimeout > 0 {
		recovered, err := wp.store.CleanupStuckJobs(ctx, wp.cfg.ClaimTimeout)
		if err != nil {
			wp.logger.Error("failed to cleanup stuck jobs", zap.Error(err))
		} else if recovered > 0 {
			wp.logger.Info("recovered stuck jobs", zap.Int64("count", recovered))
		}
	}
	if wp.cfg.RetentionDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -wp.cfg.RetentionDays)
		deleted, err := wp.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			wp.logger.Error("failed to delete old jobs", zap.Error(err))
		} else if deleted > 0 {
			wp.logger.Info("deleted old jobs", zap.Int64("count", deleted))
		}
	}
}
