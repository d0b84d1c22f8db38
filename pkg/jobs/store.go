package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hrtools/healthcert/pkg/database"
)

var (
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrNotCancelable is returned when canceling a job that is no longer queued.
	ErrNotCancelable = errors.New("only queued jobs can be canceled")
)

var activeStates = []JobState{JobStateQueued, JobStateRunning}

var terminalStates = []JobState{JobStateSucceeded, JobStateFailed, JobStateCanceled}

// JobStore provides database operations for background jobs.
type JobStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *gorm.DB) *JobStore {
	return &JobStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// AutoMigrate creates or updates the background_jobs table.
func (s *JobStore) AutoMigrate() error {
	if err := s.db.AutoMigrate(&Job{}); err != nil {
		return fmt.Errorf("auto-migrate background_jobs: %w", err)
	}
	return nil
}

// JobListFilter defines filters for listing jobs.
type JobListFilter struct {
	Task        string
	State       string
	RequestedBy string
}

// Enqueue creates a new queued job. If the job carries an idempotency key and
// a queued or running job with the same key exists, that job is returned
// instead of creating a duplicate. Safe for concurrent use.
func (s *JobStore) Enqueue(ctx context.Context, job *Job) (*Job, error) {
	if job.State == "" {
		job.State = JobStateQueued
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = s.now()
	}

	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, fmt.Errorf("enqueue job: %w", err)
		}
		return job, nil
	}

	key := *job.IdempotencyKey
	var result *Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.activeByKey(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			result = existing
			return nil
		}

		// Terminal jobs release the key so the unique index admits the new one.
		if err := tx.Model(&Job{}).
			Where("idempotency_key = ? AND state IN ?", key, terminalStates).
			Update("idempotency_key", nil).Error; err != nil {
			return fmt.Errorf("release idempotency key: %w", err)
		}
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		result = job
		return nil
	})
	if err == nil {
		return result, nil
	}
	if database.IsDuplicateKey(err) {
		// Another caller enqueued the same key between our check and insert.
		existing, lookupErr := s.activeByKey(s.db.WithContext(ctx), key)
		if lookupErr == nil && existing != nil {
			return existing, nil
		}
	}
	return nil, fmt.Errorf("enqueue job: %w", err)
}

func (s *JobStore) activeByKey(q *gorm.DB, key string) (*Job, error) {
	var job Job
	err := q.Where("idempotency_key = ? AND state IN ?", key, activeStates).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check idempotency key: %w", err)
	}
	return &job, nil
}

// Claim atomically picks the oldest queued job and transitions it to running.
// Row locks use SKIP LOCKED on dialects that support it.
// Returns nil if no jobs are available.
func (s *JobStore) Claim(ctx context.Context, maxRetries int) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("state = ? AND attempt_count <= ?", JobStateQueued, maxRetries).
			Order("requested_at ASC").
			Limit(1)
		if tx.Dialector.Name() != "sqlite" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&job).Error; err != nil {
			return err
		}
		if job.ID == "" {
			return nil
		}

		res := tx.Model(&Job{}).Where("id = ? AND state = ?", job.ID, JobStateQueued).
			Updates(map[string]any{
				"state":         JobStateRunning,
				"started_at":    s.now(),
				"attempt_count": gorm.Expr("attempt_count + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			job = Job{}
			return nil
		}
		return tx.First(&job, "id = ?", job.ID).Error
	})
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

// Complete marks a job as succeeded.
func (s *JobStore) Complete(ctx context.Context, jobID, message string, durationMs int64) error {
	result := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(map[string]any{
		"state":       JobStateSucceeded,
		"finished_at": s.now(),
		"duration_ms": durationMs,
		"message":     message,
	})
	if result.Error != nil {
		return fmt.Errorf("complete job: %w", result.Error)
	}
	return nil
}

// Fail records a failed attempt. Jobs with attempts left are re-queued,
// otherwise they become failed. The returned state is the one stored.
func (s *JobStore) Fail(ctx context.Context, jobID, errMsg string, maxRetries int) (JobState, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("load job for fail: %w", err)
	}
	if job == nil {
		return "", ErrJobNotFound
	}

	updates := map[string]any{
		"last_error":  errMsg,
		"finished_at": s.now(),
	}
	state := JobStateFailed
	if job.AttemptCount < maxRetries {
		state = JobStateQueued
		updates["started_at"] = nil
		updates["finished_at"] = nil
	} else {
		updates["message"] = "max retries exceeded: " + errMsg
	}
	updates["state"] = state

	if err := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", jobID).Updates(updates).Error; err != nil {
		return "", fmt.Errorf("fail job: %w", err)
	}
	return state, nil
}

// Cancel marks a queued job as canceled. Running jobs are left to finish.
func (s *JobStore) Cancel(ctx context.Context, jobID string) error {
	result := s.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND state = ?", jobID, JobStateQueued).
		Updates(map[string]any{
			"state":       JobStateCanceled,
			"finished_at": s.now(),
			"message":     "canceled",
		})
	if result.Error != nil {
		return fmt.Errorf("cancel job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		job, err := s.Get(ctx, jobID)
		if err != nil {
			return err
		}
		if job == nil {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return fmt.Errorf("%w: job %s is %s", ErrNotCancelable, jobID, job.State)
	}
	return nil
}

// Get retrieves a job by ID. It returns nil when the job does not exist.
func (s *JobStore) Get(ctx context.Context, jobID string) (*Job, error) {
	var job Job
	if err := s.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &job, nil
}

// List returns jobs matching filter, newest first with ties broken by id.
// pageToken is the nextPageToken of a previous call: the requested_at and id
// of the last row returned, so rows sharing a timestamp are not skipped.
func (s *JobStore) List(ctx context.Context, filter JobListFilter, pageSize int, pageToken string) ([]Job, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&Job{})
		if filter.Task != "" {
			q = q.Where("task = ?", filter.Task)
		}
		if filter.State != "" {
			q = q.Where("state = ?", filter.State)
		}
		if filter.RequestedBy != "" {
			q = q.Where("requested_by = ?", filter.RequestedBy)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery().Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count jobs: %w", err)
	}

	query := buildQuery().Order("requested_at DESC").Order("id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		at, id, err := decodePageToken(pageToken)
		if err != nil {
			return nil, "", 0, err
		}
		query = query.Where("(requested_at < ? OR (requested_at = ? AND id < ?))", at, at, id)
	}

	var records []Job
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list jobs: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = encodePageToken(records[pageSize-1])
		records = records[:pageSize]
	}
	return records, nextToken, int(totalSize), nil
}

func encodePageToken(j Job) string {
	return j.RequestedAt.UTC().Format(time.RFC3339Nano) + "_" + j.ID
}

func decodePageToken(token string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(token, "_")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("invalid page token %q", token)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid page token: %w", err)
	}
	return at.UTC(), id, nil
}

// CleanupStuckJobs moves running jobs whose started_at is older than
// claimTimeout back to queued.
func (s *JobStore) CleanupStuckJobs(ctx context.Context, claimTimeout time.Duration) (int64, error) {
	cutoff := s.now().Add(-claimTimeout)
	result := s.db.WithContext(ctx).Model(&Job{}).
		Where("state = ? AND started_at < ?", JobStateRunning, cutoff).
		Updates(map[string]any{
			"state":      JobStateQueued,
			"started_at": nil,
			"last_error": "timed out (stuck job recovery)",
		})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup stuck jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteOlderThan removes terminal jobs that finished before cutoff.
func (s *JobStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("state IN ? AND finished_at < ?", terminalStates, cutoff).
		Delete(&Job{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
