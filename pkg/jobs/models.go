package jobs

import (
	"time"

	"github.com/google/uuid"
)

// JobState represents the lifecycle state of a background job.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRunning   JobState = "running"
	JobStateSucceeded JobState = "succeeded"
	JobStateFailed    JobState = "failed"
	JobStateCanceled  JobState = "canceled"
)

// Task names understood by the worker pool.
const (
	TaskEmployeeSync = "employee-sync"
	TaskCertReminder = "cert-reminder"
)

// Triggers record why a job was enqueued.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
)

// Job is one queued run of a background task.
type Job struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)" json:"id"`
	Task           string     `gorm:"column:task;type:varchar(50);index:idx_job_task_state,priority:1;not null" json:"task"`
	Trigger        string     `gorm:"column:trigger_source;type:varchar(20);not null" json:"trigger"`
	RequestedBy    string     `gorm:"column:requested_by;type:varchar(100);not null" json:"requestedBy"`
	RequestedAt    time.Time  `gorm:"column:requested_at;not null" json:"requestedAt"`
	State          JobState   `gorm:"column:state;type:varchar(20);index:idx_job_task_state,priority:2;index:idx_job_state;not null;default:queued" json:"state"`
	Message        string     `gorm:"column:message;type:text" json:"message,omitempty"`
	StartedAt      *time.Time `gorm:"column:started_at" json:"startedAt,omitempty"`
	FinishedAt     *time.Time `gorm:"column:finished_at" json:"finishedAt,omitempty"`
	AttemptCount   int        `gorm:"column:attempt_count;default:0" json:"attemptCount"`
	LastError      string     `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	IdempotencyKey *string    `gorm:"column:idempotency_key;type:varchar(100);uniqueIndex:uk_job_idemp_key" json:"-"`
	DurationMs     int64      `gorm:"column:duration_ms" json:"durationMs"`
}

// TableName returns the GORM table name.
func (Job) TableName() string { return "background_jobs" }

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	switch j.State {
	case JobStateSucceeded, JobStateFailed, JobStateCanceled:
		return true
	}
	return false
}

// NewTaskJob builds a queued job for task. Jobs of the same task share an
// idempotency key, so at most one of them is queued or running at a time.
func NewTaskJob(task, trigger, requestedBy string) *Job {
	key := task
	return &Job{
		ID:             uuid.NewString(),
		Task:           task,
		Trigger:        trigger,
		RequestedBy:    requestedBy,
		RequestedAt:    time.Now().UTC(),
		State:          JobStateQueued,
		IdempotencyKey: &key,
	}
}
