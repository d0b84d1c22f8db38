package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hrtools/healthcert/pkg/directory"
	"github.com/hrtools/healthcert/pkg/reminder"
)

// Syncer runs reconciliation passes. *directory.Engine satisfies it.
type Syncer interface {
	Sync(ctx context.Context) (*directory.SyncResult, error)
}

// Reminder runs reminder passes. *reminder.Planner satisfies it.
type Reminder interface {
	Run(ctx context.Context, today time.Time) (*reminder.Result, error)
}

// SyncTask runs one employee reconciliation pass. It does not consult the
// sync flag: the job's idempotency key keeps passes from overlapping, and the
// pass clears a flag left set by a process that died mid-sync.
func SyncTask(s Syncer) Task {
	return TaskFunc(func(ctx context.Context, _ *Job) (string, error) {
		res, err := s.Sync(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("added %d, updated %d, deactivated %d, skipped %d, departments %d",
			res.Added, res.Updated, res.Deactivated, res.Skipped, res.Departments), nil
	})
}

// ReminderTask runs one reminder pass for the day now falls on.
func ReminderTask(r Reminder, now func() time.Time) Task {
	if now == nil {
		now = time.Now
	}
	return TaskFunc(func(ctx context.Context, _ *Job) (string, error) {
		res, err := r.Run(ctx, now())
		if err != nil {
			return "", err
		}
		if !res.Enabled {
			return "skipped: reminders disabled", nil
		}
		return fmt.Sprintf("planned %d, sent %d, failed %d, missing contact %d",
			res.Planned, res.Sent, res.Failed, res.MissingContact), nil
	})
}
