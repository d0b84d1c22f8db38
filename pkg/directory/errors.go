package directory

import (
	"errors"
	"fmt"
)

var (
	// ErrEmployeeNotFound is returned when a local employee does not exist.
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrRosterEntryNotFound is returned when the roster has no such account.
	ErrRosterEntryNotFound = errors.New("roster entry not found")
	// ErrDepartmentNotFound is returned when a department id does not exist.
	ErrDepartmentNotFound = errors.New("department not found")
	// ErrSyncInProgress signals that a reconciliation pass is running and
	// mutating requests should be retried later.
	ErrSyncInProgress = errors.New("employee sync in progress, retry later")
)

// SyncError reports a failed reconciliation pass.
type SyncError struct {
	RunID string
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("employee sync %s failed at %s: %v", e.RunID, e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
