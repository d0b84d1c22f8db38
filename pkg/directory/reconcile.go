package directory

import (
	"context"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hrtools/healthcert/pkg/database"
	"github.com/hrtools/healthcert/pkg/metrics"
)

// Engine converges the local employee mirror and department tree to the
// external roster.
type Engine struct {
	employees   *EmployeeStore
	departments *DepartmentStore
	roster      RosterSource
	flag        SyncFlag
	metrics     *metrics.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the collectors the engine reports to.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates a reconciliation engine over the local db.
func NewEngine(db *gorm.DB, roster RosterSource, flag SyncFlag, opts ...EngineOption) *Engine {
	e := &Engine{
		employees:   NewEmployeeStore(db),
		departments: NewDepartmentStore(db),
		roster:      roster,
		flag:        flag,
		logger:      zap.NewNop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "directory-sync"))
	return e
}

// Employees exposes the employee store backing the engine.
func (e *Engine) Employees() *EmployeeStore { return e.employees }

// Departments exposes the department store backing the engine.
func (e *Engine) Departments() *DepartmentStore { return e.departments }

// IsSyncInProgress reads the sync flag. A flag that cannot be read is
// reported as not in progress.
func (e *Engine) IsSyncInProgress(ctx context.Context) bool {
	v, err := e.flag.InProgress(ctx)
	if err != nil {
		e.logger.Warn("failed to read sync flag", zap.Error(err))
		return false
	}
	return v
}

// Guard returns ErrSyncInProgress while a pass is running.
func (e *Engine) Guard(ctx context.Context) error {
	if e.IsSyncInProgress(ctx) {
		return ErrSyncInProgress
	}
	return nil
}

// ResetSyncFlag clears the sync flag. It recovers from a pass that died
// without reaching its own cleanup.
func (e *Engine) ResetSyncFlag(ctx context.Context) error {
	was := e.IsSyncInProgress(ctx)
	if err := e.flag.SetInProgress(ctx, false); err != nil {
		return fmt.Errorf("reset sync flag: %w", err)
	}
	if was {
		e.logger.Warn("sync flag was set and has been cleared")
	}
	return nil
}

// Sync runs one reconciliation pass. The sync flag is raised before any
// mutation and cleared on every exit path.
func (e *Engine) Sync(ctx context.Context) (result *SyncResult, err error) {
	start := e.now()
	runID := uuid.NewString()
	log := e.logger.With(zap.String("runID", runID))

	if err := e.flag.SetInProgress(ctx, true); err != nil {
		return nil, &SyncError{RunID: runID, Stage: "set-flag", Err: err}
	}
	defer func() {
		if cerr := e.flag.SetInProgress(context.WithoutCancel(ctx), false); cerr != nil {
			log.Error("failed to clear sync flag", zap.Error(cerr))
			if err == nil {
				result, err = nil, &SyncError{RunID: runID, Stage: "clear-flag", Err: cerr}
			}
		}
		if err != nil {
			e.metrics.SyncPass("failure", e.now().Sub(start).Seconds(), 0, 0, 0)
		}
	}()

	log.Info("employee sync started")
	res := &SyncResult{RunID: runID, StartTime: start}

	entries, err := e.roster.FetchAll(ctx)
	if err != nil {
		return nil, &SyncError{RunID: runID, Stage: "fetch-roster", Err: err}
	}
	local, err := e.employees.ListAll(ctx)
	if err != nil {
		return nil, &SyncError{RunID: runID, Stage: "load-local", Err: err}
	}
	log.Info("roster fetched", zap.Int("remote", len(entries)), zap.Int("local", len(local)))

	byKey := make(map[string]*Employee, len(local))
	for i := range local {
		byKey[strings.TrimSpace(local[i].SfUserID)] = &local[i]
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	stamp := e.now()
	for _, entry := range entries {
		key := entry.Key()
		if key == "" {
			res.Skipped++
			log.Warn("skipping roster entry without sf user id", zap.String("name", entry.Name))
			continue
		}
		if !seen.Add(key) {
			res.Skipped++
			log.Warn("skipping repeated roster entry", zap.String("sfUserId", key))
			continue
		}
		added, err := e.apply(ctx, entry, byKey[key], stamp)
		if err != nil {
			return nil, &SyncError{RunID: runID, Stage: "apply " + key, Err: err}
		}
		if added {
			res.Added++
		} else {
			res.Updated++
		}
	}

	var absent []uint
	for i := range local {
		if seen.Contains(strings.TrimSpace(local[i].SfUserID)) {
			continue
		}
		absent = append(absent, local[i].ID)
		if local[i].IsActive {
			res.Deactivated++
		}
	}
	if err := e.employees.Deactivate(ctx, absent, stamp); err != nil {
		return nil, &SyncError{RunID: runID, Stage: "deactivate", Err: err}
	}

	n, err := e.rebuildDepartments(ctx, entries)
	if err != nil {
		return nil, &SyncError{RunID: runID, Stage: "departments", Err: err}
	}
	res.Departments = n
	if err := e.RefreshMemberCounts(ctx); err != nil {
		return nil, &SyncError{RunID: runID, Stage: "member-counts", Err: err}
	}

	res.EndTime = e.now()
	res.DurationMs = res.EndTime.Sub(start).Milliseconds()
	e.metrics.SyncPass("success", res.EndTime.Sub(start).Seconds(), res.Added, res.Updated, res.Deactivated)
	log.Info("employee sync completed",
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("deactivated", res.Deactivated),
		zap.Int("skipped", res.Skipped),
		zap.Int("departments", res.Departments),
		zap.Int64("durationMs", res.DurationMs))
	return res, nil
}

// ImportEmployee creates or refreshes a single employee from the roster, as
// done on first login of an account the mirror has not seen yet.
func (e *Engine) ImportEmployee(ctx context.Context, sfUserID string) (*Employee, error) {
	key := strings.TrimSpace(sfUserID)
	entry, err := e.roster.FetchOne(ctx, key)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", ErrRosterEntryNotFound, key)
	}
	existing, err := e.employees.GetBySfUserID(ctx, key)
	if err != nil {
		return nil, err
	}
	if _, err := e.apply(ctx, *entry, existing, e.now()); err != nil {
		return nil, err
	}
	e.logger.Info("employee imported from roster", zap.String("sfUserId", key))
	return e.employees.GetBySfUserID(ctx, key)
}

// apply upserts one roster entry. It reports whether a new row was inserted.
func (e *Engine) apply(ctx context.Context, entry RosterEntry, existing *Employee, stamp time.Time) (bool, error) {
	if existing == nil {
		emp := employeeFromRoster(entry, stamp)
		err := e.employees.Create(ctx, emp)
		if err == nil {
			return true, nil
		}
		if !database.IsDuplicateKey(err) {
			return false, err
		}
		existing, err = e.employees.GetBySfUserID(ctx, entry.Key())
		if err != nil {
			return false, err
		}
		if existing == nil {
			return false, fmt.Errorf("employee %s conflicted on insert but was not found", entry.Key())
		}
		e.logger.Warn("insert raced with another writer, updating instead", zap.String("sfUserId", entry.Key()))
	}
	mergeRoster(existing, entry, stamp)
	return false, e.employees.Save(ctx, existing)
}

func employeeFromRoster(entry RosterEntry, stamp time.Time) *Employee {
	emp := &Employee{SfUserID: entry.Key()}
	mergeRoster(emp, entry, stamp)
	if emp.Password == "" {
		emp.Password = emp.SfUserID
	}
	return emp
}

// mergeRoster copies roster-sourced fields onto emp. Mobile and
// DingTalkUserID are not roster fields and are left as they are.
func mergeRoster(emp *Employee, entry RosterEntry, stamp time.Time) {
	emp.MpNumber = entry.MpNumber
	if entry.Password != "" {
		emp.Password = entry.Password
	}
	emp.Name = entry.Name
	emp.DepartName = strings.TrimSpace(entry.DepartName)
	emp.SupDep = strings.TrimSpace(entry.SupDep)
	emp.SupervisorSfUserID = entry.SupervisorSfUserID
	emp.JobName = entry.JobName
	emp.PositionName = entry.PositionName
	emp.Role = entry.Role
	emp.IsFrontlineWorker = entry.Frontline()
	emp.Email = entry.Email
	emp.IsActive = true
	t := stamp
	emp.SyncTime = &t
}
