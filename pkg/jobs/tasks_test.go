package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtools/healthcert/pkg/directory"
	"github.com/hrtools/healthcert/pkg/reminder"
	"github.com/hrtools/healthcert/pkg/sysconfig"
)

type fakeSyncer struct {
	result *directory.SyncResult
	err    error
	calls  int
}

func (f *fakeSyncer) Sync(context.Context) (*directory.SyncResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeReminder struct {
	result *reminder.Result
	err    error
	day    time.Time
}

func (f *fakeReminder) Run(_ context.Context, today time.Time) (*reminder.Result, error) {
	f.day = today
	return f.result, f.err
}

func TestSyncTask(t *testing.T) {
	ctx := context.Background()

	s := &fakeSyncer{result: &directory.SyncResult{Added: 2, Updated: 5, Deactivated: 1}}
	msg, err := SyncTask(s).Run(ctx, &Job{})
	require.NoError(t, err)
	assert.Equal(t, "added 2, updated 5, deactivated 1, skipped 0, departments 0", msg)

	failing := &fakeSyncer{err: errors.New("roster down")}
	_, err = SyncTask(failing).Run(ctx, &Job{})
	assert.EqualError(t, err, "roster down")
}

func TestSyncTaskRecoversFromLeftoverFlag(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	require.NoError(t, directory.NewEmployeeStore(db).AutoMigrate())
	require.NoError(t, directory.NewDepartmentStore(db).AutoMigrate())
	settings := sysconfig.NewStore(db)
	require.NoError(t, settings.AutoMigrate())

	require.NoError(t, db.Table(directory.DefaultRosterTable).AutoMigrate(&directory.RosterEntry{}))
	require.NoError(t, db.Table(directory.DefaultRosterTable).Create(&[]directory.RosterEntry{
		{SfUserID: "u1", Name: "Alice", DepartName: "Sales"},
		{SfUserID: "u2", Name: "Bob", DepartName: "Sales"},
	}).Error)

	// A pass killed before its cleanup leaves the persisted flag raised.
	flag := directory.NewConfigSyncFlag(settings)
	require.NoError(t, flag.SetInProgress(ctx, true))

	engine := directory.NewEngine(db, directory.NewGormRosterSource(db, ""), flag)
	task := SyncTask(engine)

	msg, err := task.Run(ctx, &Job{})
	require.NoError(t, err)
	assert.Equal(t, "added 2, updated 0, deactivated 0, skipped 0, departments 1", msg)

	count, err := engine.Employees().Count(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	inProgress, err := flag.InProgress(ctx)
	require.NoError(t, err)
	assert.False(t, inProgress)
}

func TestReminderTask(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	r := &fakeReminder{result: &reminder.Result{Enabled: true, Planned: 3, Sent: 2, Failed: 1, MissingContact: 1}}
	msg, err := ReminderTask(r, func() time.Time { return day }).Run(ctx, &Job{})
	require.NoError(t, err)
	assert.Equal(t, "planned 3, sent 2, failed 1, missing contact 1", msg)
	assert.Equal(t, day, r.day)

	off := &fakeReminder{result: &reminder.Result{}}
	msg, err = ReminderTask(off, nil).Run(ctx, &Job{})
	require.NoError(t, err)
	assert.Contains(t, msg, "disabled")
}
