package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hrtools/healthcert/pkg/metrics"
)

func setupWorkerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, NewJobStore(db).AutoMigrate())
	return db
}

func testJobConfig() *JobConfig {
	cfg := DefaultJobConfig()
	cfg.PollInterval = 20 * time.Millisecond
	cfg.Concurrency = 1
	cfg.ClaimTimeout = 0
	cfg.RetentionDays = 0
	return cfg
}

func TestWorkerPoolRunProcessesJobs(t *testing.T) {
	store := NewJobStore(setupWorkerTestDB(t))
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	calls := make(chan string, 1)
	tasks := map[string]Task{
		TaskEmployeeSync: TaskFunc(func(_ context.Context, job *Job) (string, error) {
			calls <- job.ID
			return "added 1", nil
		}),
	}
	job := enqueue(t, store, TaskEmployeeSync)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewWorkerPool(store, tasks, testJobConfig(), nil, nil).Run(ctx)
		close(done)
	}()

	select {
	case id := <-calls:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not processed")
	}
	require.Eventually(t, func() bool {
		got, err := store.Get(context.Background(), job.ID)
		return err == nil && got != nil && got.State == JobStateSucceeded
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker pool did not stop")
	}
}

func TestWorkerPoolDisabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testJobConfig()
	cfg.Enabled = false
	NewWorkerPool(NewJobStore(nil), nil, cfg, nil, nil).Run(context.Background())
}

func TestProcessOneRetriesThenFails(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()
	m := metrics.New(nil)
	cfg := testJobConfig()
	cfg.MaxRetries = 2

	attempts := 0
	tasks := map[string]Task{
		TaskEmployeeSync: TaskFunc(func(context.Context, *Job) (string, error) {
			attempts++
			return "", errors.New("roster unreachable")
		}),
	}
	wp := NewWorkerPool(store, tasks, cfg, m, nil)
	job := enqueue(t, store, TaskEmployeeSync)

	assert.True(t, wp.processOne(ctx, 0))
	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)

	assert.True(t, wp.processOne(ctx, 0))
	got, err = store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, got.State)
	assert.Equal(t, "roster unreachable", got.LastError)

	assert.False(t, wp.processOne(ctx, 0))
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsCompleted.WithLabelValues(TaskEmployeeSync, "failed")))
}

func TestProcessOneUnknownTask(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()
	job := enqueue(t, store, "no-such-task")

	wp := NewWorkerPool(store, map[string]Task{}, testJobConfig(), nil, nil)
	assert.True(t, wp.processOne(ctx, 0))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, got.State)
	assert.Contains(t, got.LastError, "no task registered")
}

func TestProcessOneRecoversPanic(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()
	cfg := testJobConfig()
	cfg.MaxRetries = 0
	job := enqueue(t, store, TaskCertReminder)

	tasks := map[string]Task{
		TaskCertReminder: TaskFunc(func(context.Context, *Job) (string, error) { panic("nil notifier") }),
	}
	wp := NewWorkerPool(store, tasks, cfg, nil, nil)
	assert.True(t, wp.processOne(ctx, 0))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateFailed, got.State)
	assert.Contains(t, got.LastError, "nil notifier")
}

func TestProcessOneRecordsSuccess(t *testing.T) {
	store := NewJobStore(setupTestDB(t))
	ctx := context.Background()
	m := metrics.New(nil)
	job := enqueue(t, store, TaskCertReminder)

	tasks := map[string]Task{
		TaskCertReminder: TaskFunc(func(context.Context, *Job) (string, error) { return "sent 4", nil }),
	}
	wp := NewWorkerPool(store, tasks, testJobConfig(), m, nil)
	assert.True(t, wp.processOne(ctx, 0))

	got, err := store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateSucceeded, got.State)
	assert.Equal(t, "sent 4", got.Message)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsCompleted.WithLabelValues(TaskCertReminder, "succeeded")))
}

func TestCleanupRecoversAndPrunes(t *testing.T) {
	db := setupTestDB(t)
	store := NewJobStore(db)
	ctx := context.Background()

	stuck := enqueue(t, store, TaskEmployeeSync)
	_, err := store.Claim(ctx, 3)
	require.NoError(t, err)
	require.NoError(t, db.Model(&Job{}).Where("id = ?", stuck.ID).
		Update("started_at", time.Now().UTC().Add(-2*time.Hour)).Error)

	old := enqueue(t, store, TaskCertReminder)
	require.NoError(t, store.Complete(ctx, old.ID, "", 1))
	require.NoError(t, db.Model(&Job{}).Where("id = ?", old.ID).
		Update("finished_at", time.Now().UTC().AddDate(0, 0, -30)).Error)

	cfg := testJobConfig()
	cfg.ClaimTimeout = time.Hour
	cfg.RetentionDays = 7
	NewWorkerPool(store, nil, cfg, nil, nil).cleanup(ctx)

	got, err := store.Get(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStateQueued, got.State)
	got, err = store.Get(ctx, old.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
