package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/hrtools/healthcert/pkg/certificate"
	"github.com/hrtools/healthcert/pkg/config"
	"github.com/hrtools/healthcert/pkg/database"
	"github.com/hrtools/healthcert/pkg/directory"
	"github.com/hrtools/healthcert/pkg/jobs"
	"github.com/hrtools/healthcert/pkg/sysconfig"
)

// runCLI executes the root command with args and returns stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, outputFlag = "", "table"
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "healthcert.yaml")
	body := "database:\n  driver: sqlite\n  dsn: " + filepath.Join(dir, "healthcert.db") + "\n" +
		"sync:\n  flag: config\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	want := []string{"migrate", "sync", "remind", "serve", "dashboard", "cert", "jobs", "healthcheck"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
	for _, path := range [][]string{
		{"sync", "status"}, {"sync", "reset"}, {"sync", "import"}, {"sync", "departments"},
		{"cert", "lock"}, {"cert", "unlock"}, {"cert", "audit"}, {"cert", "submit"}, {"cert", "list"},
		{"jobs", "trigger"}, {"jobs", "list"}, {"jobs", "cancel"},
		{"dashboard", "breakdown"}, {"dashboard", "departments"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestMigrateTriggerAndList(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	out, err := runCLI(t, "--config", cfgPath, "-o", "json", "jobs", "trigger", jobs.TaskEmployeeSync)
	require.NoError(t, err)
	var job jobs.Job
	require.NoError(t, json.Unmarshal([]byte(out), &job))
	assert.Equal(t, jobs.JobStateQueued, job.State)

	out, err = runCLI(t, "--config", cfgPath, "-o", "json", "jobs", "trigger", jobs.TaskEmployeeSync)
	require.NoError(t, err)
	var again jobs.Job
	require.NoError(t, json.Unmarshal([]byte(out), &again))
	assert.Equal(t, job.ID, again.ID)

	out, err = runCLI(t, "--config", cfgPath, "jobs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, job.ID)
	assert.Contains(t, out, "1 of 1")

	out, err = runCLI(t, "--config", cfgPath, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "false")

	out, err = runCLI(t, "--config", cfgPath, "-o", "yaml", "dashboard")
	require.NoError(t, err)
	assert.Contains(t, out, "coverageRate: 0")
}

func TestUnknownTaskRejected(t *testing.T) {
	_, err := runCLI(t, "--config", writeTestConfig(t), "jobs", "trigger", "rebuild-everything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestSyncWithoutRosterConfigured(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "roster.dsn")
}

func testApp(t *testing.T) *app {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Jobs.PollInterval = 10 * time.Millisecond
	cfg.Jobs.ScheduleTick = 10 * time.Millisecond
	db, err := database.Open(database.Options{Driver: database.DriverSQLite, DSN: filepath.Join(t.TempDir(), "app.db")})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return wireApp(cfg, zap.NewNop(), db)
}

type countingSyncer struct {
	calls chan struct{}
}

func (c *countingSyncer) IsSyncInProgress(context.Context) bool { return false }

func (c *countingSyncer) Sync(context.Context) (*directory.SyncResult, error) {
	c.calls <- struct{}{}
	return &directory.SyncResult{}, nil
}

func TestServeRunsTriggeredJobs(t *testing.T) {
	a := testApp(t)
	require.NoError(t, a.migrate(context.Background()))

	_, err := jobs.Trigger(context.Background(), jobs.NewJobStore(a.db), jobs.TaskEmployeeSync, "test")
	require.NoError(t, err)

	syncer := &countingSyncer{calls: make(chan struct{}, 8)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.serve(ctx, syncer, "") }()

	select {
	case <-syncer.calls:
	case <-time.After(5 * time.Second):
		t.Fatal("triggered sync did not run")
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}

func TestMigrateCreatesTables(t *testing.T) {
	a := testApp(t)
	require.NoError(t, a.migrate(context.Background()))
	require.NoError(t, a.migrate(context.Background()), "migrate is repeatable")

	for _, table := range []string{"system_configs", "employees", "departments", "health_certificates", "audit_locks", "background_jobs"} {
		assert.True(t, a.db.Migrator().HasTable(table), table)
	}
	_, ok := a.flag.(*directory.ConfigSyncFlag)
	assert.True(t, ok)
}

func TestOutputHelpers(t *testing.T) {
	defer func() { outputFlag = "table" }()
	var buf bytes.Buffer

	outputFlag = "table"
	require.NoError(t, printRows(&buf, nil, []string{"name", "count"}, [][]string{{"Sales", "3"}}))
	assert.Contains(t, buf.String(), "NAME")
	assert.Contains(t, buf.String(), "Sales")

	buf.Reset()
	outputFlag = "json"
	require.NoError(t, printRows(&buf, map[string]int{"count": 3}, nil, nil))
	assert.JSONEq(t, `{"count":3}`, buf.String())

	outputFlag = "xml"
	assert.Error(t, printStructured(&buf, 1))

	assert.Equal(t, "abcd...", truncate("abcdefghij", 7))
	assert.Equal(t, "short", truncate("short", 7))
}

func TestParseHelpers(t *testing.T) {
	id, err := parseCertID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)
	_, err = parseCertID("0")
	assert.Error(t, err)
	_, err = parseCertID("abc")
	assert.Error(t, err)

	d, err := parseDay("2024-06-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, d.Year())
	_, err = parseDay("06/01/2024")
	assert.Error(t, err)
}

func TestOpsHandlerAndHealthcheck(t *testing.T) {
	a := testApp(t)
	srv := httptest.NewServer(a.opsHandler())
	defer srv.Close()

	require.NoError(t, runHealthcheck(context.Background(), srv.URL+"/healthz", time.Second))
	require.NoError(t, runHealthcheck(context.Background(), srv.URL+"/readyz", time.Second))

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	err = runHealthcheck(context.Background(), srv.URL+"/missing", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	sqlDB, err := a.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())
	err = runHealthcheck(context.Background(), srv.URL+"/readyz", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

// openTestConfigDB opens the sqlite database a config from writeTestConfig points at.
func openTestConfigDB(t *testing.T, cfgPath string) *gorm.DB {
	t.Helper()
	db, err := database.Open(database.Options{
		Driver:   database.DriverSQLite,
		DSN:      filepath.Join(filepath.Dir(cfgPath), "healthcert.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestCertSubmitLockAudit(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	db := openTestConfigDB(t, cfgPath)
	emp := &directory.Employee{SfUserID: "u1", Name: "Alice", IsActive: true}
	require.NoError(t, directory.NewEmployeeStore(db).Create(context.Background(), emp))
	empID := strconv.FormatUint(uint64(emp.ID), 10)

	out, err := runCLI(t, "--config", cfgPath, "-o", "json", "cert", "submit",
		"--employee-id", empID, "--number", "CERT-001", "--image", "a.jpg",
		"--issue-date", "2024-01-01", "--expiry-date", "2025-01-01",
		"--gender", "F", "--age", "31", "--id-card", "110101199301010021")
	require.NoError(t, err)
	var cert certificate.Certificate
	require.NoError(t, json.Unmarshal([]byte(out), &cert))
	assert.Equal(t, certificate.StatusPending, cert.Status)
	assert.Equal(t, "Alice", cert.EmployeeName)
	assert.Equal(t, "F", cert.Gender)
	require.NotNil(t, cert.Age)
	assert.Equal(t, 31, *cert.Age)
	assert.Equal(t, "110101199301010021", cert.IDCard)
	certID := strconv.FormatUint(uint64(cert.ID), 10)

	_, err = runCLI(t, "--config", cfgPath, "cert", "audit", certID, "--admin-id", "7", "--action", "approve")
	require.ErrorIs(t, err, certificate.ErrLockRequired)

	out, err = runCLI(t, "--config", cfgPath, "cert", "lock", certID, "--admin-id", "7", "--admin-name", "Ann")
	require.NoError(t, err)
	assert.Contains(t, out, "Ann")

	out, err = runCLI(t, "--config", cfgPath, "-o", "json", "cert", "audit", certID,
		"--admin-id", "7", "--admin-name", "Ann", "--action", "approve")
	require.NoError(t, err)
	var audited certificate.Certificate
	require.NoError(t, json.Unmarshal([]byte(out), &audited))
	assert.Equal(t, certificate.StatusApproved, audited.Status)
	assert.True(t, audited.IsCurrent)

	out, err = runCLI(t, "--config", cfgPath, "cert", "list", "--current")
	require.NoError(t, err)
	assert.Contains(t, out, "CERT-001")
}

func TestCertSubmitWithExplicitName(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	db := openTestConfigDB(t, cfgPath)
	emp := &directory.Employee{SfUserID: "u2", Name: "Bob", IsActive: true}
	require.NoError(t, directory.NewEmployeeStore(db).Create(context.Background(), emp))

	_, err = runCLI(t, "--config", cfgPath, "cert", "submit",
		"--employee-id", strconv.FormatUint(uint64(emp.ID), 10), "--employee-name", "Bob",
		"--number", "CERT-002", "--image", "b.jpg",
		"--issue-date", "2024-01-01", "--expiry-date", "2025-01-01")
	require.NoError(t, err)

	_, err = runCLI(t, "--config", cfgPath, "cert", "submit",
		"--employee-id", "999", "--number", "CERT-003", "--image", "c.jpg",
		"--issue-date", "2024-01-01", "--expiry-date", "2025-01-01")
	require.Error(t, err)
}

func TestSyncResetClearsLeftoverFlag(t *testing.T) {
	cfgPath := writeTestConfig(t)
	_, err := runCLI(t, "--config", cfgPath, "migrate")
	require.NoError(t, err)

	db := openTestConfigDB(t, cfgPath)
	flag := directory.NewConfigSyncFlag(sysconfig.NewStore(db))
	require.NoError(t, flag.SetInProgress(context.Background(), true))

	out, err := runCLI(t, "--config", cfgPath, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "true")

	out, err = runCLI(t, "--config", cfgPath, "sync", "reset")
	require.NoError(t, err)
	assert.Contains(t, out, "sync flag cleared")

	out, err = runCLI(t, "--config", cfgPath, "sync", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "false")
}
