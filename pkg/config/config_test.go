package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrtools/healthcert/pkg/jobs"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "healthcert.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "hr_sync", cfg.Roster.Table)
	assert.Equal(t, 5*time.Minute, cfg.Lock.TTL)
	assert.Equal(t, FlagBackendConfig, cfg.Sync.Flag)
	assert.Equal(t, []int{0, 12, 18}, cfg.Sync.Hours)
	assert.Equal(t, []int{30, 15, 7, 3, 1}, cfg.Reminder.Days)
	assert.Equal(t, 9, cfg.Reminder.Hour)
	assert.True(t, cfg.Reminder.Enabled)
	assert.Equal(t, time.Minute, cfg.Dashboard.CacheTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, jobs.DefaultJobConfig(), cfg.JobConfig())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  dsn: "app:secret@tcp(db:3306)/healthcert?parseTime=true"
roster:
  dsn: "ro:secret@tcp(hr:3306)/hr?parseTime=true"
  table: hr_sync_view
lock:
  ttl: 2m
sync:
  flag: memory
reminder:
  days: [14, 7]
log:
  format: console
`)
	t.Setenv("HEALTHCERT_SYNC_HOURS", "1,13")
	t.Setenv("HEALTHCERT_LOCK_TTL", "90s")
	t.Setenv("HEALTHCERT_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "hr_sync_view", cfg.Roster.Table)
	assert.Equal(t, FlagBackendMemory, cfg.Sync.Flag)
	assert.Equal(t, []int{14, 7}, cfg.Reminder.Days)
	assert.Equal(t, []int{1, 13}, cfg.Sync.Hours)
	assert.Equal(t, 90*time.Second, cfg.Lock.TTL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	opts := cfg.DatabaseOptions()
	assert.Equal(t, "mysql", opts.Driver)
	assert.Equal(t, 10, opts.MaxOpenConns)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsMySQLWithoutParseTime(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: mysql
  dsn: "app:secret@tcp(db:3306)/healthcert"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parseTime")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }, "database.driver"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "database.dsn"},
		{"blank roster table", func(c *Config) { c.Roster.Table = " " }, "roster.table"},
		{"zero lock ttl", func(c *Config) { c.Lock.TTL = 0 }, "lock.ttl"},
		{"bad flag backend", func(c *Config) { c.Sync.Flag = "redis" }, "sync.flag"},
		{"bad sync hour", func(c *Config) { c.Sync.Hours = []int{24} }, "sync.hours"},
		{"bad reminder hour", func(c *Config) { c.Reminder.Hour = -1 }, "reminder.hour"},
		{"negative reminder day", func(c *Config) { c.Reminder.Days = []int{-3} }, "reminder.days"},
		{"no workers", func(c *Config) { c.Jobs.Concurrency = 0 }, "jobs.concurrency"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSchedules(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []jobs.Schedule{
		{Task: jobs.TaskEmployeeSync, Hours: []int{0, 12, 18}},
		{Task: jobs.TaskCertReminder, Hours: []int{9}},
	}, cfg.Schedules())

	cfg.Reminder.Enabled = false
	assert.Len(t, cfg.Schedules(), 1)
}
