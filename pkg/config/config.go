// Package config loads the service configuration from file, environment and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/hrtools/healthcert/pkg/database"
	"github.com/hrtools/healthcert/pkg/jobs"
	"github.com/hrtools/healthcert/pkg/logging"
)

// EnvPrefix prefixes every environment override, e.g. HEALTHCERT_DATABASE_DSN.
const EnvPrefix = "HEALTHCERT"

// Sync flag backends.
const (
	FlagBackendConfig = "config"
	FlagBackendMemory = "memory"
)

// Config is the complete service configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Lock      LockConfig      `mapstructure:"lock"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig describes the local database.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"maxOpenConns"`
	MaxIdleConns    int           `mapstructure:"maxIdleConns"`
	ConnMaxLifetime time.Duration `mapstructure:"connMaxLifetime"`
}

// RosterConfig describes the read-only HR roster database.
type RosterConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// LockConfig tunes the audit lock.
type LockConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

// SyncConfig tunes directory reconciliation.
type SyncConfig struct {
	Flag  string `mapstructure:"flag"`
	Hours []int  `mapstructure:"hours"`
}

// ReminderConfig tunes expiry reminders.
type ReminderConfig struct {
	Enabled bool  `mapstructure:"enabled"`
	Days    []int `mapstructure:"days"`
	Hour    int   `mapstructure:"hour"`
}

// JobsConfig tunes the background job queue.
type JobsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Concurrency   int           `mapstructure:"concurrency"`
	MaxRetries    int           `mapstructure:"maxRetries"`
	PollInterval  time.Duration `mapstructure:"pollInterval"`
	ClaimTimeout  time.Duration `mapstructure:"claimTimeout"`
	RetentionDays int           `mapstructure:"retentionDays"`
	ScheduleTick  time.Duration `mapstructure:"scheduleTick"`
}

// DashboardConfig tunes dashboard caching.
type DashboardConfig struct {
	CacheTTL time.Duration `mapstructure:"cacheTTL"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", database.DriverSQLite)
	v.SetDefault("database.dsn", "healthcert.db")
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", time.Hour)

	v.SetDefault("roster.driver", database.DriverMySQL)
	v.SetDefault("roster.dsn", "")
	v.SetDefault("roster.table", "hr_sync")

	v.SetDefault("lock.ttl", 5*time.Minute)

	v.SetDefault("sync.flag", FlagBackendConfig)
	v.SetDefault("sync.hours", []int{0, 12, 18})

	v.SetDefault("reminder.enabled", true)
	v.SetDefault("reminder.days", []int{30, 15, 7, 3, 1})
	v.SetDefault("reminder.hour", 9)

	jd := jobs.DefaultJobConfig()
	v.SetDefault("jobs.enabled", jd.Enabled)
	v.SetDefault("jobs.concurrency", jd.Concurrency)
	v.SetDefault("jobs.maxRetries", jd.MaxRetries)
	v.SetDefault("jobs.pollInterval", jd.PollInterval)
	v.SetDefault("jobs.claimTimeout", jd.ClaimTimeout)
	v.SetDefault("jobs.retentionDays", jd.RetentionDays)
	v.SetDefault("jobs.scheduleTick", time.Minute)

	v.SetDefault("dashboard.cacheTTL", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", logging.FormatJSON)
}

// Load reads configuration. An explicit path must exist; without one,
// healthcert.yaml is looked up in the working directory and /etc/healthcert
// and may be absent. Environment variables override both.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("healthcert")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/healthcert")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if err := validateDSN("database", c.Database.Driver, c.Database.DSN, true); err != nil {
		return err
	}
	if err := validateDSN("roster", c.Roster.Driver, c.Roster.DSN, false); err != nil {
		return err
	}
	if strings.TrimSpace(c.Roster.Table) == "" {
		return errors.New("roster.table is required")
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive, got %s", c.Lock.TTL)
	}
	switch c.Sync.Flag {
	case FlagBackendConfig, FlagBackendMemory:
	default:
		return fmt.Errorf("sync.flag must be %q or %q, got %q", FlagBackendConfig, FlagBackendMemory, c.Sync.Flag)
	}
	for _, h := range c.Sync.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("sync.hours: %d is not an hour of day", h)
		}
	}
	if c.Reminder.Hour < 0 || c.Reminder.Hour > 23 {
		return fmt.Errorf("reminder.hour: %d is not an hour of day", c.Reminder.Hour)
	}
	for _, d := range c.Reminder.Days {
		if d < 0 {
			return fmt.Errorf("reminder.days: %d must not be negative", d)
		}
	}
	if c.Jobs.Concurrency <= 0 {
		return fmt.Errorf("jobs.concurrency must be positive, got %d", c.Jobs.Concurrency)
	}
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.pollInterval must be positive, got %s", c.Jobs.PollInterval)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case logging.FormatJSON, logging.FormatConsole:
	default:
		return fmt.Errorf("log.format must be %q or %q, got %q", logging.FormatJSON, logging.FormatConsole, c.Log.Format)
	}
	return nil
}

func validateDSN(section, driver, dsn string, required bool) error {
	switch driver {
	case database.DriverSQLite, database.DriverPostgres:
	case database.DriverMySQL:
		if dsn != "" {
			if err := database.ValidateMySQLDSN(dsn); err != nil {
				return fmt.Errorf("%s.dsn: %w", section, err)
			}
		}
	default:
		return fmt.Errorf("%s.driver: unsupported driver %q", section, driver)
	}
	if required && dsn == "" {
		return fmt.Errorf("%s.dsn is required", section)
	}
	return nil
}

// DatabaseOptions returns connection options for the local database.
func (c *Config) DatabaseOptions() database.Options {
	return database.Options{
		Driver:          c.Database.Driver,
		DSN:             c.Database.DSN,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		LogLevel:        logging.GormLevel(c.Log.Level),
	}
}

// RosterOptions returns connection options for the roster database.
func (c *Config) RosterOptions() database.Options {
	return database.Options{
		Driver:   c.Roster.Driver,
		DSN:      c.Roster.DSN,
		LogLevel: logging.GormLevel(c.Log.Level),
	}
}

// JobConfig converts the jobs section for the worker pool.
func (c *Config) JobConfig() *jobs.JobConfig {
	return &jobs.JobConfig{
		Concurrency:   c.Jobs.Concurrency,
		MaxRetries:    c.Jobs.MaxRetries,
		PollInterval:  c.Jobs.PollInterval,
		ClaimTimeout:  c.Jobs.ClaimTimeout,
		RetentionDays: c.Jobs.RetentionDays,
		Enabled:       c.Jobs.Enabled,
	}
}

// Schedules returns the wall-clock schedule of the background tasks.
func (c *Config) Schedules() []jobs.Schedule {
	out := []jobs.Schedule{{Task: jobs.TaskEmployeeSync, Hours: c.Sync.Hours}}
	if c.Reminder.Enabled {
		out = append(out, jobs.Schedule{Task: jobs.TaskCertReminder, Hours: []int{c.Reminder.Hour}})
	}
	return out
}
