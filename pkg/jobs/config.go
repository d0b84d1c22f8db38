package jobs

import (
	"os"
	"strconv"
	"time"
)

// JobConfig controls job queue and worker behavior.
type JobConfig struct {
	Concurrency   int           // Max concurrent workers. Default 2.
	MaxRetries    int           // Max retry attempts per job. Default 3.
	PollInterval  time.Duration // How often workers poll for new jobs. Default 5s.
	ClaimTimeout  time.Duration // Max time a job can be in "running" before considered stuck. Default 30m.
	RetentionDays int           // How long to keep completed/failed jobs. Default 7.
	Enabled       bool          // Whether the job system is active. Default true.
}

// DefaultJobConfig returns the default job configuration.
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		Concurrency:   2,
		MaxRetries:    3,
		PollInterval:  5 * time.Second,
		ClaimTimeout:  30 * time.Minute,
		RetentionDays: 7,
		Enabled:       true,
	}
}

// JobConfigFromEnv loads config from environment variables.
// HEALTHCERT_JOB_CONCURRENCY, HEALTHCERT_JOB_MAX_RETRIES, HEALTHCERT_JOB_POLL_INTERVAL_SECONDS,
// HEALTHCERT_JOB_CLAIM_TIMEOUT_MINUTES, HEALTHCERT_JOB_RETENTION_DAYS, HEALTHCERT_JOB_ENABLED
func JobConfigFromEnv() *JobConfig {
	cfg := DefaultJobConfig()

	if n, ok := envInt("HEALTHCERT_JOB_CONCURRENCY"); ok && n > 0 {
		cfg.Concurrency = n
	}
	if n, ok := envInt("HEALTHCERT_JOB_MAX_RETRIES"); ok && n >= 0 {
		cfg.MaxRetries = n
	}
	if n, ok := envInt("HEALTHCERT_JOB_POLL_INTERVAL_SECONDS"); ok && n > 0 {
		cfg.PollInterval = time.Duration(n) * time.Second
	}
	if n, ok := envInt("HEALTHCERT_JOB_CLAIM_TIMEOUT_MINUTES"); ok && n > 0 {
		cfg.ClaimTimeout = time.Duration(n) * time.Minute
	}
	if n, ok := envInt("HEALTHCERT_JOB_RETENTION_DAYS"); ok && n > 0 {
		cfg.RetentionDays = n
	}
	if v := os.Getenv("HEALTHCERT_JOB_ENABLED"); v != "" {
		cfg.Enabled, _ = strconv.ParseBool(v)
	}

	return cfg
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
