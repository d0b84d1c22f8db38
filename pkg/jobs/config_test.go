package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultJobConfig(t *testing.T) {
	cfg := DefaultJobConfig()

	assert.Equal(t, 2, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 30*time.Minute, cfg.ClaimTimeout)
	assert.Equal(t, 7, cfg.RetentionDays)
	assert.True(t, cfg.Enabled)
}

func TestJobConfigFromEnv(t *testing.T) {
	tests := []struct {
		name            string
		envs            map[string]string
		wantConcurrency int
		wantMaxRetries  int
		wantPoll        time.Duration
		wantEnabled     bool
	}{
		{
			name:            "defaults",
			envs:            map[string]string{},
			wantConcurrency: 2,
			wantMaxRetries:  3,
			wantPoll:        5 * time.Second,
			wantEnabled:     true,
		},
		{
			name: "custom values",
			envs: map[string]string{
				"HEALTHCERT_JOB_CONCURRENCY":           "5",
				"HEALTHCERT_JOB_MAX_RETRIES":           "1",
				"HEALTHCERT_JOB_POLL_INTERVAL_SECONDS": "2",
				"HEALTHCERT_JOB_ENABLED":               "false",
			},
			wantConcurrency: 5,
			wantMaxRetries:  1,
			wantPoll:        2 * time.Second,
			wantEnabled:     false,
		},
		{
			name: "invalid concurrency falls back to default",
			envs: map[string]string{
				"HEALTHCERT_JOB_CONCURRENCY": "invalid",
			},
			wantConcurrency: 2,
			wantMaxRetries:  3,
			wantPoll:        5 * time.Second,
			wantEnabled:     true,
		},
		{
			name: "zero retries allowed",
			envs: map[string]string{
				"HEALTHCERT_JOB_MAX_RETRIES": "0",
			},
			wantConcurrency: 2,
			wantMaxRetries:  0,
			wantPoll:        5 * time.Second,
			wantEnabled:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envs {
				t.Setenv(k, v)
			}

			cfg := JobConfigFromEnv()

			assert.Equal(t, tt.wantConcurrency, cfg.Concurrency)
			assert.Equal(t, tt.wantMaxRetries, cfg.MaxRetries)
			assert.Equal(t, tt.wantPoll, cfg.PollInterval)
			assert.Equal(t, tt.wantEnabled, cfg.Enabled)
		})
	}
}
