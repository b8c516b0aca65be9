package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	assert.Equal(t, 300, cfg.WorkerLeaseTTLSeconds)
	assert.Equal(t, 3, cfg.WorkerMaxRetries)
	assert.Equal(t, 1, cfg.WorkerPollIntervalSeconds)
	assert.Equal(t, 10, cfg.DefaultRateLimitPerMinute)
	assert.Equal(t, 5, cfg.DefaultMaxConcurrentJobs)
	assert.Equal(t, 64, cfg.EventBufferSize)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("WORKER_POOL_SIZE", "8")
	t.Setenv("WORKER_LEASE_TTL_SECONDS", "60")
	t.Setenv("WORKER_POLL_INTERVAL_SECONDS", "2")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/q")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.False(t, cfg.IsDev())
	assert.Equal(t, 8, cfg.WorkerPoolSize)
	assert.Equal(t, "postgres://u:p@db:5432/q", cfg.DBURL)
	assert.Equal(t, time.Minute, cfg.LeaseTTL())
	assert.Equal(t, 2*time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.ReaperInterval())
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("WORKER_POOL_SIZE", "not-a-number")
	_, err := config.Load()
	require.Error(t, err)
}

func TestConfig_ReaperIntervalFloor(t *testing.T) {
	t.Setenv("WORKER_LEASE_TTL_SECONDS", "1")
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.ReaperInterval())
}
