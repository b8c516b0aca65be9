package admission

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

func testTenant(rate, conc int) domain.Tenant {
	return domain.Tenant{ID: "t1", RateLimitPerMinute: rate, MaxConcurrentJobs: conc}
}

func TestLocalRateLimiter_ConsumesBudget(t *testing.T) {
	t.Parallel()
	l := NewLocalRateLimiter()
	now := time.Now().UTC()
	l.now = func() time.Time { return now }

	tn := testTenant(2, 5)
	for i := 0; i < 2; i++ {
		ok, err := l.Allow(context.Background(), tn)
		require.NoError(t, err)
		assert.True(t, ok, "submit %d within budget", i)
	}
	ok, err := l.Allow(context.Background(), tn)
	require.NoError(t, err)
	assert.False(t, ok, "third submit exceeds rate_limit_per_minute=2")
}

func TestLocalRateLimiter_LazyRefill(t *testing.T) {
	t.Parallel()
	l := NewLocalRateLimiter()
	now := time.Now().UTC()
	l.now = func() time.Time { return now }

	tn := testTenant(2, 5)
	for i := 0; i < 2; i++ {
		ok, _ := l.Allow(context.Background(), tn)
		require.True(t, ok)
	}
	// 30s at 2/min refills ~1 token.
	now = now.Add(30 * time.Second)
	ok, err := l.Allow(context.Background(), tn)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = l.Allow(context.Background(), tn)
	assert.False(t, ok)
}

func TestLocalRateLimiter_ZeroRateDeniesAll(t *testing.T) {
	t.Parallel()
	l := NewLocalRateLimiter()
	ok, err := l.Allow(context.Background(), testTenant(0, 5))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalRateLimiter_LimitChangeRebuildsBucket(t *testing.T) {
	t.Parallel()
	l := NewLocalRateLimiter()
	now := time.Now().UTC()
	l.now = func() time.Time { return now }

	tn := testTenant(1, 5)
	ok, _ := l.Allow(context.Background(), tn)
	require.True(t, ok)
	ok, _ = l.Allow(context.Background(), tn)
	require.False(t, ok)

	tn.RateLimitPerMinute = 10
	ok, _ = l.Allow(context.Background(), tn)
	assert.True(t, ok, "raised limit takes effect immediately")
}

// staticRunning is a RunningCounter backed by a fixed per-tenant table.
type staticRunning map[string]int

func (s staticRunning) CountRunningForTenant(_ domain.Context, tenantID string) (int, error) {
	return s[tenantID], nil
}

type failingRunning struct{ err error }

func (f failingRunning) CountRunningForTenant(_ domain.Context, _ string) (int, error) {
	return 0, f.err
}

func TestController_ConcurrencyUnderCap(t *testing.T) {
	t.Parallel()
	c := NewController(NewLocalRateLimiter(), staticRunning{"t1": 1})

	ok, err := c.AllowConcurrency(context.Background(), testTenant(10, 2))
	require.NoError(t, err)
	assert.True(t, ok, "one running under cap=2 admits")
}

func TestController_ConcurrencyAtCapRejects(t *testing.T) {
	t.Parallel()
	c := NewController(NewLocalRateLimiter(), staticRunning{"t1": 2})

	ok, err := c.AllowConcurrency(context.Background(), testTenant(10, 2))
	require.NoError(t, err)
	assert.False(t, ok, "cap=2 saturated")
}

func TestController_PendingDoesNotCount(t *testing.T) {
	t.Parallel()
	// A tenant with a deep pending backlog but nothing running is admitted:
	// only running jobs consume the cap.
	c := NewController(NewLocalRateLimiter(), staticRunning{})

	for i := 0; i < 3; i++ {
		ok, err := c.AllowConcurrency(context.Background(), testTenant(10, 1))
		require.NoError(t, err)
		assert.True(t, ok, "submit %d with zero running jobs", i)
	}
}

func TestController_ZeroCapDeniesAll(t *testing.T) {
	t.Parallel()
	c := NewController(NewLocalRateLimiter(), staticRunning{})
	ok, err := c.AllowConcurrency(context.Background(), testTenant(10, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestController_CounterErrorPropagates(t *testing.T) {
	t.Parallel()
	c := NewController(NewLocalRateLimiter(), failingRunning{err: errors.New("db down")})
	_, err := c.AllowConcurrency(context.Background(), testTenant(10, 5))
	require.EqualError(t, err, "op=admission.concurrency: db down")
}
