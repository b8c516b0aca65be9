package admission_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/admission"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

func newRedisLimiter(t *testing.T) *admission.RedisRateLimiter {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return admission.NewRedisRateLimiter(rdb)
}

func TestRedisRateLimiter_ConsumesBudget(t *testing.T) {
	l := newRedisLimiter(t)
	tn := domain.Tenant{ID: "t1", RateLimitPerMinute: 2}

	for i := 0; i < 2; i++ {
		ok, err := l.Allow(context.Background(), tn)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := l.Allow(context.Background(), tn)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRateLimiter_BucketsAreTenantScoped(t *testing.T) {
	l := newRedisLimiter(t)
	a := domain.Tenant{ID: "a", RateLimitPerMinute: 1}
	b := domain.Tenant{ID: "b", RateLimitPerMinute: 1}

	ok, err := l.Allow(context.Background(), a)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = l.Allow(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, ok, "tenant b has its own bucket")

	ok, err = l.Allow(context.Background(), a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRateLimiter_ZeroRateDeniesAll(t *testing.T) {
	l := newRedisLimiter(t)
	ok, err := l.Allow(context.Background(), domain.Tenant{ID: "z", RateLimitPerMinute: 0})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedisRateLimiter_NilClient(t *testing.T) {
	assert.Nil(t, admission.NewRedisRateLimiter(nil))
}
