// Package admission implements the two submission-time gates: a per-tenant
// token-bucket rate limiter and a concurrency cap compared against the
// store's live count of running jobs.
//
// The rate buckets are process-local by default and reset on restart
// (accepted); the concurrency gate reads the jobs table on every submission,
// so it stays consistent across API replicas and worker goroutines without
// any counter to rebuild or release.
package admission

import (
	"fmt"
	"sync"
	"time"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

// RateLimiter decides whether one submission fits a tenant's rate budget.
type RateLimiter interface {
	Allow(ctx domain.Context, t domain.Tenant) (bool, error)
}

// RunningCounter reports a tenant's current number of running jobs.
type RunningCounter interface {
	CountRunningForTenant(ctx domain.Context, tenantID string) (int, error)
}

// LocalRateLimiter keeps one in-memory token bucket per tenant.
type LocalRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	now     func() time.Time
}

// NewLocalRateLimiter constructs an in-memory limiter.
func NewLocalRateLimiter() *LocalRateLimiter {
	return &LocalRateLimiter{
		buckets: make(map[string]*tokenBucket),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Allow consumes one token from the tenant's bucket.
func (l *LocalRateLimiter) Allow(_ domain.Context, t domain.Tenant) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b, ok := l.buckets[t.ID]
	if !ok || b.capacity != float64(t.RateLimitPerMinute) {
		// New tenant, or the tenant row's limit changed underneath us.
		b = newTokenBucket(t.RateLimitPerMinute, now)
		l.buckets[t.ID] = b
	}
	return b.consume(now), nil
}

// Controller applies both admission gates.
type Controller struct {
	limiter RateLimiter
	running RunningCounter
}

// NewController wires a Controller over the rate limiter and the store's
// running-job counter.
func NewController(limiter RateLimiter, running RunningCounter) *Controller {
	return &Controller{limiter: limiter, running: running}
}

// AllowRate checks the tenant's rate budget, consuming one token on success.
func (c *Controller) AllowRate(ctx domain.Context, t domain.Tenant) (bool, error) {
	ok, err := c.limiter.Allow(ctx, t)
	if err != nil {
		return false, err
	}
	if !ok {
		observability.AdmissionRejectedTotal.WithLabelValues("rate").Inc()
	}
	return ok, nil
}

// AllowConcurrency admits the submission while the tenant's running jobs
// stay below its cap. Pending jobs do not count: the queue may hold more
// work than the cap, which bounds execution parallelism only.
func (c *Controller) AllowConcurrency(ctx domain.Context, t domain.Tenant) (bool, error) {
	n, err := c.running.CountRunningForTenant(ctx, t.ID)
	if err != nil {
		return false, fmt.Errorf("op=admission.concurrency: %w", err)
	}
	if n >= t.MaxConcurrentJobs {
		observability.AdmissionRejectedTotal.WithLabelValues("concurrency").Inc()
		return false, nil
	}
	return true, nil
}
