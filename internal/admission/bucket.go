package admission

import "time"

// tokenBucket is a lazily-refilled token bucket. Capacity equals the
// per-minute budget; refill rate is budget/60 tokens per second, computed
// from the wall-clock delta on each consume.
type tokenBucket struct {
	capacity   float64
	refillRate float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(perMinute int, now time.Time) *tokenBucket {
	cap := float64(perMinute)
	return &tokenBucket{
		capacity:   cap,
		refillRate: cap / 60.0,
		tokens:     cap,
		lastRefill: now,
	}
}

func (b *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
	b.lastRefill = now
}

// consume subtracts one token if available.
func (b *tokenBucket) consume(now time.Time) bool {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}
