package admission

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/domain"
)

// RedisRateLimiter is a token bucket evaluated atomically in Redis via a Lua
// script, so multiple API instances share one budget per tenant. Used when
// REDIS_URL is configured; the in-process LocalRateLimiter is the default.
type RedisRateLimiter struct {
	rdb    *redis.Client
	script *redis.Script
}

// NewRedisRateLimiter wraps an existing Redis client.
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	if rdb == nil {
		return nil
	}
	return &RedisRateLimiter{rdb: rdb, script: redis.NewScript(luaTokenBucketScript)}
}

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 120)

return allowed
`

// Allow consumes one token from the tenant's shared bucket.
func (l *RedisRateLimiter) Allow(ctx domain.Context, t domain.Tenant) (bool, error) {
	if t.RateLimitPerMinute <= 0 {
		return false, nil
	}
	key := "rate_limit:" + t.ID
	now := float64(time.Now().UnixNano()) / float64(time.Second)
	res, err := l.script.Run(ctx, l.rdb, []string{key},
		t.RateLimitPerMinute,
		float64(t.RateLimitPerMinute)/60.0,
		now,
	).Result()
	if err != nil {
		return false, fmt.Errorf("op=admission.redis_allow: %w", err)
	}
	allowed, ok := res.(int64)
	if !ok {
		return false, fmt.Errorf("op=admission.redis_allow: unexpected script result %T", res)
	}
	return allowed == 1, nil
}
