// Package ratelimit implements the gateway's token bucket, one bucket per
// key string passed to Allow (the gateway passes the customer_id),
// grounded on original_source/finpay/services/api_gateway/main.py's
// enforce_token_bucket and built on the go-redis client the way
// Pay-Chain's pkg/redis/client.go wires Redis for request-path checks.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// bucketScript refills and drains a token bucket atomically. KEYS[1] is the
// bucket key; ARGV are capacity, refill_rate_per_sec, now_ms, cost. It
// mirrors the Python implementation's refill-then-drain arithmetic: tokens
// accrue continuously at refill_rate since the last update, capped at
// capacity, and the request is allowed only if enough tokens remain after
// refill.
var bucketScript = redis.NewScript(`
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now_ms = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local bucket = redis.call("HMGET", key, "tokens", "updated_at")
local tokens = tonumber(bucket[1])
local updated_at = tonumber(bucket[2])

if tokens == nil then
	tokens = capacity
	updated_at = now_ms
end

local elapsed_sec = math.max(0, (now_ms - updated_at) / 1000)
tokens = math.min(capacity, tokens + elapsed_sec * refill_rate)

local allowed = 0
if tokens >= cost then
	tokens = tokens - cost
	allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "updated_at", now_ms)
redis.call("EXPIRE", key, 3600)

return {allowed, tokens}
`)

// Limiter enforces a fixed-capacity, fixed-refill-rate token bucket per key.
type Limiter struct {
	client      *redis.Client
	capacity    float64
	refillPerMs float64
	keyPrefix   string
}

// NewLimiter builds a Limiter allowing capacity requests per bucket, refilled
// at refillPerSecond tokens/sec.
func NewLimiter(client *redis.Client, capacity float64, refillPerSecond float64) *Limiter {
	return &Limiter{
		client:      client,
		capacity:    capacity,
		refillPerMs: refillPerSecond,
		keyPrefix:   "ratelimit:bucket:",
	}
}

// Allow reports whether one request for apiKey may proceed, consuming one
// token if so.
func (l *Limiter) Allow(ctx context.Context, apiKey string) (bool, error) {
	key := l.keyPrefix + apiKey
	now := time.Now().UnixMilli()

	res, err := bucketScript.Run(ctx, l.client, []string{key}, l.capacity, l.refillPerMs, now, 1).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 1 {
		return false, fmt.Errorf("unexpected rate limit script result: %v", res)
	}

	allowed, ok := vals[0].(int64)
	if !ok {
		return false, fmt.Errorf("unexpected rate limit allowed flag type: %T", vals[0])
	}
	return allowed == 1, nil
}
