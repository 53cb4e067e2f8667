// Package idempotency caches the gateway's response for a client-supplied
// Idempotency-Key, grounded on
// original_source/finpay/services/api_gateway/main.py's
// _idempotency_cache_key/get/set helpers. Unlike the teacher's
// internal/pkg/idempotency helper, which derives a deterministic SHA-256 key
// from a request body, the saga's idempotency key is supplied by the caller
// per spec.md §6.1, so this package only needs a get/set cache keyed on it
// directly — shaped after Pay-Chain's idempotency middleware cache lookup.
package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedResponse is the stored replay payload for a previously accepted
// request.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// Cache wraps a Redis client scoped to one namespace (typically the API key
// so idempotency keys cannot collide across tenants).
type Cache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewCache builds a Cache storing entries for ttl.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, keyPrefix: "idempotency:", ttl: ttl}
}

func (c *Cache) cacheKey(apiKey, idempotencyKey string) string {
	return fmt.Sprintf("%s%s:%s", c.keyPrefix, apiKey, idempotencyKey)
}

// Get returns the cached response for (apiKey, idempotencyKey), if any.
func (c *Cache) Get(ctx context.Context, apiKey, idempotencyKey string) (*CachedResponse, error) {
	raw, err := c.client.Get(ctx, c.cacheKey(apiKey, idempotencyKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idempotency cache get: %w", err)
	}

	var cached CachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, fmt.Errorf("idempotency cache decode: %w", err)
	}
	return &cached, nil
}

// Set stores resp under (apiKey, idempotencyKey) for the cache's TTL. Only
// successful (2xx) responses should be cached by callers, matching the
// Python gateway which never caches a failed forward.
func (c *Cache) Set(ctx context.Context, apiKey, idempotencyKey string, resp CachedResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("idempotency cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.cacheKey(apiKey, idempotencyKey), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency cache set: %w", err)
	}
	return nil
}

// Lock attempts to acquire a short-lived lock for (apiKey, idempotencyKey) so
// two concurrent requests bearing the same key don't both forward to the
// orchestrator; the second caller should instead poll Get.
func (c *Cache) Lock(ctx context.Context, apiKey, idempotencyKey string, ttl time.Duration) (bool, error) {
	key := c.cacheKey(apiKey, idempotencyKey) + ":lock"
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lock: %w", err)
	}
	return ok, nil
}

// Unlock releases a lock acquired by Lock, so a later Lock with the same key
// succeeds without waiting out the TTL. The gateway handler calls neither
// Lock nor Unlock.
func (c *Cache) Unlock(ctx context.Context, apiKey, idempotencyKey string) error {
	key := c.cacheKey(apiKey, idempotencyKey) + ":lock"
	return c.client.Del(ctx, key).Err()
}
