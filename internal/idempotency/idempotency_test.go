package idempotency

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewCache(client, time.Hour)
}

func TestCache_GetMissReturnsNil(t *testing.T) {
	cache := newTestCache(t)
	cached, err := cache.Get(context.Background(), "api-key-1", "idem-1")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCache_SetThenGetRoundTrips(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	resp := CachedResponse{StatusCode: 201, Body: json.RawMessage(`{"payment_id":"pay-1"}`)}
	require.NoError(t, cache.Set(ctx, "api-key-1", "idem-1", resp))

	cached, err := cache.Get(ctx, "api-key-1", "idem-1")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, 201, cached.StatusCode)
	assert.JSONEq(t, `{"payment_id":"pay-1"}`, string(cached.Body))
}

func TestCache_KeysAreScopedPerAPIKey(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	resp := CachedResponse{StatusCode: 201, Body: json.RawMessage(`{}`)}
	require.NoError(t, cache.Set(ctx, "tenant-a", "shared-idem-key", resp))

	cached, err := cache.Get(ctx, "tenant-b", "shared-idem-key")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCache_LockThenUnlockAllowsReacquire(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	acquired, err := cache.Lock(ctx, "api-key-1", "idem-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, acquired)

	reacquired, err := cache.Lock(ctx, "api-key-1", "idem-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, reacquired, "a second lock attempt before unlock must fail")

	require.NoError(t, cache.Unlock(ctx, "api-key-1", "idem-2"))

	reacquiredAfterUnlock, err := cache.Lock(ctx, "api-key-1", "idem-2", time.Minute)
	require.NoError(t, err)
	assert.True(t, reacquiredAfterUnlock)
}
