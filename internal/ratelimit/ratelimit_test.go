package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, capacity, refillPerSecond float64) *Limiter {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLimiter(client, capacity, refillPerSecond)
}

func TestLimiter_AllowsUpToCapacityThenDenies(t *testing.T) {
	limiter := newTestLimiter(t, 3, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "key-1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed within capacity", i+1)
	}

	allowed, err := limiter.Allow(ctx, "key-1")
	require.NoError(t, err)
	assert.False(t, allowed, "request beyond capacity should be denied")
}

func TestLimiter_KeysAreIndependentPerAPIKey(t *testing.T) {
	limiter := newTestLimiter(t, 1, 0)
	ctx := context.Background()

	allowedA, err := limiter.Allow(ctx, "tenant-a")
	require.NoError(t, err)
	assert.True(t, allowedA)

	allowedB, err := limiter.Allow(ctx, "tenant-b")
	require.NoError(t, err)
	assert.True(t, allowedB, "a different API key must have its own bucket")
}

func TestLimiter_ZeroCapacityAlwaysDenies(t *testing.T) {
	limiter := newTestLimiter(t, 0, 0)
	allowed, err := limiter.Allow(context.Background(), "key-2")
	require.NoError(t, err)
	assert.False(t, allowed)
}
