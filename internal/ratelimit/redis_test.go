package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisLimiter, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	limiter, err := NewRedisLimiterFromURL(context.Background(), "redis://"+s.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter, s
}

func TestRedisLimiterBlocksAfterMax(t *testing.T) {
	limiter, s := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Check(ctx, "share:c1:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, decision.Allowed)
	}

	decision, err := limiter.Check(ctx, "share:c1:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Greater(t, decision.RetryAfterSeconds, 0)
	assert.LessOrEqual(t, decision.RetryAfterSeconds, 60)

	ttl := s.TTL("ratelimit:share:c1:1.2.3.4")
	assert.Greater(t, ttl, time.Duration(0))
}

func TestRedisLimiterResetsAfterExpiry(t *testing.T) {
	limiter, s := setupTestRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
	}

	s.FastForward(61 * time.Second)

	decision, err := limiter.Check(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRedisLimiterRepairsMissingExpiry(t *testing.T) {
	limiter, s := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, s.Set("ratelimit:stuck", "1"))

	_, err := limiter.Check(ctx, "stuck", 5, time.Minute)
	require.NoError(t, err)
	assert.Greater(t, s.TTL("ratelimit:stuck"), time.Duration(0))
}

func TestNewRedisLimiterFromURLRejectsBadURL(t *testing.T) {
	_, err := NewRedisLimiterFromURL(context.Background(), "::not a url")
	assert.Error(t, err)
}
