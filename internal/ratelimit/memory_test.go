package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestMemoryLimiter() (*MemoryLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	limiter := NewMemoryLimiter()
	limiter.now = clock.Now
	return limiter, clock
}

func TestMemoryLimiterBlocksAfterMax(t *testing.T) {
	limiter, clock := newTestMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		decision, err := limiter.Check(ctx, "annotate:content-1:10.0.0.1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, decision.Allowed, "call %d", i+1)
	}

	clock.Advance(20 * time.Second)
	decision, err := limiter.Check(ctx, "annotate:content-1:10.0.0.1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 40, decision.RetryAfterSeconds)
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	limiter, clock := newTestMemoryLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := limiter.Check(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
	}

	clock.Advance(time.Minute)
	decision, err := limiter.Check(ctx, "k", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, 1, decision.Remaining)
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	limiter, _ := newTestMemoryLimiter()
	ctx := context.Background()

	_, err := limiter.Check(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	blocked, err := limiter.Check(ctx, "a", 1, time.Minute)
	require.NoError(t, err)
	other, err := limiter.Check(ctx, "b", 1, time.Minute)
	require.NoError(t, err)

	assert.False(t, blocked.Allowed)
	assert.True(t, other.Allowed)
}

func TestMemoryLimiterSweepsExpiredWindows(t *testing.T) {
	limiter, clock := newTestMemoryLimiter()
	ctx := context.Background()

	_, _ = limiter.Check(ctx, "a", 5, time.Minute)
	_, _ = limiter.Check(ctx, "b", 5, time.Minute)
	require.Equal(t, 2, limiter.Len())

	clock.Advance(2 * time.Minute)
	_, _ = limiter.Check(ctx, "c", 5, time.Minute)
	assert.Equal(t, 1, limiter.Len())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "annotate:content-1:10.0.0.1", Key("annotate", " content-1 ", "", "10.0.0.1"))
}
