package gotier

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRateLimiter_AllowsUpToLimit(t *testing.T) {
	limiter := NewMemoryRateLimiter(DefaultCheckoutRateLimit())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := limiter.TryAcquire(ctx, "checkout:user1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should be allowed", i+1)
	}

	ok, err := limiter.TryAcquire(ctx, "checkout:user1")
	require.NoError(t, err)
	assert.False(t, ok, "6th request within the window should be denied")

	ok, err = limiter.TryAcquire(ctx, "checkout:user2")
	require.NoError(t, err)
	assert.True(t, ok, "other keys are independent")
}

func TestMemoryRateLimiter_WindowSlides(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	ok, _ := limiter.TryAcquire(ctx, "k")
	assert.True(t, ok)

	limiter.now = func() time.Time { return base.Add(30 * time.Second) }
	ok, _ = limiter.TryAcquire(ctx, "k")
	assert.True(t, ok)
	ok, _ = limiter.TryAcquire(ctx, "k")
	assert.False(t, ok)

	// The first request leaves the window, freeing one slot
	limiter.now = func() time.Time { return base.Add(61 * time.Second) }
	ok, _ = limiter.TryAcquire(ctx, "k")
	assert.True(t, ok)
	ok, _ = limiter.TryAcquire(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryRateLimiter_InvalidConfigUsesDefaults(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{})
	assert.Equal(t, DefaultCheckoutRateLimit(), limiter.config)
}

func TestMemoryRateLimiter_Concurrent(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{Limit: 50, Window: time.Minute})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := limiter.TryAcquire(ctx, "shared")
			if err == nil && ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestMemoryRateLimiter_SweepsStaleKeys(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{Limit: 1, Window: time.Second})
	limiter.sweepEvery = 10
	limiter.sweepAtSize = 20
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	for i := 0; i < 25; i++ {
		_, _ = limiter.TryAcquire(ctx, fmt.Sprintf("stale-%d", i))
	}

	limiter.now = func() time.Time { return base.Add(time.Minute) }
	windows := func() int {
		limiter.mu.Lock()
		defer limiter.mu.Unlock()
		return len(limiter.windows)
	}

	// Sweeps are gated by the request counter, not run on every request
	start := limiter.requestCount
	for i := start; i < limiter.sweepEvery-1; i++ {
		_, _ = limiter.TryAcquire(ctx, fmt.Sprintf("fresh-%d", i))
	}
	assert.Greater(t, windows(), limiter.sweepAtSize, "no sweep before the counter fires")

	_, _ = limiter.TryAcquire(ctx, "fresh-last")
	assert.Equal(t, limiter.sweepEvery-start, windows(), "only keys inside the window survive")
	assert.Equal(t, 0, limiter.requestCount)
}

func TestMemoryRateLimiter_NoSweepBelowSize(t *testing.T) {
	limiter := NewMemoryRateLimiter(RateLimitConfig{Limit: 1, Window: time.Second})
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return base }
	for i := 0; i < 2*limiter.sweepEvery; i++ {
		_, _ = limiter.TryAcquire(ctx, fmt.Sprintf("key-%d", i))
	}

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.Len(t, limiter.windows, 2*limiter.sweepEvery)
}
