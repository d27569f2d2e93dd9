package gotier

import (
	"context"
	"sync"
	"time"
)

// MemoryRateLimiter is a process-local sliding window limiter.
// It is only accurate for single-instance deployments; use the Redis
// limiter when several instances share traffic.
type MemoryRateLimiter struct {
	mu           sync.Mutex
	config       RateLimitConfig
	windows      map[string][]time.Time
	requestCount int
	sweepEvery   int
	sweepAtSize  int
	now          func() time.Time
}

// NewMemoryRateLimiter creates a new in-memory rate limiter
func NewMemoryRateLimiter(config RateLimitConfig) *MemoryRateLimiter {
	if config.Limit <= 0 || config.Window <= 0 {
		config = DefaultCheckoutRateLimit()
	}
	return &MemoryRateLimiter{
		config:      config,
		windows:     make(map[string][]time.Time),
		sweepEvery:  100,
		sweepAtSize: 1024,
		now:         timeNow,
	}
}

// TryAcquire implements RateLimiter
func (r *MemoryRateLimiter) TryAcquire(_ context.Context, key string) (bool, error) {
	now := r.now()
	cutoff := now.Add(-r.config.Window)

	r.mu.Lock()
	defer r.mu.Unlock()

	// Drop timestamps outside the window
	timestamps := r.windows[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= r.config.Limit {
		r.windows[key] = valid
		return false, nil
	}

	r.windows[key] = append(valid, now)
	r.sweep(cutoff)
	return true, nil
}

// sweep removes keys whose newest timestamp fell out of the window. It runs
// under the lock on every sweepEvery-th allowed request once the map holds
// at least sweepAtSize keys.
func (r *MemoryRateLimiter) sweep(cutoff time.Time) {
	r.requestCount++
	if r.requestCount < r.sweepEvery || len(r.windows) < r.sweepAtSize {
		return
	}
	r.requestCount = 0
	for key, timestamps := range r.windows {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(cutoff) {
			delete(r.windows, key)
		}
	}
}
