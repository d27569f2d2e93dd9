package gotier

import (
	"context"
	"time"
)

// RateLimiter decides whether one more request for key fits the current window
type RateLimiter interface {
	// TryAcquire records an attempt for key and reports whether it is allowed.
	// An error means the limiter itself failed; callers choose whether to fail open.
	TryAcquire(ctx context.Context, key string) (bool, error)
}

// RateLimitConfig is a sliding window of Limit requests per Window
type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

// DefaultCheckoutRateLimit allows 5 checkout sessions per user per minute
func DefaultCheckoutRateLimit() RateLimitConfig {
	return RateLimitConfig{Limit: 5, Window: time.Minute}
}
