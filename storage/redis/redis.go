// Package redis provides a Redis implementation of the gotier.RateLimiter interface.
// The sliding window runs as a Lua script so concurrent instances share one counter.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

var (
	// ErrRedisNotReady is returned when Connect exhausts its retries
	ErrRedisNotReady = errors.New("redis is not ready")

	// ErrInvalidRedisURL is returned when the connection URL cannot be parsed
	ErrInvalidRedisURL = errors.New("invalid redis connection url")
)

// slidingWindow trims entries older than the window, then admits the request
// if fewer than limit entries remain. Returns {allowed, count}.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local limit = tonumber(ARGV[2])
	local window = tonumber(ARGV[3])
	local member = ARGV[4]

	redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

	local count = redis.call('ZCARD', key)
	if count >= limit then
		return {0, count}
	end

	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window * 2)
	return {1, count + 1}
`)

// Config holds Redis rate limiter configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "gotier:ratelimit:")
	KeyPrefix string

	// Limit and Window define the sliding window (default: 5 per minute)
	Limit  int
	Window time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	defaults := gotier.DefaultCheckoutRateLimit()
	return Config{
		KeyPrefix: "gotier:ratelimit:",
		Limit:     defaults.Limit,
		Window:    defaults.Window,
	}
}

// RateLimiter implements gotier.RateLimiter on a Redis sorted set per key
type RateLimiter struct {
	client redis.UniversalClient
	config Config
	seq    atomic.Uint64
	now    func() time.Time
}

// NewRateLimiter creates a Redis-backed rate limiter.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func NewRateLimiter(client redis.UniversalClient, config Config) (*RateLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	defaults := DefaultConfig()
	if config.KeyPrefix == "" {
		config.KeyPrefix = defaults.KeyPrefix
	}
	if config.Limit <= 0 {
		config.Limit = defaults.Limit
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}

	return &RateLimiter{
		client: client,
		config: config,
		now:    time.Now,
	}, nil
}

// TryAcquire implements gotier.RateLimiter
func (r *RateLimiter) TryAcquire(ctx context.Context, key string) (bool, error) {
	nowMs := r.now().UnixMilli()
	// Members must be unique so requests within the same millisecond all count
	member := strconv.FormatInt(nowMs, 10) + "-" + strconv.FormatUint(r.seq.Add(1), 10)

	result, err := slidingWindow.Run(ctx, r.client,
		[]string{r.config.KeyPrefix + key},
		nowMs,
		r.config.Limit,
		r.config.Window.Milliseconds(),
		member,
	).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("failed to execute rate limit script: %w", err)
	}
	if len(result) != 2 {
		return false, fmt.Errorf("unexpected result format from rate limit script")
	}
	return result[0] == 1, nil
}

// Close closes the Redis client connection
func (r *RateLimiter) Close() error {
	return r.client.Close()
}

// Ping checks the Redis connection
func (r *RateLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Connect parses url and pings the server, retrying a few times before giving up
func Connect(ctx context.Context, url string, attempts int, interval time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Join(ErrInvalidRedisURL, err)
	}
	if attempts <= 0 {
		attempts = 1
	}

	for range attempts {
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		case <-time.After(interval):
		}
	}
	return nil, ErrRedisNotReady
}
