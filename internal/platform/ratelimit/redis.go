package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares fixed window counters across instances through Redis.
type RedisLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
	clock  func() time.Time
}

// NewRedisLimiter builds a limiter whose keys live under prefix.
func NewRedisLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration, clock func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("ratelimit: redis client is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, fmt.Errorf("ratelimit: limit and window must be positive")
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{client: client, prefix: prefix, limit: limit, window: window, clock: clock}, nil
}

// Allow increments the counter for the current window and sets its expiry on first use.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.clock()
	windowStart := now.Truncate(l.window)
	reset := windowStart.Add(l.window)
	fullKey := fmt.Sprintf("%s:%s:%d", l.prefix, normalizeKey(key), windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, fullKey)
	pipe.ExpireNX(ctx, fullKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("ratelimit: redis incr: %w", err)
	}

	count := int(incr.Val())
	return Result{
		Allowed:   count <= l.limit,
		Limit:     l.limit,
		Remaining: remaining(l.limit, count),
		ResetAt:   reset,
	}, nil
}
