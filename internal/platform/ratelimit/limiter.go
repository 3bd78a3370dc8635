package ratelimit

import (
	"context"
	"time"
)

// Result reports the outcome of a single Allow call.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per key inside a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

func normalizeKey(key string) string {
	if key == "" {
		return "anonymous"
	}
	return key
}

func remaining(limit, count int) int {
	if count >= limit {
		return 0
	}
	return limit - count
}
