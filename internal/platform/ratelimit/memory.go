package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a process-local fixed window limiter. It backs single-instance deployments
// that run without Redis.
type MemoryLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu    sync.Mutex
	store map[string]windowEntry
}

type windowEntry struct {
	count int
	reset time.Time
}

// NewMemoryLimiter returns nil when limit or window is not positive; a nil limiter allows everything.
func NewMemoryLimiter(limit int, window time.Duration, clock func() time.Time) *MemoryLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &MemoryLimiter{
		limit:  limit,
		window: window,
		clock:  clock,
		store:  make(map[string]windowEntry),
	}
}

// Allow records a hit for key.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	if l == nil {
		return Result{Allowed: true}, nil
	}
	key = normalizeKey(key)
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.store[key]
	if !ok || !now.Before(entry.reset) {
		l.pruneExpiredLocked(now)
		entry = windowEntry{reset: now.Add(l.window)}
	}
	if entry.count >= l.limit {
		return Result{Allowed: false, Limit: l.limit, ResetAt: entry.reset}, nil
	}
	entry.count++
	l.store[key] = entry
	return Result{Allowed: true, Limit: l.limit, Remaining: remaining(l.limit, entry.count), ResetAt: entry.reset}, nil
}

func (l *MemoryLimiter) pruneExpiredLocked(now time.Time) {
	for key, entry := range l.store {
		if !now.Before(entry.reset) {
			delete(l.store, key)
		}
	}
}
