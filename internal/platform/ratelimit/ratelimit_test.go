package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLimiterWindow(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := NewMemoryLimiter(2, time.Minute, func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, _ := limiter.Allow(ctx, "1.2.3.4")
	assert.False(t, res.Allowed)
	assert.Equal(t, now.Add(time.Minute), res.ResetAt)

	res, _ = limiter.Allow(ctx, "5.6.7.8")
	assert.True(t, res.Allowed, "keys are independent")

	now = now.Add(time.Minute)
	res, _ = limiter.Allow(ctx, "1.2.3.4")
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)
}

func TestNilMemoryLimiterAllows(t *testing.T) {
	limiter := NewMemoryLimiter(0, time.Minute, nil)
	res, err := limiter.Allow(context.Background(), "x")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	limiter := NewMemoryLimiter(1, time.Minute, nil)
	handler := Middleware(limiter, "global", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"success":false,"errors":[{"message":"too many requests"}]}`, rec.Body.String())
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (Result, error) {
	return Result{}, errors.New("redis down")
}

func TestMiddlewareFailsOpen(t *testing.T) {
	handler := Middleware(failingLimiter{}, "global", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRedisLimiterReportsConnectionErrors(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	limiter, err := NewRedisLimiter(client, "rl", 10, time.Minute, nil)
	require.NoError(t, err)
	_, err = limiter.Allow(context.Background(), "1.2.3.4")
	assert.Error(t, err)

	_, err = NewRedisLimiter(nil, "rl", 10, time.Minute, nil)
	assert.Error(t, err)
}
