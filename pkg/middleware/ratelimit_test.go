package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/kennel/pkg/contextkeys"
	"github.com/platinummonkey/kennel/pkg/credentials"
)

func TestRateLimiterAllow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 1})
	rl.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "acme:ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, _ := rl.Allow(ctx, "acme:ip:1.2.3.4")
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "acme:ip:5.6.7.8")
	assert.True(t, ok, "keys are independent")

	now = now.Add(30 * time.Second)
	ok, _ = rl.Allow(ctx, "acme:ip:1.2.3.4")
	assert.True(t, ok, "tokens refill over time")
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	rl.now = func() time.Time { return now }

	_, _ = rl.Allow(context.Background(), "k")
	now = now.Add(3 * time.Minute)
	rl.Cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.buckets)
}

func TestRateLimitMiddlewareKeys(t *testing.T) {
	anonymous := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	authenticated := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute})
	h := NewRateLimitMiddleware(authenticated, anonymous).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	anon := func() *http.Request {
		r := httptest.NewRequest("GET", "/1/data", nil)
		r.RemoteAddr = "10.0.0.1:5555"
		return r.WithContext(contextkeys.WithTenant(r.Context(), "acme"))
	}
	authed := func() *http.Request {
		r := anon()
		identity := &Identity{Tenant: "acme", Credentials: &credentials.Credentials{ID: "c1"}}
		return r.WithContext(contextkeys.WithIdentity(r.Context(), identity))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, anon())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, anon())
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	// credentials have their own bucket
	w = httptest.NewRecorder()
	h.ServeHTTP(w, authed())
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return false, assert.AnError
}

func (failingLimiter) Config() *RateLimitConfig { return DefaultRateLimitConfig() }

func TestRateLimitMiddlewareFallback(t *testing.T) {
	m := NewRateLimitMiddleware(nil, failingLimiter{})
	h := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	m.SetFallbackEnabled(false)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "10.0.0.3, 10.0.0.4")
	assert.Equal(t, "10.0.0.3", getClientIP(r))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	ctx := context.Background()

	rl := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute, BurstSize: 1}, "test")

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "acme:ip:1.2.3.4")
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i)
	}
	ok, err := rl.Allow(ctx, "acme:ip:1.2.3.4")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := rl.Remaining(ctx, "acme:ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := rl.TTL(ctx, "acme:ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	mr.FastForward(time.Minute + time.Second)
	ok, err = rl.Allow(ctx, "acme:ip:1.2.3.4")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")

	require.NoError(t, rl.Reset(ctx, "acme:ip:1.2.3.4"))
	remaining, err = rl.Remaining(ctx, "acme:ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)
}

func TestDistributedRateLimiterRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	rl := NewDistributedRateLimiter(client, nil, "")
	ok, err := rl.Allow(context.Background(), "k")
	assert.Error(t, err)
	assert.True(t, ok)
}
