package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	ctx := context.Background()

	t.Run("allows requests under limit", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			allowed, remaining, _ := limiter.Check(ctx, "user-1", 10)
			assert.True(t, allowed)
			assert.Equal(t, 10-i-1, remaining)
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "user-2", 5)
		}

		allowed, remaining, _ := limiter.Check(ctx, "user-2", 5)
		assert.False(t, allowed)
		assert.Equal(t, 0, remaining)
	})

	t.Run("tracks users separately", func(t *testing.T) {
		limiter := NewRateLimiter()

		for i := 0; i < 5; i++ {
			limiter.Check(ctx, "user-a", 5)
		}

		allowed, _, _ := limiter.Check(ctx, "user-b", 5)
		assert.True(t, allowed)
	})

	t.Run("returns reset time", func(t *testing.T) {
		limiter := NewRateLimiter()

		_, _, resetAt := limiter.Check(ctx, "user-3", 10)
		assert.Greater(t, resetAt, int64(0))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("passes anonymous requests through", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 1).Handler(ok)

		for i := 0; i < 3; i++ {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest("GET", "/test", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("sets rate limit headers", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 100).Handler(ok)

		req := httptest.NewRequest("GET", "/test", nil)
		req = req.WithContext(WithUserID(req.Context(), "user-1"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "99", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("rejects when exceeded", func(t *testing.T) {
		handler := NewRateLimitMiddleware(NewRateLimiter(), 2).Handler(ok)

		var rec *httptest.ResponseRecorder
		for i := 0; i < 3; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			req = req.WithContext(WithUserID(req.Context(), "user-2"))
			rec = httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
		}

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
	})

	t.Run("defaults the limit", func(t *testing.T) {
		m := NewRateLimitMiddleware(NewRateLimiter(), 0)
		assert.Equal(t, 120, m.limit)
	})
}
