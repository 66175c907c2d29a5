package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/corpalert/corpalert-backend/pkg/errors"
	"github.com/corpalert/corpalert-backend/pkg/logger"
)

type memoryLimiter struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newMemoryLimiter() *memoryLimiter {
	return &memoryLimiter{counts: map[string]int64{}}
}

func (m *memoryLimiter) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	if m.err != nil {
		return false, 0, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[scope]++
	return m.counts[scope] <= limit, m.counts[scope], nil
}

func (m *memoryLimiter) scopes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.counts))
	for k := range m.counts {
		out = append(out, k)
	}
	return out
}

func credentialRequest(path, email, remote string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"email":"`+email+`","password":"longenough"}`))
	req.RemoteAddr = remote
	return req
}

func okHandler(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestAuthRateLimitPassesBodyThrough(t *testing.T) {
	limiter := newMemoryLimiter()
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 5, 5), limiter, logger.Nop())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), `"email":"Farmer@Example.com"`)
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/auth/login", "Farmer@Example.com", "10.0.0.1:4000"))
	require.Equal(t, http.StatusOK, rec.Code)

	scopes := limiter.scopes()
	assert.Contains(t, scopes, "login:ip:10.0.0.1")
	for _, s := range scopes {
		assert.NotContains(t, strings.ToLower(s), "farmer@example.com", "emails are hashed")
	}
}

func TestAuthRateLimitEmailDimension(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 0, 2), newMemoryLimiter(), logger.Nop())(http.HandlerFunc(okHandler))

	emails := []string{"agro@example.com", "AGRO@example.com ", "agro@example.com"}
	for i, email := range emails {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("/api/auth/login", email, "10.0.0.1:4000"))
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
		assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeRateLimit))
	}
}

func TestAuthRateLimitIPDimensionUsesForwardedFor(t *testing.T) {
	handler := AuthRateLimit(NewAuthRateLimitPolicy("register", time.Minute, 1, 0), newMemoryLimiter(), logger.Nop())(http.HandlerFunc(okHandler))

	first := credentialRequest("/api/auth/register", "a@example.com", "10.0.0.9:1")
	first.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.9")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := credentialRequest("/api/auth/register", "b@example.com", "10.0.0.10:1")
	second.Header.Set("X-Forwarded-For", "203.0.113.7")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAuthRateLimitLimiterFailure(t *testing.T) {
	limiter := newMemoryLimiter()
	limiter.err = errors.New("redis down")
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", time.Minute, 1, 1), limiter, logger.Nop())(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, credentialRequest("/api/auth/login", "a@example.com", "10.0.0.1:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthRateLimitDisabledPolicy(t *testing.T) {
	limiter := newMemoryLimiter()
	handler := AuthRateLimit(NewAuthRateLimitPolicy("login", 0, 1, 1), limiter, logger.Nop())(http.HandlerFunc(okHandler))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, credentialRequest("/api/auth/login", "a@example.com", "10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, limiter.scopes())
}
