package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRateLimiter struct {
	counts map[string]int64
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{counts: map[string]int64{}}
}

func (f *fakeRateLimiter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.counts[key]++
	return f.counts[key], nil
}

func loginRequestWithEmail(email string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"`+email+`","password":"pw"}`))
	req.RemoteAddr = "203.0.113.7:4431"
	return req
}

func TestAuthRateLimitBlocksAfterIPLimit(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 2, 0)
	store := newFakeRateLimiter()
	var calls int
	handler := AuthRateLimit(policy, store, idempotencyTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequestWithEmail("a@example.com"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, loginRequestWithEmail("a@example.com"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestAuthRateLimitCountsPerEmail(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", time.Minute, 0, 1)
	store := newFakeRateLimiter()
	var calls int
	handler := AuthRateLimit(policy, store, idempotencyTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, loginRequestWithEmail("a@example.com"))
	require.Equal(t, http.StatusOK, first.Code)

	blocked := httptest.NewRecorder()
	handler.ServeHTTP(blocked, loginRequestWithEmail("A@Example.com"))
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code, "email matching is case-insensitive")

	other := httptest.NewRecorder()
	handler.ServeHTTP(other, loginRequestWithEmail("b@example.com"))
	assert.Equal(t, http.StatusOK, other.Code)
	assert.Equal(t, 2, calls)
}

func TestAuthRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	policy := NewAuthRateLimitPolicy("login", 0, 0, 0)
	handler := AuthRateLimit(policy, newFakeRateLimiter(), idempotencyTestLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, loginRequestWithEmail("a@example.com"))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}
