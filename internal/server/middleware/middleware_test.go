package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthDisabledWhenNoKey(t *testing.T) {
	h := Auth("")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRejectsMissingToken(t *testing.T) {
	h := Auth("secret")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthAcceptsBearerAndHeader(t *testing.T) {
	h := Auth("secret")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	r.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)

	r = httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	r.Header.Set("X-API-Key", "secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthExemptsHealthCheck(t *testing.T) {
	h := Auth("secret")(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSReflectsAllowedOrigin(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))
}

func TestCORSIgnoresUnknownOrigin(t *testing.T) {
	h := CORS([]string{"http://localhost:3000"})(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	r.Header.Set("Origin", "http://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	called := false
	h := CORS(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodOptions, "/api/watch", nil)
	r.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, called)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return s.allowed, s.err
}

func TestRateLimitBlocks(t *testing.T) {
	h := RateLimit(stubLimiter{allowed: false}, 10, time.Minute)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRateLimitFailsOpenOnError(t *testing.T) {
	h := RateLimit(stubLimiter{err: assert.AnError}, 10, time.Minute)(okHandler())

	r := httptest.NewRequest(http.MethodGet, "/api/watch", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}
