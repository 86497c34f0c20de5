package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAllowSpendsBurstPerIP(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, nil, discardLogger())

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))

	st := rl.Stats()
	assert.Equal(t, 2, st.TrackedIPs)
	assert.Equal(t, 3, st.Burst)
	assert.InDelta(t, 0.05, st.RatePerSecond, 1e-9)
}

func TestMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, []string{" 10.0.0.9 "}, discardLogger())
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(remote, xff string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/flights", nil)
		req.RemoteAddr = remote
		if xff != "" {
			req.Header.Set("X-Forwarded-For", xff)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:5000", "").Code)
	rec := do("10.0.0.1:5001", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// Forwarded address is the client, not the proxy.
	assert.Equal(t, http.StatusNoContent, do("10.0.0.1:5002", "192.0.2.7, 10.0.0.1").Code)

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, do("10.0.0.9:4000", "").Code)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.4:1234"
	assert.Equal(t, "198.51.100.4", getClientIP(req))

	req.Header.Set("X-Real-IP", "203.0.113.5")
	assert.Equal(t, "203.0.113.5", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.1:8080, 10.0.0.1")
	assert.Equal(t, "192.0.2.1", getClientIP(req))
}

func TestSweepDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(5, time.Second, nil, discardLogger())
	rl.Allow("10.0.0.1")

	rl.sweep(time.Now())
	assert.Equal(t, 1, rl.Stats().TrackedIPs)

	rl.sweep(time.Now().Add(3 * time.Second))
	assert.Zero(t, rl.Stats().TrackedIPs)
}
