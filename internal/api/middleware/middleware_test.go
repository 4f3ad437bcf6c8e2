package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/brainbox/retailplus/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

type fixedTenant string

func (f fixedTenant) ActiveTenantID() (string, bool) { return string(f), f != "" }

type ownerFlag bool

func (o ownerFlag) IsOwner() bool { return bool(o) }

func TestRateLimiter_PerClient(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"), "burst spent")
	assert.True(t, rl.Allow("b"), "separate bucket")

	now = now.Add(time.Second)
	assert.True(t, rl.Allow("a"), "refilled")
}

func TestRateLimiter_SweepsIdleClients(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	now := time.Now()
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(limiterIdleTTL + time.Second)
	rl.Allow("fresh")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.limiters, "idle")
	assert.Contains(t, rl.limiters, "fresh")
}

func TestRateLimit_Middleware(t *testing.T) {
	h := RateLimit(1, 1)(okHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\twith space")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Len(t, seen, 36)
	assert.NotContains(t, seen, " ")
}

func TestUsableRequestID(t *testing.T) {
	assert.True(t, usableRequestID("req-1_a.b:c"))
	assert.False(t, usableRequestID(""))
	assert.False(t, usableRequestID("a b"))
	assert.False(t, usableRequestID("a\nb"))
	assert.False(t, usableRequestID(strings.Repeat("x", maxRequestIDLen+1)))
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		header string
		want   int
	}{
		{"disabled", "", "", http.StatusOK},
		{"missing header", "tok", "", http.StatusUnauthorized},
		{"wrong scheme", "tok", "Basic tok", http.StatusUnauthorized},
		{"wrong token", "tok", "Bearer nope", http.StatusUnauthorized},
		{"valid", "tok", "bearer tok", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			BearerToken(tt.token)(okHandler).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestOwnerOnly(t *testing.T) {
	rec := httptest.NewRecorder()
	OwnerOnly(ownerFlag(false))(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	OwnerOnly(ownerFlag(true))(okHandler).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggingAndMetrics_UseRoutePattern(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := metrics.New()

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Metrics(m))
	r.Use(Logging(zap.New(core), fixedTenant("t-1")))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/boom", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/items/43", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/items/{id}", "418")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/boom", "500")))

	entries := logs.All()
	require.Len(t, entries, 3)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/items/{id}", fields["route"])
	assert.Equal(t, "t-1", fields["tenant_id"])
	assert.NotEmpty(t, fields["request_id"])
	assert.Equal(t, zap.WarnLevel, entries[2].Level)
}
