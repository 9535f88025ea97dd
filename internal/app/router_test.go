package app

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/lendsim/internal/observability"
)

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthz(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{}})
	rr := serve(t, router, "/healthz")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}

func TestRouterProgress(t *testing.T) {
	missing := serve(t, NewRouter(RouterParams{}), "/progress")
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Equal(t, "application/problem+json", missing.Header().Get("Content-Type"))

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	progress := NewProgress(4)
	progress.started = start
	progress.now = func() time.Time { return start.Add(2 * time.Second) }
	progress.Observe(3, 4)

	rr := serve(t, NewRouter(RouterParams{Progress: progress}), "/progress")
	require.Equal(t, http.StatusOK, rr.Code)
	var snap ProgressSnapshot
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snap))
	require.Equal(t, ProgressSnapshot{Done: 3, Total: 4, Percent: 75, ElapsedSeconds: 2}, snap)

	progress.Finish()
	require.True(t, progress.Snapshot().Finished)
}

func TestRouterMetrics(t *testing.T) {
	metrics := observability.NewMetrics()
	metrics.ObserveProgress(5, 10)
	router := NewRouter(RouterParams{Metrics: metrics})

	require.Equal(t, http.StatusOK, serve(t, router, "/healthz").Code)
	rr := serve(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "lendsim_run_merchants_completed 5")
	assert.Contains(t, body, `route="/healthz"`)
}

func TestRouterRateLimit(t *testing.T) {
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	stack := MiddlewareStack(MiddlewareConfig{RequestsPerMinute: 2})
	var handler http.Handler = h
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}
	require.Equal(t, http.StatusNoContent, serve(t, handler, "/").Code)
	require.Equal(t, http.StatusNoContent, serve(t, handler, "/").Code)
	require.Equal(t, http.StatusTooManyRequests, serve(t, handler, "/").Code)
}
