package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(msg string) func(context.Context) error {
	return func(_ context.Context) error { return errors.New(msg) }
}

func TestHealthChecks_AllHealthy(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthOK},
		HealthCheck{Name: "redis", Check: healthOK},
	))

	for _, path := range []string{"/health/startup", "/health/ready"} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String(), path)
	}
}

func TestHealthChecks_ReportFirstFailingCheck(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthOK},
		HealthCheck{Name: "redis", Check: healthErr("connection refused")},
		HealthCheck{Name: "mqtt", Check: healthErr("not connected")},
	))

	for _, path := range []string{"/health/startup", "/health/ready"} {
		rec := do(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.JSONEq(t, `{"status":"unhealthy","failed_check":"redis","error":"connection refused"}`, rec.Body.String(), path)
	}
}

func TestHealthChecks_SeeDeadline(t *testing.T) {
	var deadline time.Time
	srv := newTestServer(t, withHealthChecks(HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}))

	do(t, srv, http.MethodGet, "/health/startup", "")

	assert.False(t, deadline.IsZero())
}

func TestLiveness_ReportsUptime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testNow)
	srv := newTestServer(t, withClock(clock))
	clock.Advance(90 * time.Second)

	rec := do(t, srv, http.MethodGet, "/health/live", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.InDelta(t, 90, body["uptime"], 1e-9)
	assert.InDelta(t, 0, body["subscribers"], 1e-9)
}

func TestVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/version", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"go_version"`)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/metrics", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "broadcaster_connected_clients")
}
