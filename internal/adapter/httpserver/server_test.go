package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/waterwatch/internal/adapter/memory"
	"github.com/pscheid92/waterwatch/internal/app"
	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/platform/config"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type sourceFunc func(ctx context.Context) ([]domain.SensorReading, error)

func (f sourceFunc) Readings(ctx context.Context) ([]domain.SensorReading, error) { return f(ctx) }

func syntheticReadings(context.Context) ([]domain.SensorReading, error) {
	return []domain.SensorReading{{ID: 1, Lat: -1.29, Lng: 36.82, Name: "Sensor 1", Status: domain.SensorActive, Timestamp: testNow}}, nil
}

type nopLive struct{}

func (nopLive) Register(*websocket.Conn) error { return nil }
func (nopLive) Unregister(*websocket.Conn)     {}

type testServerOptions struct {
	cfg          *config.Config
	live         liveChannel
	clock        clockwork.Clock
	healthChecks []HealthCheck
}

type testOption func(*testServerOptions)

func withConfig(mutate func(*config.Config)) testOption {
	return func(o *testServerOptions) { mutate(o.cfg) }
}

func withLive(live liveChannel) testOption {
	return func(o *testServerOptions) { o.live = live }
}

func withClock(clock clockwork.Clock) testOption {
	return func(o *testServerOptions) { o.clock = clock }
}

func withHealthChecks(checks ...HealthCheck) testOption {
	return func(o *testServerOptions) { o.healthChecks = checks }
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                  "development",
		Port:                    "0",
		AppURL:                  "http://localhost:5000",
		BroadcastInterval:       5 * time.Second,
		SensorCount:             3,
		MaxWebSocketConnections: 10,
		MaxConnectionsPerIP:     5,
		ConnectionRate:          100,
		ConnectionBurst:         100,
		APIRateLimit:            1000,
		APIRateBurst:            1000,
	}
}

func newTestServer(t *testing.T, opts ...testOption) *Server {
	t.Helper()

	o := &testServerOptions{
		cfg:   testConfig(),
		live:  nopLive{},
		clock: clockwork.NewFakeClockAt(testNow),
	}
	for _, opt := range opts {
		opt(o)
	}

	svc := app.NewService(app.Stores{
		Readings:        memory.NewReadingStore(),
		Fallback:        sourceFunc(syntheticReadings),
		WaterFlow:       memory.NewWaterFlowRepo(),
		Anomalies:       memory.NewAnomalyRepo(),
		Recommendations: memory.NewRecommendationRepo(),
		Bills:           memory.NewBillRepo(),
	}, o.clock)

	return NewServer(o.cfg, svc, o.live, prometheus.NewRegistry(), o.clock, o.healthChecks)
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}
