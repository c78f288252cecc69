package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/metrics"
	"github.com/pscheid92/waterwatch/internal/platform/config"
)

type appService interface {
	CurrentReadings(ctx context.Context) ([]domain.SensorReading, error)
	RecordReading(ctx context.Context, r domain.SensorReading) (domain.SensorReading, error)

	WaterFlow(ctx context.Context, limit int) ([]domain.WaterFlowPoint, error)
	RecordWaterFlow(ctx context.Context, label string, value float64) (domain.WaterFlowPoint, error)

	ListAnomalies(ctx context.Context, filter domain.AnomalyFilter) (domain.AnomalyPage, error)
	GetAnomaly(ctx context.Context, id uuid.UUID) (*domain.Anomaly, error)
	CreateAnomaly(ctx context.Context, a domain.Anomaly) (domain.Anomaly, error)
	UpdateAnomalyStatus(ctx context.Context, id uuid.UUID, status domain.AnomalyStatus, notes string) (*domain.Anomaly, error)
	DeleteAnomaly(ctx context.Context, id uuid.UUID) error
	CriticalAnomalies(ctx context.Context) ([]domain.Anomaly, error)
	AnomalyStats(ctx context.Context) (domain.AnomalyStats, error)

	ActiveRecommendations(ctx context.Context, userID string, limit int) ([]domain.Recommendation, error)
	CreateRecommendation(ctx context.Context, r domain.Recommendation) (domain.Recommendation, error)
	UpdateRecommendationStatus(ctx context.Context, id uuid.UUID, status domain.RecommendationStatus) (*domain.Recommendation, error)

	ListBills(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error)
	CreateBill(ctx context.Context, b domain.Bill) (domain.Bill, error)
	GetBill(ctx context.Context, id uuid.UUID) (*domain.Bill, error)
	DeleteBill(ctx context.Context, id uuid.UUID) error
	BillSummary(ctx context.Context, filter domain.BillFilter) (domain.BillSummary, error)
}

// liveChannel fans out reading sets to upgraded connections.
type liveChannel interface {
	Register(conn *websocket.Conn) error
	Unregister(conn *websocket.Conn)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app      appService
	live     liveChannel
	limits   *ConnectionLimits
	upgrader websocket.Upgrader

	httpMetrics  *metrics.HTTPMetrics
	healthChecks []HealthCheck
}

// NewServer wires the routes. HTTP request metrics are registered on reg.
func NewServer(cfg *config.Config, app appService, live liveChannel, reg prometheus.Registerer, clock clockwork.Clock, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:   e,
		config: cfg,
		clock:  clock,
		app:    app,
		live:   live,
		limits: NewConnectionLimits(clock, int64(cfg.MaxWebSocketConnections), cfg.MaxConnectionsPerIP,
			cfg.ConnectionRate, cfg.ConnectionBurst),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, !cfg.IsProduction()),
		},
		httpMetrics:  metrics.NewHTTPMetrics(reg),
		healthChecks: healthChecks,
	}
	srv.registerRoutes()

	return srv
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
