package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/waterwatch/internal/adapter/httpserver"
	"github.com/pscheid92/waterwatch/internal/adapter/memory"
	"github.com/pscheid92/waterwatch/internal/adapter/mqtt"
	"github.com/pscheid92/waterwatch/internal/adapter/postgres"
	"github.com/pscheid92/waterwatch/internal/adapter/redis"
	"github.com/pscheid92/waterwatch/internal/app"
	"github.com/pscheid92/waterwatch/internal/broadcast"
	"github.com/pscheid92/waterwatch/internal/metrics"
	"github.com/pscheid92/waterwatch/internal/platform/config"
	"github.com/pscheid92/waterwatch/internal/platform/logging"
	"github.com/pscheid92/waterwatch/internal/platform/retry"
	"github.com/pscheid92/waterwatch/internal/platform/version"
	"github.com/pscheid92/waterwatch/internal/sensor"
	goredis "github.com/redis/go-redis/v9"
)

// snapshotTTLFactor keeps a snapshot alive across two missed broadcasts.
const snapshotTTLFactor = 3

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	policy := retry.Startup
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		slog.Warn("Database not reachable, retrying", "attempt", attempt, "backoff", backoff, "error", err)
	}
	pool, err := retry.Do(ctx, policy, retry.Transient, func(ctx context.Context) (*pgxpool.Pool, error) {
		return postgres.Connect(ctx, cfg.DatabaseURL)
	})
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := retry.Do(ctx, retry.Startup, retry.Transient, func(ctx context.Context) (*goredis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL)
	})
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

// setupStores picks Postgres and Redis when configured and the in-memory
// adapters otherwise.
func setupStores(cfg *config.Config, clock clockwork.Clock, fallback *sensor.Generator) (app.Stores, []httpserver.HealthCheck, func()) {
	var (
		checks  []httpserver.HealthCheck
		closers []func()
	)
	stores := app.Stores{Fallback: fallback}

	if cfg.DatabaseURL != "" {
		pool := setupDB(cfg)
		closers = append(closers, pool.Close)
		checks = append(checks, httpserver.HealthCheck{Name: "postgres", Check: pool.Ping})

		stores.Readings = postgres.NewReadingRepo(pool)
		stores.WaterFlow = postgres.NewWaterFlowRepo(pool)
		stores.Anomalies = postgres.NewAnomalyRepo(pool)
		stores.Recommendations = postgres.NewRecommendationRepo(pool)
		stores.Bills = postgres.NewBillRepo(pool)
	} else {
		slog.Warn("DATABASE_URL not set, records are kept in memory only")
		stores.Readings = memory.NewReadingStore()
		stores.WaterFlow = memory.NewWaterFlowRepo()
		stores.Anomalies = memory.NewAnomalyRepo()
		stores.Recommendations = memory.NewRecommendationRepo()
		stores.Bills = memory.NewBillRepo()
	}

	ttl := snapshotTTLFactor * cfg.BroadcastInterval
	if cfg.RedisURL != "" {
		client := setupRedis(cfg)
		closers = append(closers, func() { _ = client.Close() })
		checks = append(checks, httpserver.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
		stores.Snapshots = redis.NewSnapshotCache(client, ttl)
	} else {
		stores.Snapshots = memory.NewSnapshotCache(clock, ttl)
	}

	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return stores, checks, cleanup
}

func setupIngest(cfg *config.Config, svc *app.Service) *mqtt.Subscriber {
	if cfg.MQTTBrokerURL == "" {
		return nil
	}

	logger := logging.WithComponent("mqtt")
	sub := mqtt.NewSubscriber(mqtt.Options{
		BrokerURL: cfg.MQTTBrokerURL,
		ClientID:  cfg.MQTTClientID,
		Topic:     cfg.MQTTTopic,
		QoS:       1,
		Logger:    logger,
	}, mqtt.NewHandler(svc, logger))

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := sub.Start(ctx); err != nil {
		slog.Error("Failed to connect to MQTT broker", "error", err)
		os.Exit(1)
	}
	return sub
}

func runGracefulShutdown(srv *httpserver.Server, broadcaster *broadcast.Broadcaster, ingest *mqtt.Subscriber) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		if ingest != nil {
			ingest.Stop()
		}

		// Close subscribers first so Shutdown is not held up by open read pumps.
		broadcaster.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.BuildTime, info.GoVersion).Set(1)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version)

	generator := sensor.NewGenerator(cfg.SensorCount, clock, nil)
	stores, healthChecks, cleanup := setupStores(cfg, clock, generator)
	defer cleanup()

	// Pollers and the broadcaster tick share one store query.
	shared := sensor.NewStoreSource(stores.Readings, generator)
	stores.Readings = shared

	appSvc := app.NewService(stores, clock)
	ingest := setupIngest(cfg, appSvc)

	broadcaster := broadcast.NewBroadcaster(shared, stores.Snapshots, clock, cfg.MaxWebSocketConnections, cfg.BroadcastInterval)

	srv := httpserver.NewServer(cfg, appSvc, broadcaster, prometheus.DefaultRegisterer, clock, healthChecks)

	done := runGracefulShutdown(srv, broadcaster, ingest)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
