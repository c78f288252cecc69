// Command monitor is a headless subscriber. It follows the live channel,
// falls back to polling while the channel is down and logs every update.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/platform/config"
	"github.com/pscheid92/waterwatch/internal/platform/logging"
	"github.com/pscheid92/waterwatch/internal/sensor"
	"github.com/pscheid92/waterwatch/internal/subscriber"
	"github.com/spf13/cobra"
)

func summarize(readings []domain.SensorReading) (active, warning, inactive int) {
	for _, r := range readings {
		switch r.Status {
		case domain.SensorActive:
			active++
		case domain.SensorWarning:
			warning++
		default:
			inactive++
		}
	}
	return active, warning, inactive
}

// newRootCmd binds flags on top of the environment-loaded cfg. Flags win.
func newRootCmd(cfg *config.MonitorConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "monitor",
		Short:         "Follow the live sensor channel and log every update",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.LiveURL, "live-url", cfg.LiveURL, "WebSocket endpoint of the live channel (empty disables it)")
	flags.StringVar(&cfg.PollURL, "poll-url", cfg.PollURL, "HTTP endpoint polled while the live channel is down")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "interval between polls")
	flags.DurationVar(&cfg.ReconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "delay before each reconnect attempt")
	flags.IntVar(&cfg.MaxReconnectAttempts, "max-reconnect-attempts", cfg.MaxReconnectAttempts, "reconnect attempts per outage")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text, json or pretty")

	return cmd
}

func run(cfg *config.MonitorConfig) error {
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	var dialer subscriber.Dialer
	if cfg.LiveURL != "" {
		dialer = subscriber.NewWSDialer()
	}

	logger := logging.WithComponent("monitor")
	client := subscriber.New(subscriber.Options{
		LiveURL:              cfg.LiveURL,
		Dialer:               dialer,
		Fetcher:              subscriber.NewHTTPFetcher(cfg.PollURL),
		PollInterval:         cfg.PollInterval,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		Placeholder:          sensor.Placeholder(sensor.DefaultCount),
		OnUpdate: func(readings []domain.SensorReading, from subscriber.Channel) {
			active, warning, inactive := summarize(readings)
			logger.Info("Sensor update",
				"channel", from,
				"sensors", len(readings),
				"active", active,
				"warning", warning,
				"inactive", inactive)
		},
		Logger: logging.Logger,
	})

	slog.Info("Monitor started", "live_url", cfg.LiveURL, "poll_url", cfg.PollURL)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutdown signal received", "state", client.State().String())
	client.Close()
	return nil
}

func main() {
	cfg, err := config.LoadMonitor()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := newRootCmd(cfg).Execute(); err != nil {
		log.Fatalf("monitor: %v", err)
	}
}
