package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"5000"`
	AppURL      string `env:"APP_URL" default:"http://localhost:5000"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	MQTTBrokerURL string `env:"MQTT_BROKER_URL"`
	MQTTTopic     string `env:"MQTT_TOPIC" default:"sensors/+/readings"`
	MQTTClientID  string `env:"MQTT_CLIENT_ID" default:"waterwatch-ingest"`

	BroadcastInterval time.Duration `env:"BROADCAST_INTERVAL" default:"5s"`
	SensorCount       int           `env:"SENSOR_COUNT" default:"24"`

	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"1000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRate          float64 `env:"WEBSOCKET_CONNECT_RATE" default:"10"`
	ConnectionBurst         int     `env:"WEBSOCKET_CONNECT_BURST" default:"20"`

	APIRateLimit float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst int     `env:"API_RATE_BURST" default:"40"`
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// MonitorConfig configures the headless subscriber binary.
type MonitorConfig struct {
	LiveURL              string        `env:"MONITOR_LIVE_URL" default:"ws://localhost:5000/ws/sensors"`
	PollURL              string        `env:"MONITOR_POLL_URL" default:"http://localhost:5000/api/sensors"`
	PollInterval         time.Duration `env:"MONITOR_POLL_INTERVAL" default:"10s"`
	ReconnectDelay       time.Duration `env:"MONITOR_RECONNECT_DELAY" default:"5s"`
	MaxReconnectAttempts int           `env:"MONITOR_MAX_RECONNECT_ATTEMPTS" default:"5"`
	LogLevel             string        `env:"LOG_LEVEL" default:"info"`
	LogFormat            string        `env:"LOG_FORMAT" default:"text"`
}

func Load() (*Config, error) {
	loadDotEnv()

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadMonitor only parses. Command-line flags may still override what it
// read, so callers run Validate once they are applied.
func LoadMonitor() (*MonitorConfig, error) {
	loadDotEnv()

	var cfg MonitorConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	return &cfg, nil
}

func (c *MonitorConfig) Validate() error {
	if c.PollURL == "" {
		return errors.New("MONITOR_POLL_URL is required")
	}
	if c.PollInterval <= 0 {
		return errors.New("MONITOR_POLL_INTERVAL must be positive")
	}
	if c.ReconnectDelay <= 0 {
		return errors.New("MONITOR_RECONNECT_DELAY must be positive")
	}
	if c.MaxReconnectAttempts < 0 {
		return errors.New("MONITOR_MAX_RECONNECT_ATTEMPTS must not be negative")
	}
	return nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}
}

func validate(cfg *Config) error {
	if cfg.BroadcastInterval <= 0 {
		return errors.New("BROADCAST_INTERVAL must be positive")
	}
	if cfg.SensorCount < 1 {
		return errors.New("SENSOR_COUNT must be at least 1")
	}
	if cfg.MaxWebSocketConnections < 1 {
		return errors.New("MAX_WEBSOCKET_CONNECTIONS must be at least 1")
	}
	if cfg.MaxConnectionsPerIP < 1 {
		return errors.New("MAX_CONNECTIONS_PER_IP must be at least 1")
	}
	if cfg.ConnectionRate <= 0 || cfg.ConnectionBurst < 1 {
		return errors.New("WEBSOCKET_CONNECT_RATE and WEBSOCKET_CONNECT_BURST must be positive")
	}
	if cfg.APIRateLimit <= 0 || cfg.APIRateBurst < 1 {
		return errors.New("API_RATE_LIMIT and API_RATE_BURST must be positive")
	}
	if cfg.MQTTBrokerURL != "" && cfg.MQTTTopic == "" {
		return errors.New("MQTT_TOPIC is required when MQTT_BROKER_URL is set")
	}

	if cfg.IsProduction() && cfg.DatabaseURL != "" {
		mode := sslMode(cfg.DatabaseURL)
		if mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
