package main

import (
	"testing"
	"time"

	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/platform/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monitorConfig() *config.MonitorConfig {
	return &config.MonitorConfig{
		LiveURL:              "ws://localhost:5000/ws/sensors",
		PollURL:              "http://localhost:5000/api/sensors",
		PollInterval:         10 * time.Second,
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 5,
		LogLevel:             "info",
		LogFormat:            "text",
	}
}

func TestRootCmd_FlagsOverrideEnvironment(t *testing.T) {
	cfg := monitorConfig()
	cmd := newRootCmd(cfg)

	require.NoError(t, cmd.ParseFlags([]string{
		"--live-url=",
		"--poll-interval=2s",
		"--max-reconnect-attempts=3",
		"--log-format=pretty",
	}))

	assert.Empty(t, cfg.LiveURL)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, "pretty", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay)
}

func TestRootCmd_RejectsInvalidFlags(t *testing.T) {
	cmd := newRootCmd(monitorConfig())
	cmd.SetArgs([]string{"--reconnect-delay=0s"})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "MONITOR_RECONNECT_DELAY must be positive")
}

func TestSummarize(t *testing.T) {
	readings := []domain.SensorReading{
		{ID: 1, Status: domain.SensorActive},
		{ID: 2, Status: domain.SensorWarning},
		{ID: 3, Status: domain.SensorActive},
		{ID: 4, Status: domain.SensorInactive},
	}

	active, warning, inactive := summarize(readings)

	assert.Equal(t, 2, active)
	assert.Equal(t, 1, warning)
	assert.Equal(t, 1, inactive)
}

func TestRootCmd_FlagRepairsInvalidEnvironment(t *testing.T) {
	cfg := monitorConfig()
	cfg.ReconnectDelay = 0 // as loaded from MONITOR_RECONNECT_DELAY=0s
	cmd := newRootCmd(cfg)

	require.NoError(t, cmd.ParseFlags([]string{"--reconnect-delay=3s"}))

	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 3*time.Second, cfg.ReconnectDelay)
}
