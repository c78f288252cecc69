package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/waterwatch/internal/metrics"
)

// Subscribers never send application messages; anything larger than a
// control frame is a protocol violation.
const maxInboundMessageSize = 512

// handleLiveSensors upgrades the request and hands the connection to the
// broadcaster. The handler then runs the read pump until the peer goes away,
// which is what keeps pong handling and close detection alive.
func (s *Server) handleLiveSensors(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		metrics.WebSocketConnectionsRejected.WithLabelValues(string(reason)).Inc()
		metrics.WebSocketConnectionsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("Live channel connection rejected", "remote_ip", ip, "reason", reason)

		status := http.StatusServiceUnavailable
		if reason != LimitReasonGlobal {
			status = http.StatusTooManyRequests
		}
		return echo.NewHTTPError(status, "too many live connections")
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Debug("Live channel upgrade failed", "remote_ip", ip, "error", err)
		return nil
	}
	conn.SetReadLimit(maxInboundMessageSize)

	if err := s.live.Register(conn); err != nil {
		metrics.WebSocketConnectionsTotal.WithLabelValues("error").Inc()
		slog.Warn("Failed to register live subscriber", "remote_ip", ip, "error", err)
		_ = conn.Close()
		return nil
	}
	metrics.WebSocketConnectionsTotal.WithLabelValues("success").Inc()

	connectedAt := s.clock.Now()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.live.Unregister(conn)
	metrics.WebSocketConnectionDuration.Observe(s.clock.Since(connectedAt).Seconds())
	return nil
}
