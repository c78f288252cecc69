// Package mqtt ingests sensor readings published to an MQTT broker.
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/metrics"
)

// Recorder validates and persists one reading.
type Recorder interface {
	RecordReading(ctx context.Context, r domain.SensorReading) (domain.SensorReading, error)
}

// Handler decodes broker payloads into readings. A payload is either one
// reading object or an array of them.
type Handler struct {
	recorder Recorder
	logger   *slog.Logger
}

func NewHandler(recorder Recorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{recorder: recorder, logger: logger}
}

// HandleMessage stores every valid reading in payload and returns how many
// were stored. Invalid readings are skipped; a malformed payload stores nothing.
func (h *Handler) HandleMessage(ctx context.Context, topic string, payload []byte) (int, error) {
	readings, err := decodeReadings(payload)
	if err != nil {
		metrics.IngestMessagesTotal.WithLabelValues("malformed").Inc()
		h.logger.WarnContext(ctx, "Dropping malformed sensor payload", "topic", topic, "error", err)
		return 0, err
	}

	topicID, hasTopicID := sensorIDFromTopic(topic)

	stored := 0
	var errs []error
	for _, r := range readings {
		if r.ID == 0 && hasTopicID {
			r.ID = topicID
		}

		if _, err := h.recorder.RecordReading(ctx, r); err != nil {
			if errors.Is(err, domain.ErrInvalidInput) {
				metrics.IngestMessagesTotal.WithLabelValues("invalid").Inc()
				h.logger.WarnContext(ctx, "Dropping invalid sensor reading", "topic", topic, "sensor_id", r.ID, "error", err)
			} else {
				metrics.IngestMessagesTotal.WithLabelValues("error").Inc()
				h.logger.ErrorContext(ctx, "Failed to store sensor reading", "topic", topic, "sensor_id", r.ID, "error", err)
			}
			errs = append(errs, err)
			continue
		}
		metrics.IngestMessagesTotal.WithLabelValues("stored").Inc()
		stored++
	}
	return stored, errors.Join(errs...)
}

func decodeReadings(payload []byte) ([]domain.SensorReading, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, errors.New("empty payload")
	}

	if trimmed[0] == '[' {
		var readings []domain.SensorReading
		if err := json.Unmarshal(trimmed, &readings); err != nil {
			return nil, fmt.Errorf("decode reading array: %w", err)
		}
		return readings, nil
	}

	var reading domain.SensorReading
	if err := json.Unmarshal(trimmed, &reading); err != nil {
		return nil, fmt.Errorf("decode reading: %w", err)
	}
	return []domain.SensorReading{reading}, nil
}

// sensorIDFromTopic extracts N from topics shaped like "sensors/N/readings".
func sensorIDFromTopic(topic string) (int, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 || parts[0] != "sensors" {
		return 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
