package domain

import (
	"context"
	"fmt"
	"math"
	"time"
)

type SensorStatus string

const (
	SensorActive   SensorStatus = "active"
	SensorInactive SensorStatus = "inactive"
	SensorWarning  SensorStatus = "warning"
)

func (s SensorStatus) Valid() bool {
	switch s {
	case SensorActive, SensorInactive, SensorWarning:
		return true
	}
	return false
}

// SensorReading is a single sensor position and status. It is the element of
// every payload on the live channel and the polling endpoint.
type SensorReading struct {
	ID        int          `json:"id"`
	Lat       float64      `json:"lat"`
	Lng       float64      `json:"lng"`
	Name      string       `json:"name"`
	Status    SensorStatus `json:"status"`
	FlowRate  *float64     `json:"flowRate,omitempty"` // L/s
	Timestamp time.Time    `json:"timestamp"`
}

// Validate checks field ranges. A zero Timestamp is accepted; callers stamp it.
func (r SensorReading) Validate() error {
	if r.ID <= 0 {
		return fmt.Errorf("%w: sensor id must be positive", ErrInvalidInput)
	}
	if math.IsNaN(r.Lat) || r.Lat < -90 || r.Lat > 90 {
		return fmt.Errorf("%w: lat out of range", ErrInvalidInput)
	}
	if math.IsNaN(r.Lng) || r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("%w: lng out of range", ErrInvalidInput)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown sensor status %q", ErrInvalidInput, r.Status)
	}
	if r.FlowRate != nil && (math.IsNaN(*r.FlowRate) || *r.FlowRate < 0) {
		return fmt.Errorf("%w: flowRate must be non-negative", ErrInvalidInput)
	}
	return nil
}

// ReadingSource produces the reading set pushed on each broadcast tick.
type ReadingSource interface {
	Readings(ctx context.Context) ([]SensorReading, error)
}

// ReadingStore persists readings. Latest returns the most recent reading per
// sensor, ordered by sensor id; an empty store returns an empty slice.
type ReadingStore interface {
	Save(ctx context.Context, reading SensorReading) error
	Latest(ctx context.Context) ([]SensorReading, error)
}

// SnapshotCache holds the most recently broadcast payload so the polling
// endpoint serves the same set the live channel pushed.
type SnapshotCache interface {
	PutSnapshot(ctx context.Context, payload []byte) error
	GetSnapshot(ctx context.Context) ([]byte, error)
}
