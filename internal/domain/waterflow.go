package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WaterFlowPoint is one point of the aggregate water-flow chart. Timestamp is
// a display label supplied by the reporter, not a parsed instant.
type WaterFlowPoint struct {
	ID        uuid.UUID `json:"id"`
	Timestamp string    `json:"timestamp"`
	Value     float64   `json:"value"`
	CreatedAt time.Time `json:"createdAt"`
}

type WaterFlowRepository interface {
	// List returns up to limit points, oldest first.
	List(ctx context.Context, limit int) ([]WaterFlowPoint, error)
	Create(ctx context.Context, point WaterFlowPoint) error
}
