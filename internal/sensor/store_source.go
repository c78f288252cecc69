package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/waterwatch/internal/domain"
	"golang.org/x/sync/singleflight"
)

const sharedReadTimeout = 5 * time.Second

// StoreSource wraps the reading store. Latest collapses concurrent callers
// (pollers and the broadcaster tick) into one store query. Readings serves
// the broadcaster and falls back to synthesized data while nothing has been
// ingested yet.
type StoreSource struct {
	store    domain.ReadingStore
	fallback domain.ReadingSource
	group    singleflight.Group
}

func NewStoreSource(store domain.ReadingStore, fallback domain.ReadingSource) *StoreSource {
	return &StoreSource{store: store, fallback: fallback}
}

func (s *StoreSource) Save(ctx context.Context, r domain.SensorReading) error {
	return s.store.Save(ctx, r)
}

// Latest returns the latest reading per sensor. The shared query runs on a
// context detached from any single caller, so one caller giving up does not
// fail the others. Each caller still returns as soon as its own ctx is done.
func (s *StoreSource) Latest(ctx context.Context) ([]domain.SensorReading, error) {
	ch := s.group.DoChan("latest", func() (any, error) {
		queryCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		return s.store.Latest(queryCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		stored := res.Val.([]domain.SensorReading)
		if res.Shared {
			// callers must not alias each other's slice
			stored = append([]domain.SensorReading(nil), stored...)
		}
		return stored, nil
	}
}

func (s *StoreSource) Readings(ctx context.Context) ([]domain.SensorReading, error) {
	stored, err := s.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("load latest readings: %w", err)
	}
	if len(stored) > 0 {
		return stored, nil
	}

	if s.fallback == nil {
		return []domain.SensorReading{}, nil
	}
	slog.DebugContext(ctx, "Reading store empty, using fallback source")
	return s.fallback.Readings(ctx)
}
