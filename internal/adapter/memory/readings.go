// Package memory provides in-process implementations of the domain
// repositories. They back the service when no database or Redis URL is
// configured and serve as fakes in tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/waterwatch/internal/domain"
)

// ReadingStore keeps the newest reading per sensor.
type ReadingStore struct {
	mu     sync.RWMutex
	latest map[int]domain.SensorReading
}

func NewReadingStore() *ReadingStore {
	return &ReadingStore{latest: make(map[int]domain.SensorReading)}
}

func (s *ReadingStore) Save(_ context.Context, r domain.SensorReading) error {
	if r.FlowRate != nil {
		flow := *r.FlowRate
		r.FlowRate = &flow
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.latest[r.ID]; ok && prev.Timestamp.After(r.Timestamp) {
		return nil
	}
	s.latest[r.ID] = r
	return nil
}

func (s *ReadingStore) Latest(context.Context) ([]domain.SensorReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SensorReading, 0, len(s.latest))
	for _, r := range s.latest {
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b domain.SensorReading) int { return a.ID - b.ID })
	return out, nil
}

// SnapshotCache holds one payload that expires after ttl.
type SnapshotCache struct {
	clock clockwork.Clock
	ttl   time.Duration

	mu        sync.RWMutex
	payload   []byte
	expiresAt time.Time
}

func NewSnapshotCache(clock clockwork.Clock, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{clock: clock, ttl: ttl}
}

func (c *SnapshotCache) PutSnapshot(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = slices.Clone(payload)
	c.expiresAt = c.clock.Now().Add(c.ttl)
	return nil
}

func (c *SnapshotCache) GetSnapshot(context.Context) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.payload == nil || !c.clock.Now().Before(c.expiresAt) {
		return nil, domain.ErrSnapshotNotFound
	}
	return slices.Clone(c.payload), nil
}
