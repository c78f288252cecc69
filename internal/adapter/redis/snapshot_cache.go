package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/waterwatch/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// SnapshotKey holds the most recent broadcast payload.
const SnapshotKey = "waterwatch:sensors:latest"

// SnapshotCache stores the latest broadcast so any replica can answer the
// polling endpoint. Entries expire after ttl so a dead broadcaster is noticed.
type SnapshotCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

func NewSnapshotCache(rdb *goredis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{rdb: rdb, ttl: ttl}
}

func (c *SnapshotCache) PutSnapshot(ctx context.Context, payload []byte) error {
	if err := c.rdb.Set(ctx, SnapshotKey, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store sensor snapshot: %w", err)
	}
	return nil
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context) ([]byte, error) {
	payload, err := c.rdb.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load sensor snapshot: %w", err)
	}
	return payload, nil
}
