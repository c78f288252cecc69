package redis

import (
	"context"
	"testing"
	"time"

	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCache_RoundTrip(t *testing.T) {
	client := setupTestClient(t)
	cache := NewSnapshotCache(client, time.Minute)
	ctx := context.Background()

	_, err := cache.GetSnapshot(ctx)
	require.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	payload := []byte(`[{"id":1,"lat":-6,"lng":107,"name":"Sensor 1","status":"active","timestamp":"2026-01-01T00:00:00Z"}]`)
	require.NoError(t, cache.PutSnapshot(ctx, payload))

	got, err := cache.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(got))

	ttl, err := client.TTL(ctx, SnapshotKey).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)
}

func TestSnapshotCache_Expires(t *testing.T) {
	client := setupTestClient(t)
	cache := NewSnapshotCache(client, 100*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.PutSnapshot(ctx, []byte(`[]`)))

	require.Eventually(t, func() bool {
		_, err := cache.GetSnapshot(ctx)
		return err == domain.ErrSnapshotNotFound
	}, 2*time.Second, 20*time.Millisecond)
}
