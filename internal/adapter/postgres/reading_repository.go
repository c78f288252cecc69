package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/waterwatch/internal/domain"
)

const insertReading = `-- name: InsertReading
INSERT INTO sensor_readings (sensor_id, name, lat, lng, status, flow_rate, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

const latestReadings = `-- name: LatestReadings
SELECT DISTINCT ON (sensor_id) sensor_id, name, lat, lng, status, flow_rate, recorded_at
FROM sensor_readings
ORDER BY sensor_id, recorded_at DESC, seq DESC`

// ReadingRepo stores every reading and serves the newest one per sensor.
type ReadingRepo struct {
	pool *pgxpool.Pool
}

func NewReadingRepo(pool *pgxpool.Pool) *ReadingRepo {
	return &ReadingRepo{pool: pool}
}

func (r *ReadingRepo) Save(ctx context.Context, reading domain.SensorReading) error {
	_, err := r.pool.Exec(ctx, insertReading,
		reading.ID, reading.Name, reading.Lat, reading.Lng, string(reading.Status), reading.FlowRate, reading.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (r *ReadingRepo) Latest(ctx context.Context) ([]domain.SensorReading, error) {
	rows, err := r.pool.Query(ctx, latestReadings)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest readings: %w", err)
	}

	readings, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.SensorReading, error) {
		var (
			reading domain.SensorReading
			status  string
		)
		err := row.Scan(&reading.ID, &reading.Name, &reading.Lat, &reading.Lng, &status, &reading.FlowRate, &reading.Timestamp)
		reading.Status = domain.SensorStatus(status)
		reading.Timestamp = reading.Timestamp.UTC()
		return reading, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan latest readings: %w", err)
	}
	if readings == nil {
		readings = []domain.SensorReading{}
	}
	return readings, nil
}
