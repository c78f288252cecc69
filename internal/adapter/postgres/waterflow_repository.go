package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/waterwatch/internal/domain"
)

const insertWaterFlow = `-- name: InsertWaterFlow
INSERT INTO water_flow (id, label, value, created_at) VALUES ($1, $2, $3, $4)`

const listWaterFlow = `-- name: ListWaterFlow
SELECT id, label, value, created_at FROM (
    SELECT seq, id, label, value, created_at FROM water_flow ORDER BY seq DESC LIMIT $1
) newest
ORDER BY seq`

type WaterFlowRepo struct {
	pool *pgxpool.Pool
}

func NewWaterFlowRepo(pool *pgxpool.Pool) *WaterFlowRepo {
	return &WaterFlowRepo{pool: pool}
}

func (r *WaterFlowRepo) List(ctx context.Context, limit int) ([]domain.WaterFlowPoint, error) {
	rows, err := r.pool.Query(ctx, listWaterFlow, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query water flow: %w", err)
	}

	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.WaterFlowPoint, error) {
		var p domain.WaterFlowPoint
		err := row.Scan(&p.ID, &p.Timestamp, &p.Value, &p.CreatedAt)
		p.CreatedAt = p.CreatedAt.UTC()
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan water flow: %w", err)
	}
	if points == nil {
		points = []domain.WaterFlowPoint{}
	}
	return points, nil
}

func (r *WaterFlowRepo) Create(ctx context.Context, p domain.WaterFlowPoint) error {
	if _, err := r.pool.Exec(ctx, insertWaterFlow, p.ID, p.Timestamp, p.Value, p.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert water flow point: %w", err)
	}
	return nil
}
