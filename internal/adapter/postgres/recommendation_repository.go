package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/waterwatch/internal/domain"
)

const recommendationColumns = `id, user_id, sensor_id, type, category, title, description, priority, status,
    expires_at, created_at, updated_at`

const insertRecommendation = `-- name: InsertRecommendation
INSERT INTO recommendations (` + recommendationColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

const listActiveRecommendations = `-- name: ListActiveRecommendations
SELECT ` + recommendationColumns + ` FROM recommendations
WHERE user_id = $1 AND status = 'active' AND (expires_at IS NULL OR expires_at > $2)
ORDER BY CASE priority WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END DESC,
    created_at DESC
LIMIT $3`

const updateRecommendationStatus = `-- name: UpdateRecommendationStatus
UPDATE recommendations SET status = $2, updated_at = $3 WHERE id = $1
RETURNING ` + recommendationColumns

type RecommendationRepo struct {
	pool *pgxpool.Pool
}

func NewRecommendationRepo(pool *pgxpool.Pool) *RecommendationRepo {
	return &RecommendationRepo{pool: pool}
}

func scanRecommendation(row pgx.Row) (domain.Recommendation, error) {
	var (
		rec                              domain.Recommendation
		typ, category, priority, status string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.SensorID, &typ, &category, &rec.Title, &rec.Description,
		&priority, &status, &rec.ExpiresAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.Recommendation{}, err
	}
	rec.Type = domain.RecommendationType(typ)
	rec.Category = domain.RecommendationCategory(category)
	rec.Priority = domain.Severity(priority)
	rec.Status = domain.RecommendationStatus(status)
	if rec.ExpiresAt != nil {
		utc := rec.ExpiresAt.UTC()
		rec.ExpiresAt = &utc
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

func (r *RecommendationRepo) ListActive(ctx context.Context, userID string, now time.Time, limit int) ([]domain.Recommendation, error) {
	rows, err := r.pool.Query(ctx, listActiveRecommendations, userID, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Recommendation, error) {
		return scanRecommendation(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan recommendations: %w", err)
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return recs, nil
}

func (r *RecommendationRepo) Create(ctx context.Context, rec domain.Recommendation) error {
	_, err := r.pool.Exec(ctx, insertRecommendation,
		rec.ID, rec.UserID, rec.SensorID, string(rec.Type), string(rec.Category), rec.Title, rec.Description,
		string(rec.Priority), string(rec.Status), rec.ExpiresAt, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert recommendation: %w", err)
	}
	return nil
}

func (r *RecommendationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.RecommendationStatus, at time.Time) (*domain.Recommendation, error) {
	rec, err := scanRecommendation(r.pool.QueryRow(ctx, updateRecommendationStatus, id, string(status), at))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRecommendationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendation status: %w", err)
	}
	return &rec, nil
}
