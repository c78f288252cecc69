package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/waterwatch/internal/domain"
)

// anomalyColumns must match the Scan order in scanAnomaly.
const anomalyColumns = `id, sensor_id, type, severity, status, description, detection_method, confidence,
    actual_value, expected_value, detected_at, actions, created_at, updated_at`

const insertAnomaly = `-- name: InsertAnomaly
INSERT INTO anomalies (` + anomalyColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

const getAnomaly = `-- name: GetAnomaly
SELECT ` + anomalyColumns + ` FROM anomalies WHERE id = $1`

const updateAnomalyStatus = `-- name: UpdateAnomalyStatus
UPDATE anomalies
SET status = $2, actions = actions || $3::jsonb, updated_at = $4
WHERE id = $1
RETURNING ` + anomalyColumns

const deleteAnomaly = `-- name: DeleteAnomaly
DELETE FROM anomalies WHERE id = $1`

const criticalActiveAnomalies = `-- name: CriticalActiveAnomalies
SELECT ` + anomalyColumns + ` FROM anomalies
WHERE severity IN ('high', 'critical') AND status IN ('detected', 'investigating')
ORDER BY CASE severity WHEN 'critical' THEN 0 ELSE 1 END, detected_at`

const anomalyStats = `-- name: AnomalyStats
SELECT severity, status, COUNT(*) FROM anomalies GROUP BY severity, status`

type AnomalyRepo struct {
	pool *pgxpool.Pool
}

func NewAnomalyRepo(pool *pgxpool.Pool) *AnomalyRepo {
	return &AnomalyRepo{pool: pool}
}

func scanAnomaly(row pgx.Row) (domain.Anomaly, error) {
	var (
		a                         domain.Anomaly
		typ, severity, status, dm string
		actions                   []byte
	)
	err := row.Scan(&a.ID, &a.SensorID, &typ, &severity, &status, &a.Description, &dm, &a.Confidence,
		&a.ActualValue, &a.ExpectedValue, &a.DetectedAt, &actions, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Anomaly{}, err
	}

	a.Type = domain.AnomalyType(typ)
	a.Severity = domain.Severity(severity)
	a.Status = domain.AnomalyStatus(status)
	a.DetectionMethod = domain.DetectionMethod(dm)
	a.DetectedAt = a.DetectedAt.UTC()
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	if err := json.Unmarshal(actions, &a.Actions); err != nil {
		return domain.Anomaly{}, fmt.Errorf("decode anomaly actions: %w", err)
	}
	if a.Actions == nil {
		a.Actions = []domain.AnomalyAction{}
	}
	return a, nil
}

// whereAnomalies renders the filter as a WHERE clause with positional args.
func whereAnomalies(f domain.AnomalyFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.SensorID != "" {
		add("sensor_id = $%d", f.SensorID)
	}
	if f.Type != "" {
		add("type = $%d", string(f.Type))
	}
	if f.Severity != "" {
		add("severity = $%d", string(f.Severity))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if !f.From.IsZero() {
		add("detected_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("detected_at <= $%d", f.To)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *AnomalyRepo) List(ctx context.Context, f domain.AnomalyFilter) ([]domain.Anomaly, int, error) {
	where, args := whereAnomalies(f)

	var total int
	if err := r.pool.QueryRow(ctx, "-- name: CountAnomalies\nSELECT COUNT(*) FROM anomalies"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count anomalies: %w", err)
	}

	query := fmt.Sprintf("-- name: ListAnomalies\nSELECT %s FROM anomalies%s ORDER BY detected_at DESC LIMIT $%d OFFSET $%d",
		anomalyColumns, where, len(args)+1, len(args)+2)
	rows, err := r.pool.Query(ctx, query, append(args, f.Limit, (f.Page-1)*f.Limit)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list anomalies: %w", err)
	}

	anomalies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Anomaly, error) {
		return scanAnomaly(row)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan anomalies: %w", err)
	}
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	return anomalies, total, nil
}

func (r *AnomalyRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Anomaly, error) {
	a, err := scanAnomaly(r.pool.QueryRow(ctx, getAnomaly, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAnomalyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get anomaly: %w", err)
	}
	return &a, nil
}

func (r *AnomalyRepo) Create(ctx context.Context, a domain.Anomaly) error {
	actions := a.Actions
	if actions == nil {
		actions = []domain.AnomalyAction{}
	}
	encoded, err := json.Marshal(actions)
	if err != nil {
		return fmt.Errorf("encode anomaly actions: %w", err)
	}

	_, err = r.pool.Exec(ctx, insertAnomaly,
		a.ID, a.SensorID, string(a.Type), string(a.Severity), string(a.Status), a.Description,
		string(a.DetectionMethod), a.Confidence, a.ActualValue, a.ExpectedValue, a.DetectedAt,
		string(encoded), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

func (r *AnomalyRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.AnomalyStatus, action domain.AnomalyAction) (*domain.Anomaly, error) {
	encoded, err := json.Marshal([]domain.AnomalyAction{action})
	if err != nil {
		return nil, fmt.Errorf("encode anomaly action: %w", err)
	}

	a, err := scanAnomaly(r.pool.QueryRow(ctx, updateAnomalyStatus, id, string(status), string(encoded), action.Timestamp))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAnomalyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update anomaly status: %w", err)
	}
	return &a, nil
}

func (r *AnomalyRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteAnomaly, id)
	if err != nil {
		return fmt.Errorf("failed to delete anomaly: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAnomalyNotFound
	}
	return nil
}

func (r *AnomalyRepo) CriticalActive(ctx context.Context) ([]domain.Anomaly, error) {
	rows, err := r.pool.Query(ctx, criticalActiveAnomalies)
	if err != nil {
		return nil, fmt.Errorf("failed to query critical anomalies: %w", err)
	}
	anomalies, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Anomaly, error) {
		return scanAnomaly(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan critical anomalies: %w", err)
	}
	if anomalies == nil {
		anomalies = []domain.Anomaly{}
	}
	return anomalies, nil
}

func (r *AnomalyRepo) Stats(ctx context.Context) (domain.AnomalyStats, error) {
	rows, err := r.pool.Query(ctx, anomalyStats)
	if err != nil {
		return domain.AnomalyStats{}, fmt.Errorf("failed to query anomaly stats: %w", err)
	}
	defer rows.Close()

	stats := domain.AnomalyStats{
		BySeverity: make(map[domain.Severity]int),
		ByStatus:   make(map[domain.AnomalyStatus]int),
	}
	for rows.Next() {
		var (
			severity, status string
			count            int
		)
		if err := rows.Scan(&severity, &status, &count); err != nil {
			return domain.AnomalyStats{}, fmt.Errorf("failed to scan anomaly stats: %w", err)
		}
		stats.BySeverity[domain.Severity(severity)] += count
		stats.ByStatus[domain.AnomalyStatus(status)] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.AnomalyStats{}, fmt.Errorf("failed to read anomaly stats: %w", err)
	}
	return stats, nil
}
