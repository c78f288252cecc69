package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/waterwatch/internal/domain"
)

const uniqueViolation = "23505"

const billColumns = `id, user_id, bill_number, provider, period_start, period_end, total_amount, usage_amount,
    unit, payment_status, due_date, created_at, updated_at`

const insertBill = `-- name: InsertBill
INSERT INTO bills (` + billColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// Nil bounds disable the period filter.
const listBills = `-- name: ListBills
SELECT ` + billColumns + ` FROM bills
WHERE user_id = $1
    AND ($2::timestamptz IS NULL OR period_start >= $2)
    AND ($3::timestamptz IS NULL OR period_start <= $3)
ORDER BY period_end DESC`

const getBill = `-- name: GetBill
SELECT ` + billColumns + ` FROM bills WHERE id = $1`

const deleteBill = `-- name: DeleteBill
DELETE FROM bills WHERE id = $1`

const summarizeBills = `-- name: SummarizeBills
SELECT COALESCE(SUM(total_amount), 0), COALESCE(SUM(usage_amount), 0), COUNT(*) FROM bills
WHERE user_id = $1
    AND ($2::timestamptz IS NULL OR period_start >= $2)
    AND ($3::timestamptz IS NULL OR period_start <= $3)`

type BillRepo struct {
	pool *pgxpool.Pool
}

func NewBillRepo(pool *pgxpool.Pool) *BillRepo {
	return &BillRepo{pool: pool}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func scanBill(row pgx.Row) (domain.Bill, error) {
	var (
		b                       domain.Bill
		provider, unit, payment string
	)
	err := row.Scan(&b.ID, &b.UserID, &b.BillNumber, &provider, &b.PeriodStart, &b.PeriodEnd,
		&b.TotalAmount, &b.UsageAmount, &unit, &payment, &b.DueDate, &b.CreatedAt, &b.UpdatedAt)
	b.Provider = domain.BillProvider(provider)
	b.Unit = domain.UsageUnit(unit)
	b.PaymentStatus = domain.PaymentStatus(payment)
	b.PeriodStart = b.PeriodStart.UTC()
	b.PeriodEnd = b.PeriodEnd.UTC()
	return b, err
}

func (r *BillRepo) List(ctx context.Context, f domain.BillFilter) ([]domain.Bill, error) {
	rows, err := r.pool.Query(ctx, listBills, f.UserID, optionalTime(f.From), optionalTime(f.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query bills: %w", err)
	}

	bills, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Bill, error) {
		return scanBill(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan bills: %w", err)
	}
	if bills == nil {
		bills = []domain.Bill{}
	}
	return bills, nil
}

func (r *BillRepo) Create(ctx context.Context, b domain.Bill) error {
	_, err := r.pool.Exec(ctx, insertBill,
		b.ID, b.UserID, b.BillNumber, string(b.Provider), b.PeriodStart, b.PeriodEnd, b.TotalAmount, b.UsageAmount,
		string(b.Unit), string(b.PaymentStatus), b.DueDate, b.CreatedAt, b.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrBillExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert bill: %w", err)
	}
	return nil
}

func (r *BillRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	b, err := scanBill(r.pool.QueryRow(ctx, getBill, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	return &b, nil
}

func (r *BillRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteBill, id)
	if err != nil {
		return fmt.Errorf("failed to delete bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrBillNotFound
	}
	return nil
}

func (r *BillRepo) Summary(ctx context.Context, f domain.BillFilter) (domain.BillSummary, error) {
	var s domain.BillSummary
	err := r.pool.QueryRow(ctx, summarizeBills, f.UserID, optionalTime(f.From), optionalTime(f.To)).
		Scan(&s.TotalAmount, &s.TotalUsage, &s.Count)
	if err != nil {
		return domain.BillSummary{}, fmt.Errorf("failed to summarize bills: %w", err)
	}
	return s, nil
}
