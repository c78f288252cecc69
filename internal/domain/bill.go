package domain

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
)

type BillProvider string

const (
	ProviderWaterCompany   BillProvider = "water_company"
	ProviderUtilityCompany BillProvider = "utility_company"
	ProviderMunicipality   BillProvider = "municipality"
)

func (p BillProvider) Valid() bool {
	switch p {
	case ProviderWaterCompany, ProviderUtilityCompany, ProviderMunicipality:
		return true
	}
	return false
}

type UsageUnit string

const (
	UnitCubicMeters UsageUnit = "cubic_meters"
	UnitGallons     UsageUnit = "gallons"
	UnitLiters      UsageUnit = "liters"
)

func (u UsageUnit) Valid() bool {
	switch u {
	case UnitCubicMeters, UnitGallons, UnitLiters:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentOverdue   PaymentStatus = "overdue"
	PaymentCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentOverdue, PaymentCancelled:
		return true
	}
	return false
}

type Bill struct {
	ID            uuid.UUID     `json:"id"`
	UserID        string        `json:"userId"`
	BillNumber    string        `json:"billNumber"`
	Provider      BillProvider  `json:"provider"`
	PeriodStart   time.Time     `json:"periodStart"`
	PeriodEnd     time.Time     `json:"periodEnd"`
	TotalAmount   float64       `json:"totalAmount"`
	UsageAmount   float64       `json:"usageAmount"`
	Unit          UsageUnit     `json:"unit"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
	DueDate       *time.Time    `json:"dueDate,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// BillingPeriodDays is the billing period length rounded up to whole days.
func (b Bill) BillingPeriodDays() int {
	d := b.PeriodEnd.Sub(b.PeriodStart)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

// DailyAverageUsage is usage spread over the billing period; zero for an empty period.
func (b Bill) DailyAverageUsage() float64 {
	days := b.BillingPeriodDays()
	if days == 0 {
		return 0
	}
	return b.UsageAmount / float64(days)
}

// BillFilter matches bills whose period starts within [From, To]. Zero bounds are open.
type BillFilter struct {
	UserID string
	From   time.Time
	To     time.Time
}

type BillSummary struct {
	TotalAmount float64 `json:"totalAmount"`
	TotalUsage  float64 `json:"totalUsage"`
	Count       int     `json:"count"`
}

type BillRepository interface {
	// List returns matching bills, most recent period first.
	List(ctx context.Context, filter BillFilter) ([]Bill, error)
	// Create fails with ErrBillExists when the bill number is taken.
	Create(ctx context.Context, bill Bill) error
	Get(ctx context.Context, id uuid.UUID) (*Bill, error)
	// Delete frees the bill number for reuse.
	Delete(ctx context.Context, id uuid.UUID) error
	Summary(ctx context.Context, filter BillFilter) (BillSummary, error)
}
