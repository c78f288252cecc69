package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/waterwatch/internal/domain"
)

const (
	defaultAnomalyLimit        = 20
	maxAnomalyLimit            = 100
	defaultRecommendationLimit = 10
	maxRecommendationLimit     = 100
	defaultWaterFlowLimit      = 500
	maxWaterFlowLimit          = 5000
)

// Stores bundles the repositories the service orchestrates. Fallback is the
// synthetic source served when neither the store nor the snapshot has data.
type Stores struct {
	Readings        domain.ReadingStore
	Snapshots       domain.SnapshotCache
	Fallback        domain.ReadingSource
	WaterFlow       domain.WaterFlowRepository
	Anomalies       domain.AnomalyRepository
	Recommendations domain.RecommendationRepository
	Bills           domain.BillRepository
}

// Service is the application layer. It validates input, applies defaults and
// stamps ids and times before delegating to the repositories.
type Service struct {
	stores Stores
	clock  clockwork.Clock
}

func NewService(stores Stores, clock clockwork.Clock) *Service {
	return &Service{stores: stores, clock: clock}
}

// CurrentReadings serves the polling endpoint: stored readings first, then
// the most recent broadcast snapshot, then synthesized data.
func (s *Service) CurrentReadings(ctx context.Context) ([]domain.SensorReading, error) {
	if s.stores.Readings != nil {
		readings, err := s.stores.Readings.Latest(ctx)
		if err != nil {
			slog.WarnContext(ctx, "Reading store unavailable, trying snapshot", "error", err)
		} else if len(readings) > 0 {
			return readings, nil
		}
	}

	if s.stores.Snapshots != nil {
		payload, err := s.stores.Snapshots.GetSnapshot(ctx)
		switch {
		case err == nil:
			var readings []domain.SensorReading
			if err := json.Unmarshal(payload, &readings); err == nil && len(readings) > 0 {
				return readings, nil
			}
			slog.WarnContext(ctx, "Ignoring unreadable sensor snapshot")
		case !errors.Is(err, domain.ErrSnapshotNotFound):
			slog.WarnContext(ctx, "Snapshot cache unavailable", "error", err)
		}
	}

	if s.stores.Fallback == nil {
		return []domain.SensorReading{}, nil
	}
	readings, err := s.stores.Fallback.Readings(ctx)
	if err != nil {
		return nil, fmt.Errorf("generate readings: %w", err)
	}
	return readings, nil
}

// RecordReading validates and persists one reading. A zero timestamp is
// replaced with the current time.
func (s *Service) RecordReading(ctx context.Context, r domain.SensorReading) (domain.SensorReading, error) {
	if err := r.Validate(); err != nil {
		return domain.SensorReading{}, err
	}
	if strings.TrimSpace(r.Name) == "" {
		r.Name = fmt.Sprintf("Sensor %d", r.ID)
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clock.Now().UTC()
	}
	if err := s.stores.Readings.Save(ctx, r); err != nil {
		return domain.SensorReading{}, fmt.Errorf("save reading: %w", err)
	}
	return r, nil
}

func (s *Service) WaterFlow(ctx context.Context, limit int) ([]domain.WaterFlowPoint, error) {
	limit = clamp(limit, defaultWaterFlowLimit, maxWaterFlowLimit)
	points, err := s.stores.WaterFlow.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list water flow: %w", err)
	}
	return points, nil
}

func (s *Service) RecordWaterFlow(ctx context.Context, label string, value float64) (domain.WaterFlowPoint, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return domain.WaterFlowPoint{}, fmt.Errorf("%w: timestamp is required", domain.ErrInvalidInput)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return domain.WaterFlowPoint{}, fmt.Errorf("%w: value must be a finite number", domain.ErrInvalidInput)
	}

	point := domain.WaterFlowPoint{
		ID:        uuid.New(),
		Timestamp: label,
		Value:     value,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.stores.WaterFlow.Create(ctx, point); err != nil {
		return domain.WaterFlowPoint{}, fmt.Errorf("create water flow point: %w", err)
	}
	return point, nil
}

// ListAnomalies defaults to page 1 of 20 detected anomalies.
func (s *Service) ListAnomalies(ctx context.Context, filter domain.AnomalyFilter) (domain.AnomalyPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	filter.Limit = clamp(filter.Limit, defaultAnomalyLimit, maxAnomalyLimit)
	if filter.Status == "" {
		filter.Status = domain.AnomalyDetected
	}
	if err := validateAnomalyFilter(filter); err != nil {
		return domain.AnomalyPage{}, err
	}

	anomalies, total, err := s.stores.Anomalies.List(ctx, filter)
	if err != nil {
		return domain.AnomalyPage{}, fmt.Errorf("list anomalies: %w", err)
	}

	return domain.AnomalyPage{
		Anomalies: anomalies,
		Pagination: domain.Pagination{
			CurrentPage:    filter.Page,
			TotalPages:     (total + filter.Limit - 1) / filter.Limit,
			TotalAnomalies: total,
		},
	}, nil
}

func (s *Service) GetAnomaly(ctx context.Context, id uuid.UUID) (*domain.Anomaly, error) {
	return s.stores.Anomalies.Get(ctx, id)
}

func (s *Service) CreateAnomaly(ctx context.Context, a domain.Anomaly) (domain.Anomaly, error) {
	if a.Status == "" {
		a.Status = domain.AnomalyDetected
	}
	if err := validateAnomaly(a); err != nil {
		return domain.Anomaly{}, err
	}

	now := s.clock.Now().UTC()
	a.ID = uuid.New()
	if a.DetectedAt.IsZero() {
		a.DetectedAt = now
	}
	if a.Actions == nil {
		a.Actions = []domain.AnomalyAction{}
	}
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := s.stores.Anomalies.Create(ctx, a); err != nil {
		return domain.Anomaly{}, fmt.Errorf("create anomaly: %w", err)
	}
	slog.InfoContext(ctx, "Anomaly recorded", "anomaly_id", a.ID, "sensor_id", a.SensorID, "severity", a.Severity)
	return a, nil
}

// UpdateAnomalyStatus sets the status and records the change in the action history.
func (s *Service) UpdateAnomalyStatus(ctx context.Context, id uuid.UUID, status domain.AnomalyStatus, notes string) (*domain.Anomaly, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown anomaly status %q", domain.ErrInvalidInput, status)
	}
	action := domain.AnomalyAction{
		Timestamp: s.clock.Now().UTC(),
		Action:    fmt.Sprintf("Status changed to %s", status),
		Notes:     notes,
	}
	return s.stores.Anomalies.UpdateStatus(ctx, id, status, action)
}

func (s *Service) DeleteAnomaly(ctx context.Context, id uuid.UUID) error {
	return s.stores.Anomalies.Delete(ctx, id)
}

func (s *Service) CriticalAnomalies(ctx context.Context) ([]domain.Anomaly, error) {
	anomalies, err := s.stores.Anomalies.CriticalActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list critical anomalies: %w", err)
	}
	return anomalies, nil
}

func (s *Service) AnomalyStats(ctx context.Context) (domain.AnomalyStats, error) {
	stats, err := s.stores.Anomalies.Stats(ctx)
	if err != nil {
		return domain.AnomalyStats{}, fmt.Errorf("anomaly stats: %w", err)
	}
	return stats, nil
}

func (s *Service) ActiveRecommendations(ctx context.Context, userID string, limit int) ([]domain.Recommendation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: userId is required", domain.ErrInvalidInput)
	}
	limit = clamp(limit, defaultRecommendationLimit, maxRecommendationLimit)
	recs, err := s.stores.Recommendations.ListActive(ctx, userID, s.clock.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return recs, nil
}

func (s *Service) CreateRecommendation(ctx context.Context, r domain.Recommendation) (domain.Recommendation, error) {
	if r.Priority == "" {
		r.Priority = domain.SeverityMedium
	}
	if r.Status == "" {
		r.Status = domain.RecommendationActive
	}
	if err := validateRecommendation(r); err != nil {
		return domain.Recommendation{}, err
	}

	now := s.clock.Now().UTC()
	r.ID = uuid.New()
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := s.stores.Recommendations.Create(ctx, r); err != nil {
		return domain.Recommendation{}, fmt.Errorf("create recommendation: %w", err)
	}
	return r, nil
}

func (s *Service) UpdateRecommendationStatus(ctx context.Context, id uuid.UUID, status domain.RecommendationStatus) (*domain.Recommendation, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown recommendation status %q", domain.ErrInvalidInput, status)
	}
	return s.stores.Recommendations.UpdateStatus(ctx, id, status, s.clock.Now().UTC())
}

func (s *Service) ListBills(ctx context.Context, filter domain.BillFilter) ([]domain.Bill, error) {
	if err := validateBillFilter(filter); err != nil {
		return nil, err
	}
	bills, err := s.stores.Bills.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

func (s *Service) CreateBill(ctx context.Context, b domain.Bill) (domain.Bill, error) {
	if b.Unit == "" {
		b.Unit = domain.UnitCubicMeters
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = domain.PaymentPending
	}
	if err := validateBill(b); err != nil {
		return domain.Bill{}, err
	}

	now := s.clock.Now().UTC()
	b.ID = uuid.New()
	b.CreatedAt = now
	b.UpdatedAt = now

	if err := s.stores.Bills.Create(ctx, b); err != nil {
		return domain.Bill{}, fmt.Errorf("create bill: %w", err)
	}
	return b, nil
}

func (s *Service) GetBill(ctx context.Context, id uuid.UUID) (*domain.Bill, error) {
	return s.stores.Bills.Get(ctx, id)
}

func (s *Service) DeleteBill(ctx context.Context, id uuid.UUID) error {
	return s.stores.Bills.Delete(ctx, id)
}

func (s *Service) BillSummary(ctx context.Context, filter domain.BillFilter) (domain.BillSummary, error) {
	if err := validateBillFilter(filter); err != nil {
		return domain.BillSummary{}, err
	}
	summary, err := s.stores.Bills.Summary(ctx, filter)
	if err != nil {
		return domain.BillSummary{}, fmt.Errorf("bill summary: %w", err)
	}
	return summary, nil
}

func clamp(v, def, limit int) int {
	if v <= 0 {
		return def
	}
	return min(v, limit)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func validateAnomalyFilter(f domain.AnomalyFilter) error {
	if f.Type != "" && !f.Type.Valid() {
		return invalid("unknown anomaly type %q", f.Type)
	}
	if f.Severity != "" && !f.Severity.Valid() {
		return invalid("unknown severity %q", f.Severity)
	}
	if !f.Status.Valid() {
		return invalid("unknown anomaly status %q", f.Status)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return invalid("endDate is before startDate")
	}
	return nil
}

func validateAnomaly(a domain.Anomaly) error {
	switch {
	case strings.TrimSpace(a.SensorID) == "":
		return invalid("sensorId is required")
	case !a.Type.Valid():
		return invalid("unknown anomaly type %q", a.Type)
	case !a.Severity.Valid():
		return invalid("unknown severity %q", a.Severity)
	case !a.Status.Valid():
		return invalid("unknown anomaly status %q", a.Status)
	case !a.DetectionMethod.Valid():
		return invalid("unknown detection method %q", a.DetectionMethod)
	case math.IsNaN(a.Confidence) || a.Confidence < 0 || a.Confidence > 1:
		return invalid("confidence must be between 0 and 1")
	}
	return nil
}

func validateRecommendation(r domain.Recommendation) error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return invalid("userId is required")
	case !r.Type.Valid():
		return invalid("unknown recommendation type %q", r.Type)
	case !r.Category.Valid():
		return invalid("unknown recommendation category %q", r.Category)
	case strings.TrimSpace(r.Title) == "":
		return invalid("title is required")
	case strings.TrimSpace(r.Description) == "":
		return invalid("description is required")
	case !r.Priority.Valid():
		return invalid("unknown priority %q", r.Priority)
	case !r.Status.Valid():
		return invalid("unknown recommendation status %q", r.Status)
	}
	return nil
}

func validateBillFilter(f domain.BillFilter) error {
	if strings.TrimSpace(f.UserID) == "" {
		return invalid("userId is required")
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return invalid("endDate is before startDate")
	}
	return nil
}

func validateBill(b domain.Bill) error {
	switch {
	case strings.TrimSpace(b.UserID) == "":
		return invalid("userId is required")
	case strings.TrimSpace(b.BillNumber) == "":
		return invalid("billNumber is required")
	case !b.Provider.Valid():
		return invalid("unknown provider %q", b.Provider)
	case b.PeriodStart.IsZero() || b.PeriodEnd.IsZero():
		return invalid("billing period is required")
	case !b.PeriodEnd.After(b.PeriodStart):
		return invalid("billing period end must be after start")
	case math.IsNaN(b.TotalAmount) || b.TotalAmount < 0:
		return invalid("totalAmount must be non-negative")
	case math.IsNaN(b.UsageAmount) || b.UsageAmount < 0:
		return invalid("usageAmount must be non-negative")
	case !b.Unit.Valid():
		return invalid("unknown unit %q", b.Unit)
	case !b.PaymentStatus.Valid():
		return invalid("unknown payment status %q", b.PaymentStatus)
	}
	return nil
}
