package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pscheid92/waterwatch/internal/domain"
)

type WaterFlowRepo struct {
	mu     sync.RWMutex
	points []domain.WaterFlowPoint
}

func NewWaterFlowRepo() *WaterFlowRepo {
	return &WaterFlowRepo{}
}

// List returns the newest limit points in insertion order.
func (r *WaterFlowRepo) List(_ context.Context, limit int) ([]domain.WaterFlowPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	start := max(0, len(r.points)-limit)
	return slices.Clone(r.points[start:]), nil
}

func (r *WaterFlowRepo) Create(_ context.Context, p domain.WaterFlowPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = append(r.points, p)
	return nil
}

type AnomalyRepo struct {
	mu        sync.RWMutex
	anomalies map[uuid.UUID]domain.Anomaly
}

func NewAnomalyRepo() *AnomalyRepo {
	return &AnomalyRepo{anomalies: make(map[uuid.UUID]domain.Anomaly)}
}

func cloneAnomaly(a domain.Anomaly) domain.Anomaly {
	a.Actions = slices.Clone(a.Actions)
	if a.Actions == nil {
		a.Actions = []domain.AnomalyAction{}
	}
	if a.ActualValue != nil {
		v := *a.ActualValue
		a.ActualValue = &v
	}
	if a.ExpectedValue != nil {
		v := *a.ExpectedValue
		a.ExpectedValue = &v
	}
	return a
}

func matchesAnomaly(a domain.Anomaly, f domain.AnomalyFilter) bool {
	switch {
	case f.SensorID != "" && a.SensorID != f.SensorID:
		return false
	case f.Type != "" && a.Type != f.Type:
		return false
	case f.Severity != "" && a.Severity != f.Severity:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	case !f.From.IsZero() && a.DetectedAt.Before(f.From):
		return false
	case !f.To.IsZero() && a.DetectedAt.After(f.To):
		return false
	}
	return true
}

func (r *AnomalyRepo) List(_ context.Context, f domain.AnomalyFilter) ([]domain.Anomaly, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []domain.Anomaly
	for _, a := range r.anomalies {
		if matchesAnomaly(a, f) {
			matched = append(matched, a)
		}
	}
	slices.SortFunc(matched, func(a, b domain.Anomaly) int {
		return b.DetectedAt.Compare(a.DetectedAt)
	})

	total := len(matched)
	start := min(total, (f.Page-1)*f.Limit)
	end := min(total, start+f.Limit)

	page := make([]domain.Anomaly, 0, end-start)
	for _, a := range matched[start:end] {
		page = append(page, cloneAnomaly(a))
	}
	return page, total, nil
}

func (r *AnomalyRepo) Get(_ context.Context, id uuid.UUID) (*domain.Anomaly, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.anomalies[id]
	if !ok {
		return nil, domain.ErrAnomalyNotFound
	}
	out := cloneAnomaly(a)
	return &out, nil
}

func (r *AnomalyRepo) Create(_ context.Context, a domain.Anomaly) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies[a.ID] = cloneAnomaly(a)
	return nil
}

func (r *AnomalyRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.AnomalyStatus, action domain.AnomalyAction) (*domain.Anomaly, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.anomalies[id]
	if !ok {
		return nil, domain.ErrAnomalyNotFound
	}
	a = cloneAnomaly(a)
	a.Status = status
	a.Actions = append(a.Actions, action)
	a.UpdatedAt = action.Timestamp
	r.anomalies[id] = a

	out := cloneAnomaly(a)
	return &out, nil
}

func (r *AnomalyRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.anomalies[id]; !ok {
		return domain.ErrAnomalyNotFound
	}
	delete(r.anomalies, id)
	return nil
}

// CriticalActive orders by severity (critical first), then oldest detection.
func (r *AnomalyRepo) CriticalActive(context.Context) ([]domain.Anomaly, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Anomaly{}
	for _, a := range r.anomalies {
		if a.Severity.Rank() >= domain.SeverityHigh.Rank() && a.Active() {
			out = append(out, cloneAnomaly(a))
		}
	}
	slices.SortFunc(out, func(a, b domain.Anomaly) int {
		if c := cmp.Compare(b.Severity.Rank(), a.Severity.Rank()); c != 0 {
			return c
		}
		return a.DetectedAt.Compare(b.DetectedAt)
	})
	return out, nil
}

func (r *AnomalyRepo) Stats(context.Context) (domain.AnomalyStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.AnomalyStats{
		BySeverity: make(map[domain.Severity]int),
		ByStatus:   make(map[domain.AnomalyStatus]int),
	}
	for _, a := range r.anomalies {
		stats.BySeverity[a.Severity]++
		stats.ByStatus[a.Status]++
		stats.Total++
	}
	return stats, nil
}

type RecommendationRepo struct {
	mu   sync.RWMutex
	recs map[uuid.UUID]domain.Recommendation
}

func NewRecommendationRepo() *RecommendationRepo {
	return &RecommendationRepo{recs: make(map[uuid.UUID]domain.Recommendation)}
}

func (r *RecommendationRepo) ListActive(_ context.Context, userID string, now time.Time, limit int) ([]domain.Recommendation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Recommendation{}
	for _, rec := range r.recs {
		if rec.UserID == userID && rec.ActiveAt(now) {
			out = append(out, rec)
		}
	}
	slices.SortFunc(out, func(a, b domain.Recommendation) int {
		if c := cmp.Compare(b.Priority.Rank(), a.Priority.Rank()); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RecommendationRepo) Create(_ context.Context, rec domain.Recommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs[rec.ID] = rec
	return nil
}

func (r *RecommendationRepo) UpdateStatus(_ context.Context, id uuid.UUID, status domain.RecommendationStatus, at time.Time) (*domain.Recommendation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.recs[id]
	if !ok {
		return nil, domain.ErrRecommendationNotFound
	}
	rec.Status = status
	rec.UpdatedAt = at
	r.recs[id] = rec
	return &rec, nil
}

type BillRepo struct {
	mu       sync.RWMutex
	bills    []domain.Bill
	byNumber map[string]struct{}
}

func NewBillRepo() *BillRepo {
	return &BillRepo{byNumber: make(map[string]struct{})}
}

func matchesBill(b domain.Bill, f domain.BillFilter) bool {
	switch {
	case b.UserID != f.UserID:
		return false
	case !f.From.IsZero() && b.PeriodStart.Before(f.From):
		return false
	case !f.To.IsZero() && b.PeriodStart.After(f.To):
		return false
	}
	return true
}

func (r *BillRepo) List(_ context.Context, f domain.BillFilter) ([]domain.Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []domain.Bill{}
	for _, b := range r.bills {
		if matchesBill(b, f) {
			out = append(out, b)
		}
	}
	slices.SortFunc(out, func(a, b domain.Bill) int {
		return b.PeriodEnd.Compare(a.PeriodEnd)
	})
	return out, nil
}

func (r *BillRepo) Create(_ context.Context, b domain.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byNumber[b.BillNumber]; taken {
		return domain.ErrBillExists
	}
	r.byNumber[b.BillNumber] = struct{}{}
	r.bills = append(r.bills, b)
	return nil
}

func (r *BillRepo) Get(_ context.Context, id uuid.UUID) (*domain.Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.bills {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, domain.ErrBillNotFound
}

func (r *BillRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := slices.IndexFunc(r.bills, func(b domain.Bill) bool { return b.ID == id })
	if i < 0 {
		return domain.ErrBillNotFound
	}
	delete(r.byNumber, r.bills[i].BillNumber)
	r.bills = slices.Delete(r.bills, i, i+1)
	return nil
}

func (r *BillRepo) Summary(ctx context.Context, f domain.BillFilter) (domain.BillSummary, error) {
	bills, err := r.List(ctx, f)
	if err != nil {
		return domain.BillSummary{}, err
	}
	var s domain.BillSummary
	for _, b := range bills {
		s.TotalAmount += b.TotalAmount
		s.TotalUsage += b.UsageAmount
		s.Count++
	}
	return s, nil
}
