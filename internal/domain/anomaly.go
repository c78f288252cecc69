package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type AnomalyType string

const (
	AnomalyFlow                AnomalyType = "flow_anomaly"
	AnomalyPressure            AnomalyType = "pressure_anomaly"
	AnomalyLeak                AnomalyType = "leak_detection"
	AnomalySensorMalfunction   AnomalyType = "sensor_malfunction"
	AnomalyQuality             AnomalyType = "quality_issue"
	AnomalyUsagePatternChange  AnomalyType = "usage_pattern_change"
	AnomalyMaintenanceRequired AnomalyType = "maintenance_required"
)

func (t AnomalyType) Valid() bool {
	switch t {
	case AnomalyFlow, AnomalyPressure, AnomalyLeak, AnomalySensorMalfunction,
		AnomalyQuality, AnomalyUsagePatternChange, AnomalyMaintenanceRequired:
		return true
	}
	return false
}

// Severity is shared by anomalies and recommendation priorities.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities from low (1) to critical (4); unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

type AnomalyStatus string

const (
	AnomalyDetected      AnomalyStatus = "detected"
	AnomalyInvestigating AnomalyStatus = "investigating"
	AnomalyConfirmed     AnomalyStatus = "confirmed"
	AnomalyResolved      AnomalyStatus = "resolved"
	AnomalyFalsePositive AnomalyStatus = "false_positive"
)

func (s AnomalyStatus) Valid() bool {
	switch s {
	case AnomalyDetected, AnomalyInvestigating, AnomalyConfirmed, AnomalyResolved, AnomalyFalsePositive:
		return true
	}
	return false
}

type DetectionMethod string

const (
	DetectionThreshold          DetectionMethod = "threshold"
	DetectionMLModel            DetectionMethod = "ml_model"
	DetectionPatternRecognition DetectionMethod = "pattern_recognition"
	DetectionManual             DetectionMethod = "manual"
)

func (m DetectionMethod) Valid() bool {
	switch m {
	case DetectionThreshold, DetectionMLModel, DetectionPatternRecognition, DetectionManual:
		return true
	}
	return false
}

type AnomalyAction struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Notes     string    `json:"notes,omitempty"`
}

type Anomaly struct {
	ID              uuid.UUID       `json:"id"`
	SensorID        string          `json:"sensorId"`
	Type            AnomalyType     `json:"type"`
	Severity        Severity        `json:"severity"`
	Status          AnomalyStatus   `json:"status"`
	Description     string          `json:"description,omitempty"`
	DetectionMethod DetectionMethod `json:"detectionMethod"`
	Confidence      float64         `json:"confidence"`
	ActualValue     *float64        `json:"actualValue,omitempty"`
	ExpectedValue   *float64        `json:"expectedValue,omitempty"`
	DetectedAt      time.Time       `json:"detectedAt"`
	Actions         []AnomalyAction `json:"actions"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Active reports whether the anomaly still needs attention.
func (a Anomaly) Active() bool {
	return a.Status == AnomalyDetected || a.Status == AnomalyInvestigating
}

// AnomalyFilter narrows a listing. Empty fields match everything. Page is 1-based.
type AnomalyFilter struct {
	SensorID string
	Type     AnomalyType
	Severity Severity
	Status   AnomalyStatus
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

type Pagination struct {
	CurrentPage    int `json:"currentPage"`
	TotalPages     int `json:"totalPages"`
	TotalAnomalies int `json:"totalAnomalies"`
}

type AnomalyPage struct {
	Anomalies  []Anomaly  `json:"anomalies"`
	Pagination Pagination `json:"pagination"`
}

type AnomalyStats struct {
	BySeverity map[Severity]int      `json:"bySeverity"`
	ByStatus   map[AnomalyStatus]int `json:"byStatus"`
	Total      int                   `json:"total"`
}

type AnomalyRepository interface {
	// List returns the requested page, newest detection first, and the total match count.
	List(ctx context.Context, filter AnomalyFilter) ([]Anomaly, int, error)
	Get(ctx context.Context, id uuid.UUID) (*Anomaly, error)
	Create(ctx context.Context, anomaly Anomaly) error
	// UpdateStatus sets the status and appends action to the history.
	UpdateStatus(ctx context.Context, id uuid.UUID, status AnomalyStatus, action AnomalyAction) (*Anomaly, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// CriticalActive returns high and critical anomalies still detected or investigating.
	CriticalActive(ctx context.Context) ([]Anomaly, error)
	Stats(ctx context.Context) (AnomalyStats, error)
}
