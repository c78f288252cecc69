package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type RecommendationType string

const (
	RecommendationCostOptimization      RecommendationType = "cost_optimization"
	RecommendationCarbonReduction       RecommendationType = "carbon_reduction"
	RecommendationMaintenance           RecommendationType = "maintenance"
	RecommendationUsageEfficiency       RecommendationType = "usage_efficiency"
	RecommendationInfrastructureUpgrade RecommendationType = "infrastructure_upgrade"
	RecommendationBehavioralChange      RecommendationType = "behavioral_change"
)

func (t RecommendationType) Valid() bool {
	switch t {
	case RecommendationCostOptimization, RecommendationCarbonReduction, RecommendationMaintenance,
		RecommendationUsageEfficiency, RecommendationInfrastructureUpgrade, RecommendationBehavioralChange:
		return true
	}
	return false
}

type RecommendationCategory string

const (
	CategoryImmediate  RecommendationCategory = "immediate"
	CategoryShortTerm  RecommendationCategory = "short_term"
	CategoryMediumTerm RecommendationCategory = "medium_term"
	CategoryLongTerm   RecommendationCategory = "long_term"
)

func (c RecommendationCategory) Valid() bool {
	switch c {
	case CategoryImmediate, CategoryShortTerm, CategoryMediumTerm, CategoryLongTerm:
		return true
	}
	return false
}

type RecommendationStatus string

const (
	RecommendationActive      RecommendationStatus = "active"
	RecommendationImplemented RecommendationStatus = "implemented"
	RecommendationDismissed   RecommendationStatus = "dismissed"
	RecommendationExpired     RecommendationStatus = "expired"
)

func (s RecommendationStatus) Valid() bool {
	switch s {
	case RecommendationActive, RecommendationImplemented, RecommendationDismissed, RecommendationExpired:
		return true
	}
	return false
}

type Recommendation struct {
	ID          uuid.UUID              `json:"id"`
	UserID      string                 `json:"userId"`
	SensorID    string                 `json:"sensorId,omitempty"`
	Type        RecommendationType     `json:"type"`
	Category    RecommendationCategory `json:"category"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	Priority    Severity               `json:"priority"`
	Status      RecommendationStatus   `json:"status"`
	ExpiresAt   *time.Time             `json:"expiresAt,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	UpdatedAt   time.Time              `json:"updatedAt"`
}

// ActiveAt reports whether the recommendation is active and unexpired at now.
func (r Recommendation) ActiveAt(now time.Time) bool {
	if r.Status != RecommendationActive {
		return false
	}
	return r.ExpiresAt == nil || r.ExpiresAt.After(now)
}

type RecommendationRepository interface {
	// ListActive returns active, unexpired recommendations for userID ordered by
	// priority (highest first) then creation time (newest first).
	ListActive(ctx context.Context, userID string, now time.Time, limit int) ([]Recommendation, error)
	Create(ctx context.Context, rec Recommendation) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status RecommendationStatus, at time.Time) (*Recommendation, error)
}
