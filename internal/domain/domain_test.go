package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSensorReading_Validate(t *testing.T) {
	flow := 2.5
	negative := -1.0

	tests := []struct {
		name    string
		reading SensorReading
		wantErr bool
	}{
		{"valid", SensorReading{ID: 1, Lat: -6.1, Lng: 106.9, Status: SensorActive, FlowRate: &flow}, false},
		{"valid without flow", SensorReading{ID: 2, Lat: -6.1, Lng: 106.9, Status: SensorWarning}, false},
		{"zero id", SensorReading{ID: 0, Status: SensorActive}, true},
		{"lat out of range", SensorReading{ID: 1, Lat: 91, Status: SensorActive}, true},
		{"lng out of range", SensorReading{ID: 1, Lng: -181, Status: SensorActive}, true},
		{"unknown status", SensorReading{ID: 1, Status: "broken"}, true},
		{"negative flow", SensorReading{ID: 1, Status: SensorActive, FlowRate: &negative}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.reading.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInput)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSeverity_Rank(t *testing.T) {
	assert.Less(t, SeverityLow.Rank(), SeverityMedium.Rank())
	assert.Less(t, SeverityMedium.Rank(), SeverityHigh.Rank())
	assert.Less(t, SeverityHigh.Rank(), SeverityCritical.Rank())
	assert.Equal(t, 0, Severity("urgent").Rank())
	assert.False(t, Severity("urgent").Valid())
}

func TestBill_BillingPeriod(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bill := Bill{PeriodStart: start, PeriodEnd: start.Add(30*24*time.Hour + time.Hour), UsageAmount: 62}

	assert.Equal(t, 31, bill.BillingPeriodDays())
	assert.InDelta(t, 2.0, bill.DailyAverageUsage(), 1e-9)

	empty := Bill{PeriodStart: start, PeriodEnd: start}
	assert.Equal(t, 0, empty.BillingPeriodDays())
	assert.Equal(t, 0.0, empty.DailyAverageUsage())
}

func TestRecommendation_ActiveAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	assert.True(t, Recommendation{Status: RecommendationActive}.ActiveAt(now))
	assert.True(t, Recommendation{Status: RecommendationActive, ExpiresAt: &future}.ActiveAt(now))
	assert.False(t, Recommendation{Status: RecommendationActive, ExpiresAt: &past}.ActiveAt(now))
	assert.False(t, Recommendation{Status: RecommendationDismissed}.ActiveAt(now))
}
