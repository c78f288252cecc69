package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueryName(t *testing.T) {
	tests := []struct {
		sql  string
		want string
	}{
		{latestReadings, "LatestReadings"},
		{"-- name: CountAnomalies\nSELECT COUNT(*) FROM anomalies", "CountAnomalies"},
		{"SELECT pg_advisory_lock($1)", "SELECT"},
		{"\n  insert\ninto x", "INSERT"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, queryName(tt.sql), tt.sql)
	}
}

func TestExtractSSLMode(t *testing.T) {
	assert.Equal(t, "require", extractSSLMode("postgres://u:p@db/app?sslmode=REQUIRE"))
	assert.Equal(t, "prefer (default)", extractSSLMode("postgres://u:p@db/app"))
	assert.Equal(t, "unknown", extractSSLMode("://bad url"))
}
