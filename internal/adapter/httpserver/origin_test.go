package httpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		dev    bool
		want   bool
	}{
		{"no origin header", "", false, true},
		{"app origin", "https://waterwatch.example.org", false, true},
		{"foreign origin", "https://evil.example.com", false, false},
		{"localhost in production", "http://localhost:3000", false, false},
		{"localhost in development", "http://localhost:3000", true, true},
		{"loopback in development", "http://127.0.0.1:8080", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := NewCheckOrigin("https://waterwatch.example.org/dashboard", tt.dev)
			req := httptest.NewRequest(http.MethodGet, "/ws/sensors", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, check(req))
		})
	}
}

func TestExtractOrigin(t *testing.T) {
	assert.Equal(t, "https://example.org", extractOrigin("https://example.org/path?q=1"))
	assert.Equal(t, "http://localhost:5000", extractOrigin("http://localhost:5000"))
	assert.Empty(t, extractOrigin("not a url"))
}
