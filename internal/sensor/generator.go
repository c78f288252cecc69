// Package sensor provides the reading sources consumed by the broadcaster and
// the polling endpoint.
package sensor

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/waterwatch/internal/domain"
)

// DefaultCount is the number of sensors in a generated set.
const DefaultCount = 24

// Bounding box for generated coordinates.
const (
	MinLat = -6.2
	MaxLat = -5.8
	MinLng = 106.8
	MaxLng = 107.2
)

const (
	activeProbability = 0.9
	minFlowRate       = 0.5
	flowRateSpan      = 5.0
)

// Generator produces synthetic reading sets. Safe for concurrent use.
type Generator struct {
	count int
	clock clockwork.Clock

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator returns a generator for count sensors. A nil rnd seeds from
// the runtime's random source.
func NewGenerator(count int, clock clockwork.Clock, rnd *rand.Rand) *Generator {
	if count <= 0 {
		count = DefaultCount
	}
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Generator{count: count, clock: clock, rnd: rnd}
}

func (g *Generator) Readings(ctx context.Context) ([]domain.SensorReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Generate(), nil
}

// Generate returns a fresh set with ids 1..count sharing one timestamp.
func (g *Generator) Generate() []domain.SensorReading {
	now := g.clock.Now().UTC().Truncate(time.Millisecond)

	g.mu.Lock()
	defer g.mu.Unlock()

	readings := make([]domain.SensorReading, g.count)
	for i := range readings {
		status := domain.SensorInactive
		if g.rnd.Float64() < activeProbability {
			status = domain.SensorActive
		}
		flow := minFlowRate + g.rnd.Float64()*flowRateSpan

		readings[i] = domain.SensorReading{
			ID:        i + 1,
			Lat:       MinLat + g.rnd.Float64()*(MaxLat-MinLat),
			Lng:       MinLng + g.rnd.Float64()*(MaxLng-MinLng),
			Name:      fmt.Sprintf("Sensor %d", i+1),
			Status:    status,
			FlowRate:  &flow,
			Timestamp: now,
		}
	}
	return readings
}

// Placeholder returns n inactive readings at the centre of the bounding box.
// Subscribers show it until the first real payload arrives.
func Placeholder(n int) []domain.SensorReading {
	readings := make([]domain.SensorReading, n)
	for i := range readings {
		readings[i] = domain.SensorReading{
			ID:     i + 1,
			Lat:    (MinLat + MaxLat) / 2,
			Lng:    (MinLng + MaxLng) / 2,
			Name:   fmt.Sprintf("Sensor %d", i+1),
			Status: domain.SensorInactive,
		}
	}
	return readings
}
