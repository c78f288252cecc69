package httpserver

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestConnectionLimits_GlobalCap(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 2, 10, 100, 100)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)
	ok, _ = limits.Acquire("10.0.0.2")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.3")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonGlobal, reason)

	limits.Release("10.0.0.1")
	ok, _ = limits.Acquire("10.0.0.3")
	assert.True(t, ok)
	assert.Equal(t, int64(2), limits.Active())
}

func TestConnectionLimits_PerIPCapRollsBackGlobalSlot(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewFakeClock(), 10, 1, 100, 100)

	ok, _ := limits.Acquire("10.0.0.1")
	assert.True(t, ok)

	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonPerIP, reason)
	assert.Equal(t, int64(1), limits.Active())

	limits.Release("10.0.0.1")
	assert.Equal(t, 0, limits.perIP.count("10.0.0.1"))
	assert.Equal(t, 0, limits.perIP.unique())
}

func TestConnectionLimits_RateRefillsWithClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limits := NewConnectionLimits(clock, 10, 10, 1, 2)

	for range 2 {
		ok, _ := limits.Acquire("10.0.0.1")
		assert.True(t, ok)
	}
	ok, reason := limits.Acquire("10.0.0.1")
	assert.False(t, ok)
	assert.Equal(t, LimitReasonRate, reason)
	assert.Equal(t, int64(2), limits.Active())

	clock.Advance(time.Second)
	ok, _ = limits.Acquire("10.0.0.1")
	assert.True(t, ok)
}

func TestConnectionLimits_IdleBucketsAreSwept(t *testing.T) {
	clock := clockwork.NewFakeClock()
	limits := NewConnectionLimits(clock, 10, 10, 1, 1)

	limits.Acquire("10.0.0.1")
	limits.Release("10.0.0.1")
	assert.Equal(t, 1, limits.rate.tracked())

	clock.Advance(limiterIdleTimeout + time.Minute)
	limits.Acquire("10.0.0.2")

	assert.Equal(t, 1, limits.rate.tracked())
}

func TestConnectionLimits_ConcurrentAcquire(t *testing.T) {
	limits := NewConnectionLimits(clockwork.NewRealClock(), 100, 1000, 10000, 10000)

	var granted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if ok, _ := limits.Acquire("10.0.0.1"); ok {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(100), granted.Load())
	assert.Equal(t, int64(100), limits.Active())
}
