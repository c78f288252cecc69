package httpserver

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/waterwatch/internal/metrics"
	"golang.org/x/time/rate"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTimeout     = 10 * time.Minute
)

// slotCounter caps the number of live subscribers on this instance.
type slotCounter struct {
	current atomic.Int64
	max     int64
}

func (s *slotCounter) acquire() bool {
	for {
		current := s.current.Load()
		if current >= s.max {
			return false
		}
		if s.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

func (s *slotCounter) release() {
	s.current.Add(-1)
}

func (s *slotCounter) capacityPct() float64 {
	if s.max == 0 {
		return 0
	}
	return float64(s.current.Load()) / float64(s.max) * 100
}

// ipCounter caps concurrent live subscribers per remote address.
type ipCounter struct {
	mu     sync.Mutex
	ips    map[string]int
	maxPer int
}

func (c *ipCounter) acquire(ip string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ips[ip] >= c.maxPer {
		return false
	}
	c.ips[ip]++
	return true
}

func (c *ipCounter) release(ip string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch count := c.ips[ip]; {
	case count > 1:
		c.ips[ip] = count - 1
	case count == 1:
		delete(c.ips, ip)
	}
}

func (c *ipCounter) count(ip string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ips[ip]
}

func (c *ipCounter) unique() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ips)
}

// connectRateLimiter is a token bucket per remote address. Buckets idle for
// longer than limiterIdleTimeout are dropped on the next sweep.
type connectRateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	buckets   map[string]*bucket
	rate      rate.Limit
	burst     int
	nextSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func (l *connectRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.nextSweep) {
		cutoff := now.Add(-limiterIdleTimeout)
		for key, b := range l.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.nextSweep = now.Add(limiterCleanupInterval)
	}

	b, ok := l.buckets[ip]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[ip] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (l *connectRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// LimitReason describes why a live channel connection was refused.
type LimitReason string

const (
	LimitReasonGlobal LimitReason = "global_limit"
	LimitReasonPerIP  LimitReason = "per_ip_limit"
	LimitReasonRate   LimitReason = "rate_limit"
)

// ConnectionLimits guards the live channel with a global cap, a per-IP cap
// and a per-IP connect rate.
type ConnectionLimits struct {
	global *slotCounter
	perIP  *ipCounter
	rate   *connectRateLimiter
}

func NewConnectionLimits(clock clockwork.Clock, globalMax int64, perIPMax int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		global: &slotCounter{max: globalMax},
		perIP:  &ipCounter{ips: make(map[string]int), maxPer: perIPMax},
		rate: &connectRateLimiter{
			clock:     clock,
			buckets:   make(map[string]*bucket),
			rate:      rate.Limit(connectionsPerSecond),
			burst:     burst,
			nextSweep: clock.Now().Add(limiterCleanupInterval),
		},
	}
}

// Acquire reserves a slot for ip. The rate check runs first so a refused
// connection never holds a slot.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	if !l.rate.allow(ip) {
		return false, LimitReasonRate
	}
	if !l.global.acquire() {
		return false, LimitReasonGlobal
	}
	if !l.perIP.acquire(ip) {
		l.global.release()
		return false, LimitReasonPerIP
	}

	l.publish()
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.perIP.release(ip)
	l.global.release()
	l.publish()
}

// Active returns the number of held slots.
func (l *ConnectionLimits) Active() int64 {
	return l.global.current.Load()
}

func (l *ConnectionLimits) publish() {
	metrics.WebSocketConnectionCapacity.Set(l.global.capacityPct())
	metrics.WebSocketUniqueIPs.Set(float64(l.perIP.unique()))
}
