// Package subscriber keeps a local copy of the latest sensor readings. It
// prefers the live channel and falls back to interval polling while the live
// channel is down, retrying it on a fixed delay.
package subscriber

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/metrics"
)

const (
	DefaultPollInterval         = 10 * time.Second
	DefaultReconnectDelay       = 5 * time.Second
	DefaultMaxReconnectAttempts = 5
)

type State int

const (
	StateConnecting State = iota
	StateLive
	StatePolling
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StatePolling:
		return "polling"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Channel identifies where an accepted reading set came from.
type Channel string

const (
	ChannelLive Channel = "live"
	ChannelPoll Channel = "poll"
)

type Options struct {
	// LiveURL and Dialer together enable the live channel. If either is
	// missing the client polls permanently.
	LiveURL string
	Dialer  Dialer
	Fetcher Fetcher
	Clock   clockwork.Clock

	PollInterval   time.Duration
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds reconnects per outage; zero uses the default.
	MaxReconnectAttempts int

	// Placeholder is served until the first real reading set arrives.
	Placeholder []domain.SensorReading
	// OnUpdate runs on the client goroutine for every accepted set.
	OnUpdate func(readings []domain.SensorReading, from Channel)
	Logger   *slog.Logger
}

// Client is the subscriber. Create it with New and release it with Close.
type Client struct {
	opts   Options
	clock  clockwork.Clock
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	events chan event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once

	mu       sync.RWMutex
	state    State
	readings []domain.SensorReading

	// owned by the run goroutine
	conn        Conn
	connID      int
	attempts    int
	liveGen     uint64
	pollTicker  clockwork.Ticker
	reconnect   clockwork.Timer
	pollPending bool
	dialPending bool
}

type event interface{ isEvent() }

type baseEvent struct{}

func (baseEvent) isEvent() {}

type dialResult struct {
	baseEvent
	conn Conn
	err  error
}

type liveMessage struct {
	baseEvent
	connID int
	data   []byte
}

type liveClosed struct {
	baseEvent
	connID int
	err    error
}

type pollResult struct {
	baseEvent
	startGen uint64
	data     []byte
	err      error
}

// New starts the client. The first connection attempt (or the first poll,
// when live is unavailable) begins immediately.
func New(opts Options) *Client {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.MaxReconnectAttempts <= 0 {
		opts.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:     opts,
		clock:    opts.Clock,
		log:      opts.Logger.With("component", "subscriber"),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan event, 16),
		done:     make(chan struct{}),
		readings: append([]domain.SensorReading(nil), opts.Placeholder...),
	}

	if c.liveCapable() {
		c.setState(StateConnecting)
		c.startDial()
	} else {
		c.log.Info("Live channel unavailable, polling only")
		c.enterPolling()
	}

	go c.run()
	return c
}

// Readings returns a copy of the cached set.
func (c *Client) Readings() []domain.SensorReading {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.SensorReading(nil), c.readings...)
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Close tears the client down and waits for every goroutine it started.
// Nothing is applied to the cache after Close returns.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		<-c.done
		c.wg.Wait()

		// a dial may have completed after the run loop exited
		for {
			select {
			case ev := <-c.events:
				if r, ok := ev.(dialResult); ok && r.conn != nil {
					_ = r.conn.Close()
				}
			default:
				return
			}
		}
	})
}

func (c *Client) liveCapable() bool {
	return c.opts.Dialer != nil && c.opts.LiveURL != ""
}

func (c *Client) run() {
	defer close(c.done)
	defer c.teardown()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev := <-c.events:
			c.handle(ev)
		case <-chanOf(c.pollTicker):
			c.startPoll()
		case <-timerChan(c.reconnect):
			c.reconnect = nil
			c.attempts++
			c.log.Info("Reconnecting live channel", "attempt", c.attempts, "max_attempts", c.opts.MaxReconnectAttempts)
			c.startDial()
		}
	}
}

func (c *Client) handle(ev event) {
	switch e := ev.(type) {
	case dialResult:
		c.dialPending = false
		if e.err != nil {
			metrics.SubscriberErrorsTotal.WithLabelValues("connection").Inc()
			c.log.Warn("Live channel connect failed", "error", e.err, "attempt", c.attempts)
			if c.State() != StatePolling {
				c.enterPolling()
			} else {
				c.scheduleReconnect()
			}
			return
		}
		c.enterLive(e.conn)

	case liveMessage:
		if e.connID != c.connID {
			return
		}
		readings, err := decode(e.data)
		if err != nil {
			metrics.SubscriberErrorsTotal.WithLabelValues("serialization").Inc()
			c.log.Warn("Dropping malformed live message", "error", err)
			return
		}
		c.liveGen++
		c.apply(readings, ChannelLive)

	case liveClosed:
		if e.connID != c.connID || c.conn == nil {
			return
		}
		metrics.SubscriberErrorsTotal.WithLabelValues("connection").Inc()
		c.log.Warn("Live channel lost, falling back to polling", "error", e.err)
		_ = c.conn.Close()
		c.conn = nil
		c.enterPolling()

	case pollResult:
		c.pollPending = false
		if e.err != nil {
			metrics.SubscriberErrorsTotal.WithLabelValues("fetch").Inc()
			c.log.Warn("Poll failed", "error", e.err)
			return
		}
		if e.startGen != c.liveGen {
			c.log.Debug("Dropping poll result older than live update")
			return
		}
		readings, err := decode(e.data)
		if err != nil {
			metrics.SubscriberErrorsTotal.WithLabelValues("serialization").Inc()
			c.log.Warn("Dropping malformed poll response", "error", err)
			return
		}
		c.apply(readings, ChannelPoll)
	}
}

func (c *Client) enterLive(conn Conn) {
	c.connID++
	c.liveGen++
	c.conn = conn
	c.attempts = 0
	c.stopPolling()
	c.setState(StateLive)
	c.log.Info("Live channel connected")

	id := c.connID
	c.wg.Add(1)
	go c.readLoop(conn, id)
}

// enterPolling fetches at once, then on every interval, and keeps retrying
// the live channel in the background while attempts remain.
func (c *Client) enterPolling() {
	c.setState(StatePolling)
	if c.pollTicker == nil {
		c.pollTicker = c.clock.NewTicker(c.opts.PollInterval)
	}
	c.startPoll()
	c.scheduleReconnect()
}

func (c *Client) stopPolling() {
	if c.pollTicker != nil {
		c.pollTicker.Stop()
		c.pollTicker = nil
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) scheduleReconnect() {
	if !c.liveCapable() || c.reconnect != nil || c.dialPending {
		return
	}
	if c.attempts >= c.opts.MaxReconnectAttempts {
		c.log.Warn("Reconnect attempts exhausted, staying on polling", "attempts", c.attempts)
		return
	}
	c.reconnect = c.clock.NewTimer(c.opts.ReconnectDelay)
}

func (c *Client) startDial() {
	c.dialPending = true
	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		conn, err := c.opts.Dialer.Dial(ctx, c.opts.LiveURL)
		select {
		case c.events <- dialResult{conn: conn, err: err}:
		case <-ctx.Done():
			if conn != nil {
				_ = conn.Close()
			}
		}
	}()
}

func (c *Client) startPoll() {
	if c.pollPending || c.opts.Fetcher == nil {
		return
	}
	c.pollPending = true
	gen := c.liveGen
	ctx := c.ctx
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		data, err := c.opts.Fetcher.Fetch(ctx)
		select {
		case c.events <- pollResult{startGen: gen, data: data, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (c *Client) readLoop(conn Conn, id int) {
	defer c.wg.Done()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case c.events <- liveClosed{connID: id, err: err}:
			case <-c.ctx.Done():
			}
			return
		}
		select {
		case c.events <- liveMessage{connID: id, data: data}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) apply(readings []domain.SensorReading, from Channel) {
	c.mu.Lock()
	c.readings = readings
	c.mu.Unlock()

	metrics.SubscriberUpdatesTotal.WithLabelValues(string(from)).Inc()
	if c.opts.OnUpdate != nil {
		c.opts.OnUpdate(append([]domain.SensorReading(nil), readings...), from)
	}
}

func (c *Client) teardown() {
	c.stopPolling()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.setState(StateClosed)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s || s == StateConnecting {
		metrics.SubscriberStateTransitions.WithLabelValues(s.String()).Inc()
	}
}

func decode(data []byte) ([]domain.SensorReading, error) {
	var readings []domain.SensorReading
	if err := json.Unmarshal(data, &readings); err != nil {
		return nil, fmt.Errorf("decode readings: %w", err)
	}
	if readings == nil {
		return nil, fmt.Errorf("decode readings: payload is not an array")
	}
	return readings, nil
}

func chanOf(t clockwork.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func timerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
