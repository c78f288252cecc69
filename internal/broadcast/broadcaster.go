package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/metrics"
)

const (
	sourceTimeout   = 2 * time.Second
	snapshotTimeout = 2 * time.Second
	commandTimeout  = 5 * time.Second
	stopTimeout     = 10 * time.Second
	cmdBufferSize   = 256
)

// broadcasterCmd is the command interface for the Broadcaster actor.
type broadcasterCmd interface{ isBroadcasterCmd() }

type baseBroadcasterCmd struct{}

func (baseBroadcasterCmd) isBroadcasterCmd() {}

type registerCmd struct {
	baseBroadcasterCmd
	connection   *websocket.Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseBroadcasterCmd
	connection *websocket.Conn
}

type clientCountCmd struct {
	baseBroadcasterCmd
	replyChannel chan int
}

type stopCmd struct {
	baseBroadcasterCmd
}

// Broadcaster owns the subscriber registry and pushes a reading set to every
// subscriber on each tick. All registry access happens on the run goroutine.
type Broadcaster struct {
	cmdCh        chan broadcasterCmd
	clock        clockwork.Clock
	clients      map[*websocket.Conn]*clientWriter
	source       domain.ReadingSource
	snapshots    domain.SnapshotCache
	done         chan struct{}
	stopTimeout  time.Duration
	maxClients   int
	tickInterval time.Duration
	lastPayload  []byte
}

// NewBroadcaster starts the tick loop immediately; it runs whether or not any
// subscriber is connected. snapshots may be nil.
func NewBroadcaster(source domain.ReadingSource, snapshots domain.SnapshotCache, clock clockwork.Clock, maxClients int, tickInterval time.Duration) *Broadcaster {
	b := &Broadcaster{
		cmdCh:        make(chan broadcasterCmd, cmdBufferSize),
		clock:        clock,
		clients:      make(map[*websocket.Conn]*clientWriter),
		source:       source,
		snapshots:    snapshots,
		done:         make(chan struct{}),
		stopTimeout:  stopTimeout,
		maxClients:   maxClients,
		tickInterval: tickInterval,
	}
	metrics.WebSocketConnectionCapacity.Set(float64(maxClients))
	go b.run()
	return b
}

// Register adds a subscriber and sends it one reading set right away.
// Returns an error if the subscriber limit is reached.
func (b *Broadcaster) Register(conn *websocket.Conn) error {
	errCh := make(chan error, 1)
	if !b.send(registerCmd{connection: conn, errorChannel: errCh}) {
		return fmt.Errorf("broadcaster stopped")
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes a subscriber. Unknown connections are ignored.
func (b *Broadcaster) Unregister(conn *websocket.Conn) {
	b.send(unregisterCmd{connection: conn})
}

// ClientCount returns the number of registered subscribers, or -1 if the
// command times out.
func (b *Broadcaster) ClientCount() int {
	replyCh := make(chan int, 1)
	if !b.send(clientCountCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := b.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-timer.Chan():
		slog.Warn("ClientCount timed out", "timeout", commandTimeout)
		return -1
	}
}

// Stop closes every subscriber with a close frame and ends the tick loop.
// Blocks until the loop has exited or the stop timeout elapses.
func (b *Broadcaster) Stop() {
	if !b.send(stopCmd{}) {
		return
	}

	timeout := b.clock.NewTimer(b.stopTimeout)
	defer timeout.Stop()

	select {
	case <-b.done:
		slog.Info("Broadcaster stopped gracefully")
	case <-timeout.Chan():
		slog.Warn("Broadcaster stop timeout exceeded", "timeout", b.stopTimeout)
		metrics.BroadcasterStopTimeoutsTotal.Inc()
	}
}

func (b *Broadcaster) send(cmd broadcasterCmd) bool {
	select {
	case <-b.done:
		return false
	default:
	}

	select {
	case b.cmdCh <- cmd:
		return true
	case <-b.done:
		return false
	}
}

func (b *Broadcaster) run() {
	defer close(b.done)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Broadcaster panic recovered", "panic", r)
			metrics.BroadcasterPanicsTotal.Inc()
			b.closeAllClients("broadcaster panic")
		}
	}()

	ticker := b.clock.NewTicker(b.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-b.cmdCh:
			switch c := cmd.(type) {
			case registerCmd:
				b.handleRegister(c)
			case unregisterCmd:
				b.handleUnregister(c)
			case clientCountCmd:
				c.replyChannel <- len(b.clients)
			case stopCmd:
				b.handleStop()
				return
			default:
				slog.Warn("Broadcaster received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
			}
		case <-ticker.Chan():
			b.handleTick()
		}
	}
}

func (b *Broadcaster) handleRegister(c registerCmd) {
	if len(b.clients) >= b.maxClients {
		slog.Warn("Rejecting subscriber: max clients reached", "max_clients", b.maxClients)
		_ = c.connection.Close()
		c.errorChannel <- fmt.Errorf("max subscribers (%d) reached", b.maxClients)
		return
	}

	cw := newClientWriter(c.connection, b.clock)
	b.clients[c.connection] = cw
	metrics.BroadcasterConnectedClients.Set(float64(len(b.clients)))

	// The initial set goes to this subscriber only.
	if payload, err := b.produce(); err == nil {
		cw.enqueue(payload)
	} else if b.lastPayload != nil {
		cw.enqueue(b.lastPayload)
	}

	slog.Debug("Subscriber registered", "total_clients", len(b.clients))
	c.errorChannel <- nil
}

func (b *Broadcaster) handleUnregister(c unregisterCmd) {
	cw, exists := b.clients[c.connection]
	if !exists {
		return
	}

	cw.stop()
	delete(b.clients, c.connection)
	metrics.BroadcasterConnectedClients.Set(float64(len(b.clients)))

	slog.Debug("Subscriber unregistered", "remaining_clients", len(b.clients))
}

// handleTick never removes subscribers; that is the read pump's job.
func (b *Broadcaster) handleTick() {
	tickStart := b.clock.Now()
	metrics.BroadcasterTicksTotal.Inc()
	metrics.BroadcasterCommandChannelDepth.Set(float64(len(b.cmdCh)))
	defer func() {
		metrics.BroadcasterTickDuration.Observe(b.clock.Since(tickStart).Seconds())
	}()

	payload, err := b.produce()
	if err != nil {
		metrics.BroadcasterSourceErrors.Inc()
		slog.Error("Reading source failed, skipping tick", "error", err)
		return
	}
	b.lastPayload = payload
	b.storeSnapshot(payload)

	for _, cw := range b.clients {
		if cw.closed() {
			metrics.BroadcasterSkippedClients.Inc()
			continue
		}
		if !cw.enqueue(payload) {
			metrics.BroadcasterDroppedMessages.Inc()
		}
	}
}

// produce fetches one reading set and serializes it once for all receivers.
func (b *Broadcaster) produce() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sourceTimeout)
	defer cancel()

	readings, err := b.source.Readings(ctx)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(readings)
	if err != nil {
		return nil, fmt.Errorf("marshal readings: %w", err)
	}
	return data, nil
}

func (b *Broadcaster) storeSnapshot(payload []byte) {
	if b.snapshots == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), snapshotTimeout)
	defer cancel()

	if err := b.snapshots.PutSnapshot(ctx, payload); err != nil {
		metrics.BroadcasterSnapshotErrors.Inc()
		slog.Warn("Failed to store sensor snapshot", "error", err)
	}
}

func (b *Broadcaster) handleStop() {
	total := len(b.clients)
	slog.Info("Broadcaster shutting down", "total_clients", total)
	b.closeAllClients("Server shutting down")
	slog.Info("Broadcaster shutdown complete", "disconnected_clients", total)
}

func (b *Broadcaster) closeAllClients(reason string) {
	for conn, cw := range b.clients {
		cw.stopGraceful(reason)
		delete(b.clients, conn)
	}
	metrics.BroadcasterConnectedClients.Set(0)
}
