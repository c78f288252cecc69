package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/waterwatch/internal/domain"
	"github.com/pscheid92/waterwatch/internal/metrics"
	"github.com/pscheid92/waterwatch/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockSource wraps a seeded generator and counts calls. failFn, when set,
// decides per call whether the source errors.
type mockSource struct {
	mu     sync.Mutex
	gen    *sensor.Generator
	calls  int
	failFn func(call int) error
	delay  func(ctx context.Context) error
}

func newMockSource(clock clockwork.Clock) *mockSource {
	return &mockSource{gen: sensor.NewGenerator(sensor.DefaultCount, clock, rand.New(rand.NewPCG(7, 7)))}
}

func (m *mockSource) Readings(ctx context.Context) ([]domain.SensorReading, error) {
	if m.delay != nil {
		if err := m.delay(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	m.calls++
	call := m.calls
	failFn := m.failFn
	m.mu.Unlock()

	if failFn != nil {
		if err := failFn(call); err != nil {
			return nil, err
		}
	}
	return m.gen.Generate(), nil
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSnapshots struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (m *mockSnapshots) PutSnapshot(_ context.Context, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockSnapshots) GetSnapshot(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payloads) == 0 {
		return nil, domain.ErrSnapshotNotFound
	}
	return m.payloads[len(m.payloads)-1], nil
}

func (m *mockSnapshots) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

// testBroadcaster sets up a Broadcaster behind a test HTTP server whose read
// pump unregisters on error, like the real handler.
func testBroadcaster(t *testing.T, source *mockSource, tickInterval time.Duration) (*Broadcaster, func() *ws.Conn) {
	t.Helper()

	if source == nil {
		source = newMockSource(clockwork.NewRealClock())
	}

	broadcaster := NewBroadcaster(source, nil, clockwork.NewRealClock(), 100, tickInterval)
	t.Cleanup(func() { broadcaster.Stop() })

	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		if err := broadcaster.Register(conn); err != nil {
			return
		}

		go func() {
			defer broadcaster.Unregister(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					break
				}
			}
		}()
	}))
	t.Cleanup(func() { server.Close() })

	dial := func() *ws.Conn {
		t.Helper()
		url := "ws" + strings.TrimPrefix(server.URL, "http")
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		return conn
	}

	return broadcaster, dial
}

func waitForClientCount(b *Broadcaster, expected int) bool {
	for range 200 {
		if b.ClientCount() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}

func readSet(t *testing.T, conn *ws.Conn) []domain.SensorReading {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var readings []domain.SensorReading
	require.NoError(t, json.Unmarshal(msg, &readings))
	return readings
}

func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

func TestBroadcaster_InitialSetOnConnect(t *testing.T) {
	// a tick an hour away proves the first message is the connect-time set
	broadcaster, dial := testBroadcaster(t, nil, time.Hour)

	conn := dial()
	require.True(t, waitForClientCount(broadcaster, 1))

	readings := readSet(t, conn)
	require.Len(t, readings, 24)
	for _, r := range readings {
		assert.NoError(t, r.Validate())
	}
}

func TestBroadcaster_TickDeliversToAllClients(t *testing.T) {
	broadcaster, dial := testBroadcaster(t, nil, 20*time.Millisecond)

	conn1 := dial()
	conn2 := dial()
	require.True(t, waitForClientCount(broadcaster, 2))

	for _, conn := range []*ws.Conn{conn1, conn2} {
		initial := readSet(t, conn)
		next := readSet(t, conn)
		assert.Len(t, initial, 24)
		assert.Len(t, next, 24)
	}
}

func TestBroadcaster_DisconnectRemovesOnlyThatClient(t *testing.T) {
	broadcaster, dial := testBroadcaster(t, nil, 20*time.Millisecond)

	conn1 := dial()
	conn2 := dial()
	require.True(t, waitForClientCount(broadcaster, 2))

	conn1.Close()
	require.True(t, waitForClientCount(broadcaster, 1))

	readSet(t, conn2)
	readSet(t, conn2)
}

func TestBroadcaster_MaxClients(t *testing.T) {
	broadcaster := NewBroadcaster(newMockSource(clockwork.NewRealClock()), nil, clockwork.NewRealClock(), 3, time.Hour)
	t.Cleanup(func() { broadcaster.Stop() })

	for i := range 3 {
		server, _ := newTestConnPair(t)
		require.NoError(t, broadcaster.Register(server), "client %d should register", i)
	}
	assert.Equal(t, 3, broadcaster.ClientCount())

	server, _ := newTestConnPair(t)
	err := broadcaster.Register(server)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max subscribers")
	assert.Equal(t, 3, broadcaster.ClientCount())
}

func TestBroadcaster_TicksWithZeroSubscribers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newMockSource(clock)
	snapshots := &mockSnapshots{}

	broadcaster := NewBroadcaster(source, snapshots, clock, 10, 5*time.Second)
	t.Cleanup(func() { broadcaster.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	for i := 1; i <= 3; i++ {
		clock.Advance(5 * time.Second)
		require.Eventually(t, func() bool { return snapshots.count() == i }, time.Second, time.Millisecond)
	}
	assert.Equal(t, 3, source.callCount())
	assert.Equal(t, 0, broadcaster.ClientCount())

	var readings []domain.SensorReading
	payload, err := snapshots.GetSnapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(payload, &readings))
	assert.Len(t, readings, 24)
}

func TestBroadcaster_SourceErrorSkipsTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	source := newMockSource(clock)
	source.failFn = func(call int) error {
		if call == 1 {
			return errors.New("store unavailable")
		}
		return nil
	}
	snapshots := &mockSnapshots{}
	errorsBefore := testutil.ToFloat64(metrics.BroadcasterSourceErrors)

	broadcaster := NewBroadcaster(source, snapshots, clock, 10, 5*time.Second)
	t.Cleanup(func() { broadcaster.Stop() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return source.callCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.BroadcasterSourceErrors) == errorsBefore+1
	}, time.Second, time.Millisecond)
	assert.Equal(t, 0, snapshots.count())

	// the next tick is still scheduled
	clock.Advance(5 * time.Second)
	require.Eventually(t, func() bool { return snapshots.count() == 1 }, time.Second, time.Millisecond)
}

func TestBroadcaster_SnapshotErrorDoesNotBlockFanOut(t *testing.T) {
	source := newMockSource(clockwork.NewRealClock())
	snapshots := &mockSnapshots{err: errors.New("redis down")}
	broadcaster := NewBroadcaster(source, snapshots, clockwork.NewRealClock(), 10, 20*time.Millisecond)
	t.Cleanup(func() { broadcaster.Stop() })

	server, client := newTestConnPair(t)
	require.NoError(t, broadcaster.Register(server))

	readSet(t, client)
	readSet(t, client)
}

func TestBroadcaster_SkipsClosedWriterWithoutRemoving(t *testing.T) {
	skippedBefore := testutil.ToFloat64(metrics.BroadcasterSkippedClients)
	broadcaster := NewBroadcaster(newMockSource(clockwork.NewRealClock()), nil, clockwork.NewRealClock(), 10, 10*time.Millisecond)
	t.Cleanup(func() { broadcaster.Stop() })

	server, _ := newTestConnPair(t)
	require.NoError(t, broadcaster.Register(server))

	// breaking the server side makes the next write fail and the writer exit
	require.NoError(t, server.UnderlyingConn().Close())

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.BroadcasterSkippedClients) > skippedBefore
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, broadcaster.ClientCount())

	broadcaster.Unregister(server)
	assert.True(t, waitForClientCount(broadcaster, 0))
}

func TestBroadcaster_SlowSourceTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the source timeout")
	}

	source := newMockSource(clockwork.NewRealClock())
	var timeouts int
	var mu sync.Mutex
	source.delay = func(ctx context.Context) error {
		<-ctx.Done()
		mu.Lock()
		timeouts++
		mu.Unlock()
		return ctx.Err()
	}

	broadcaster := NewBroadcaster(source, nil, clockwork.NewRealClock(), 10, 50*time.Millisecond)
	t.Cleanup(func() { broadcaster.Stop() })

	time.Sleep(sourceTimeout + 500*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Positive(t, timeouts)
}

func TestBroadcasterStopCleansUpGoroutines(t *testing.T) {
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	baseline := runtime.NumGoroutine()

	broadcaster := NewBroadcaster(newMockSource(clockwork.NewRealClock()), nil, clockwork.NewRealClock(), 10, 20*time.Millisecond)

	clients := make([]*ws.Conn, 0, 5)
	for range 5 {
		server, client := newTestConnPair(t)
		require.NoError(t, broadcaster.Register(server))
		clients = append(clients, client)
	}
	assert.Equal(t, 5, broadcaster.ClientCount())

	broadcaster.Stop()
	for _, client := range clients {
		client.Close()
	}

	time.Sleep(300 * time.Millisecond)
	runtime.GC()
	time.Sleep(50 * time.Millisecond)

	// residual goroutines belong to httptest servers
	leak := runtime.NumGoroutine() - baseline
	assert.Less(t, leak, 10, "excessive goroutine leak detected")
}

func TestBroadcasterStopIdempotent(t *testing.T) {
	broadcaster := NewBroadcaster(newMockSource(clockwork.NewRealClock()), nil, clockwork.NewRealClock(), 10, time.Hour)

	server, _ := newTestConnPair(t)
	require.NoError(t, broadcaster.Register(server))

	broadcaster.Stop()
	broadcaster.Stop()
	broadcaster.Stop()

	assert.Equal(t, 0, broadcaster.ClientCount())
	broadcaster.Unregister(server)
	assert.Error(t, broadcaster.Register(server))
}
