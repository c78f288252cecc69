package mqtt

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/waterwatch/internal/adapter/memory"
	"github.com/pscheid92/waterwatch/internal/app"
	"github.com/pscheid92/waterwatch/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// startBroker runs an in-process broker that accepts any client.
func startBroker(t *testing.T) (*mochi.Server, string) {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))
	broker := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{Type: "tcp", ID: "test", Address: addr})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { _ = broker.Close() })

	return broker, "tcp://" + addr
}

func TestSubscriber_StoresPublishedReadings(t *testing.T) {
	broker, url := startBroker(t)

	// Retained, so it is delivered as soon as the subscription is in place.
	require.NoError(t, broker.Publish("sensors/12/readings",
		[]byte(`{"lat":-6.1,"lng":106.9,"name":"Reservoir","status":"warning","flowRate":0.7}`), true, 1))

	store := memory.NewReadingStore()
	svc := app.NewService(app.Stores{Readings: store}, clockwork.NewFakeClock())
	sub := NewSubscriber(Options{
		BrokerURL: url,
		ClientID:  "waterwatch-test",
		Topic:     "sensors/+/readings",
		QoS:       1,
	}, NewHandler(svc, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, sub.Start(ctx))

	require.Eventually(t, func() bool {
		latest, err := store.Latest(context.Background())
		return err == nil && len(latest) == 1
	}, 5*time.Second, 20*time.Millisecond)

	latest, err := store.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, latest[0].ID)
	assert.Equal(t, "Reservoir", latest[0].Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IngestConnected))

	sub.Stop()
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.IngestConnected))
}

func TestSubscriber_StartFailsWithoutBroker(t *testing.T) {
	sub := NewSubscriber(Options{
		BrokerURL: fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t)),
		ClientID:  "waterwatch-test",
		Topic:     "sensors/+/readings",
	}, NewHandler(nil, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	assert.Error(t, sub.Start(ctx))
}
