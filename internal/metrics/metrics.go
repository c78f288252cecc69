package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Redis Operations Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)

// Broadcaster Metrics
var (
	// BroadcasterConnectedClients tracks subscribers currently in the registry
	BroadcasterConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_connected_clients",
			Help: "Number of live subscribers registered with the broadcaster",
		},
	)

	BroadcasterTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_ticks_total",
			Help: "Total broadcast ticks executed",
		},
	)

	// BroadcasterTickDuration tracks generate + serialize + fan-out time per tick
	BroadcasterTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "broadcaster_tick_duration_seconds",
			Help:    "Broadcast tick duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// BroadcasterDroppedMessages tracks sends skipped because a subscriber buffer was full
	BroadcasterDroppedMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_dropped_messages_total",
			Help: "Reading sets dropped for a subscriber whose send buffer was full",
		},
	)

	// BroadcasterSkippedClients tracks sends skipped because the subscriber channel was no longer open
	BroadcasterSkippedClients = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_skipped_clients_total",
			Help: "Sends skipped for subscribers whose channel was not open",
		},
	)

	// BroadcasterSourceErrors tracks ticks that produced no reading set
	BroadcasterSourceErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_source_errors_total",
			Help: "Ticks skipped because the reading source failed",
		},
	)

	// BroadcasterSnapshotErrors tracks failed snapshot cache writes
	BroadcasterSnapshotErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_snapshot_errors_total",
			Help: "Failed writes of the latest reading set to the snapshot cache",
		},
	)

	// BroadcasterPanicsTotal tracks broadcaster panic recoveries
	BroadcasterPanicsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_panics_total",
			Help: "Total broadcaster panic recoveries",
		},
	)

	// BroadcasterCommandChannelDepth tracks current command channel depth
	BroadcasterCommandChannelDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcaster_command_channel_depth",
			Help: "Current command channel depth",
		},
	)

	// BroadcasterStopTimeoutsTotal tracks broadcaster stops that exceeded timeout
	BroadcasterStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcaster_stop_timeouts_total",
			Help: "Broadcaster stops that exceeded timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketConnectionsTotal tracks WebSocket connection attempts by result
	WebSocketConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_total",
			Help: "Total WebSocket connection attempts by result (success/error/rejected)",
		},
		[]string{"result"},
	)

	// WebSocketConnectionsRejected tracks rejected connection attempts by reason
	WebSocketConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "Total WebSocket connections rejected by reason (rate_limit/ip_limit/global_limit)",
		},
		[]string{"reason"},
	)

	// WebSocketMessageSendDuration tracks WebSocket message send duration
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "WebSocket message send duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
		},
	)

	// WebSocketConnectionDuration tracks how long live subscribers stay connected
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "WebSocket connection duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		},
	)

	// WebSocketPingFailures tracks WebSocket ping failures
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket ping failures (client not responding)",
		},
	)

	// WebSocketConnectionCapacity tracks current connection capacity utilization as percentage
	WebSocketConnectionCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connection_capacity_percent",
			Help: "Current WebSocket connection capacity utilization (0-100%)",
		},
	)

	// WebSocketUniqueIPs tracks number of unique IP addresses with active connections
	WebSocketUniqueIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_unique_ips",
			Help: "Number of unique IP addresses with active WebSocket connections",
		},
	)
)

// Subscriber Client Metrics
var (
	// SubscriberStateTransitions tracks entries into each client state
	SubscriberStateTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriber_state_transitions_total",
			Help: "Subscriber client state transitions by target state",
		},
		[]string{"state"},
	)

	// SubscriberUpdatesTotal tracks cache replacements by channel (live/poll)
	SubscriberUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriber_updates_total",
			Help: "Reading cache replacements by channel",
		},
		[]string{"channel"},
	)

	// SubscriberErrorsTotal tracks subscriber failures by kind (connection/serialization/fetch/stale_poll)
	SubscriberErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriber_errors_total",
			Help: "Subscriber client failures by kind",
		},
		[]string{"kind"},
	)
)

// Ingestion Metrics
var (
	// IngestMessagesTotal tracks MQTT readings by result (stored/invalid/error)
	IngestMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Ingested sensor readings by result",
		},
		[]string{"result"},
	)

	// IngestConnected is 1 while the MQTT connection is up
	IngestConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ingest_connected",
			Help: "1 if the MQTT ingestion connection is up, 0 otherwise",
		},
	)
)

// Database Metrics
var (
	// DBQueryDuration tracks database query duration by query name
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"query"},
	)

	// DBErrorsTotal tracks database errors by query name
	DBErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_errors_total",
			Help: "Total database errors by query",
		},
		[]string{"query"},
	)
)

// Build Information Metrics
var (
	// BuildInfo is a gauge that always returns 1, with build metadata as labels
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information with version, commit, build_time, and go_version labels (value is always 1)",
		},
		[]string{"version", "commit", "build_time", "go_version"},
	)
)

// HTTP Error Metrics
// Note: http_errors_total{type} is provided by internal/platform/errors
