package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neon_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "neon_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neon_ws_connections",
			Help: "Open websocket connections",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "neon_rooms_active",
			Help: "Rooms with at least one member",
		},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_rooms_evicted_total",
			Help: "Total idle rooms evicted from memory",
		},
	)

	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neon_events_total",
			Help: "Inbound relay events by name",
		},
		[]string{"event"},
	)

	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_messages_relayed_total",
			Help: "Total encrypted chat messages relayed",
		},
	)

	ReactionsRecorded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_reactions_recorded_total",
			Help: "Total encrypted reactions appended",
		},
	)

	DroppedFrames = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_dropped_frames_total",
			Help: "Outbound frames dropped because a client send buffer was full",
		},
	)

	// Account metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_users_registered_total",
			Help: "Total aliases registered",
		},
	)

	PaymentSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "neon_payment_sessions_total",
			Help: "Total payment sessions created",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neon_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "neon_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neon_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	StoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "neon_store_latency_seconds",
			Help:    "Account store query latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
