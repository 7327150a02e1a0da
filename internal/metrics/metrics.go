// Package metrics holds the Prometheus metrics and the /healthz status shared
// by the gateway and the dashboard.
package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the dashboard stack.
type Metrics struct {
	SnapshotsBuilt   *prometheus.CounterVec // labels: topic
	SnapshotBuildDur prometheus.Histogram
	SnapshotErrors   *prometheus.CounterVec // labels: topic

	ConnectedClients prometheus.Gauge
	DroppedMessages  prometheus.Counter

	ConfigUpdates *prometheus.CounterVec // labels: result=ok|invalid|error

	// Config cache circuit breaker
	CacheCircuitState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CacheCircuitTrips prometheus.Counter
	BufferedBars      prometheus.Counter

	// Dashboard side
	FeedReconnects    prometheus.Counter
	RejectedSnapshots prometheus.Counter
	FramesRendered    prometheus.Counter
}

// New creates all metrics and registers them on reg.
// Pass prometheus.DefaultRegisterer to expose them via promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SnapshotsBuilt: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_snapshots_built_total",
			Help: "Snapshots built and broadcast, by topic",
		}, []string{"topic"}),
		SnapshotBuildDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dashboard_snapshot_build_duration_seconds",
			Help:    "Time to read candles, load config and compute one snapshot",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		SnapshotErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_snapshot_errors_total",
			Help: "Snapshot builds that failed, by topic",
		}, []string{"topic"}),

		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_ws_clients",
			Help: "Connected websocket clients",
		}),
		DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_ws_dropped_messages_total",
			Help: "Messages dropped because a client's send buffer was full",
		}),

		ConfigUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_config_updates_total",
			Help: "Indicator config updates, by result",
		}, []string{"result"}),

		CacheCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_cache_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CacheCircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_cache_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		BufferedBars: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_redis_buffered_bars_total",
			Help: "Bars buffered locally while the Redis circuit breaker was open",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_feed_reconnects_total",
			Help: "Streaming transport disconnects followed by a scheduled reconnect",
		}),
		RejectedSnapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_rejected_snapshots_total",
			Help: "Malformed snapshots rejected by the chart session",
		}),
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_frames_rendered_total",
			Help: "Frames rendered by the chart session",
		}),
	}

	reg.MustRegister(
		m.SnapshotsBuilt,
		m.SnapshotBuildDur,
		m.SnapshotErrors,
		m.ConnectedClients,
		m.DroppedMessages,
		m.ConfigUpdates,
		m.CacheCircuitState,
		m.CacheCircuitTrips,
		m.BufferedBars,
		m.FeedReconnects,
		m.RejectedSnapshots,
		m.FramesRendered,
	)
	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool
	SQLiteOK       bool
	Clients        int
	ActiveTopics   int
	LastPublish    time.Time

	// Snapshot build latency percentiles (ms)
	BuildP50, BuildP95, BuildP99 float64
	SlowestTopic                 string
	SlowestBuildMs               float64

	// Liveness check results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), now: time.Now}
}

// SetPublish records one publisher pass.
func (h *HealthStatus) SetPublish(clients, topics int, p50, p95, p99 float64) {
	h.mu.Lock()
	h.Clients = clients
	h.ActiveTopics = topics
	h.BuildP50, h.BuildP95, h.BuildP99 = p50, p95, p99
	h.LastPublish = h.now()
	h.mu.Unlock()
}

// SetSlowestBuild records the topic with the highest mean build time.
func (h *HealthStatus) SetSlowestBuild(topic string, ms float64) {
	h.mu.Lock()
	h.SlowestTopic, h.SlowestBuildMs = topic, ms
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb goredis.Cmdable) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker checks the stores once immediately and then every
// interval until ctx is done. Either store may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb goredis.Cmdable, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(checkCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(checkCtx, sqlDB)
		}
	}
	go func() {
		check()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	lastPublish := ""
	if !h.LastPublish.IsZero() {
		lastPublish = h.LastPublish.UTC().Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		Clients         int     `json:"ws_clients"`
		ActiveTopics    int     `json:"active_topics"`
		LastPublish     string  `json:"last_publish"`
		BuildP50        float64 `json:"build_p50_ms"`
		BuildP95        float64 `json:"build_p95_ms"`
		BuildP99        float64 `json:"build_p99_ms"`
		SlowestTopic    string  `json:"slowest_topic,omitempty"`
		SlowestBuildMs  float64 `json:"slowest_build_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		Clients:         h.Clients,
		ActiveTopics:    h.ActiveTopics,
		LastPublish:     lastPublish,
		BuildP50:        h.BuildP50,
		BuildP95:        h.BuildP95,
		BuildP99:        h.BuildP99,
		SlowestTopic:    h.SlowestTopic,
		SlowestBuildMs:  h.SlowestBuildMs,
		LastCheckAt:     h.LastCheckAt.UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs a standalone HTTP server exposing /metrics, for processes
// without their own router.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics server for gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
		log:  log.With("component", "metrics"),
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
