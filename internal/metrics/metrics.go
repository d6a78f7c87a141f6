package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulator.
type Metrics struct {
	RunsTotal      prometheus.Counter
	RunFailures    *prometheus.CounterVec // labels: stage
	TradesTotal    *prometheus.CounterVec // labels: side
	SimulatedDays  prometheus.Counter
	WarmupDropped  prometheus.Gauge
	FinalValue     prometheus.Gauge
	ROI            prometheus.Gauge
	MaxDrawdown    prometheus.Gauge
	WinRate        prometheus.Gauge
	StageDuration  *prometheus.HistogramVec // labels: stage
	RunDuration    prometheus.Histogram
	SinkWriteDur   *prometheus.HistogramVec // labels: sink
	SinkErrors     *prometheus.CounterVec   // labels: sink
	StreamClients  prometheus.Gauge
	CircuitBreaker prometheus.Gauge // 0=closed, 1=open, 2=half-open
	CircuitTrips   prometheus.Counter
	RunsBuffered   prometheus.Counter
	RunsFlushed    prometheus.Counter
	handler        http.Handler
}

// NewMetrics creates all collectors and registers them with reg.
// A nil reg uses a fresh private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossover_sim_runs_total",
			Help: "Total completed simulation runs",
		}),
		RunFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossover_sim_run_failures_total",
			Help: "Simulation runs that failed, by pipeline stage",
		}, []string{"stage"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossover_sim_trades_total",
			Help: "Trades executed by the simulator",
		}, []string{"side"}),
		SimulatedDays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossover_sim_days_total",
			Help: "Total simulated trading days",
		}),
		WarmupDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_warmup_rows_dropped",
			Help: "Rows dropped for indicator warm-up in the last run",
		}),
		FinalValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_final_value",
			Help: "Final portfolio value of the last run",
		}),
		ROI: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_roi_ratio",
			Help: "Return on investment of the last run",
		}),
		MaxDrawdown: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_max_drawdown_ratio",
			Help: "Maximum drawdown of the last run",
		}),
		WinRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_win_rate_ratio",
			Help: "Round-trip win rate of the last run",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crossover_sim_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"stage"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crossover_sim_run_duration_seconds",
			Help:    "End-to-end pipeline duration",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		SinkWriteDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crossover_sim_sink_write_duration_seconds",
			Help:    "Duration of result persistence per sink",
			Buckets: prometheus.DefBuckets,
		}, []string{"sink"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crossover_sim_sink_errors_total",
			Help: "Failed result writes per sink",
		}, []string{"sink"}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_stream_clients",
			Help: "Connected WebSocket stream clients",
		}),
		CircuitBreaker: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crossover_sim_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		CircuitTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossover_sim_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker opened",
		}),
		RunsBuffered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossover_sim_redis_runs_buffered_total",
			Help: "Run messages held locally while the Redis circuit was open",
		}),
		RunsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crossover_sim_redis_runs_flushed_total",
			Help: "Buffered run messages replayed after the Redis circuit closed",
		}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunFailures,
		m.TradesTotal,
		m.SimulatedDays,
		m.WarmupDropped,
		m.FinalValue,
		m.ROI,
		m.MaxDrawdown,
		m.WinRate,
		m.StageDuration,
		m.RunDuration,
		m.SinkWriteDur,
		m.SinkErrors,
		m.StreamClients,
		m.CircuitBreaker,
		m.CircuitTrips,
		m.RunsBuffered,
		m.RunsFlushed,
	)
	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	return m
}

// Handler serves the registry the metrics were registered with.
func (m *Metrics) Handler() http.Handler { return m.handler }

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveSink records a sink write and its outcome.
func (m *Metrics) ObserveSink(sink string, d time.Duration, err error) {
	m.SinkWriteDur.WithLabelValues(sink).Observe(d.Seconds())
	if err != nil {
		m.SinkErrors.WithLabelValues(sink).Inc()
	}
}

// HealthStatus represents the server health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisEnabled   bool
	RedisConnected bool
	SQLiteEnabled  bool
	SQLiteOK       bool
	LastRunID      string
	LastRunAt      time.Time

	// Liveness probe results
	RedisLatencyMs  float64
	SQLiteLatencyMs float64
	LastCheckAt     time.Time
	StartedAt       time.Time
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

// SetLastRun records the most recent completed run.
func (h *HealthStatus) SetLastRun(id string, at time.Time) {
	h.mu.Lock()
	h.LastRunID = id
	h.LastRunAt = at
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil clients are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	check := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	check()

	go func() {
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
// Only enabled dependencies affect the overall status.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if redisDown && sqliteDown {
		overallStatus = "unhealthy"
	}

	lastRunAt := ""
	if !h.LastRunAt.IsZero() {
		lastRunAt = h.LastRunAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteEnabled   bool    `json:"sqlite_enabled"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastRunID       string  `json:"last_run_id,omitempty"`
		LastRunAt       string  `json:"last_run_at,omitempty"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastRunID:       h.LastRunID,
		LastRunAt:       lastRunAt,
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
	log  *slog.Logger
}

// NewServer creates a metrics and health server. A nil log uses slog.Default.
func NewServer(addr string, m *Metrics, health *HealthStatus, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		log:  log.With("component", "metrics"),
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("metrics server listening", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			s.log.Error("metrics server error", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
