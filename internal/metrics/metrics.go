package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the analysis engine.
type Metrics struct {
	PricesTotal     prometheus.Counter
	UpdatesTotal    prometheus.Counter
	WSReconnects    prometheus.Counter
	OutOfOrderTotal prometheus.Counter
	DroppedTicks    prometheus.Counter

	// Analysis path
	ComputeDur  prometheus.Histogram
	RegimeFlips *prometheus.CounterVec // labels: symbol

	// Risk gate
	RiskEvaluations *prometheus.CounterVec // labels: outcome

	// Ring buffer overflow
	RingBufOverflow prometheus.Counter

	// Backpressure
	FanoutDropsTotal     *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Store latencies
	RedisWriteDur   prometheus.Histogram
	SQLiteCommitDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return prometheus.NewHistogram(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets})
	}

	m := &Metrics{
		PricesTotal:     counter("analysisd_prices_total", "Total price points received from the feed"),
		UpdatesTotal:    counter("analysisd_updates_total", "Total snapshot+regime updates produced"),
		WSReconnects:    counter("analysisd_ws_reconnects_total", "Total feed WebSocket reconnection attempts"),
		OutOfOrderTotal: counter("analysisd_out_of_order_rejected_total", "Price points rejected for stale timestamps"),
		DroppedTicks:    counter("analysisd_dropped_ticks_total", "Late ticks dropped by the 1s coalescer"),

		ComputeDur: histogram("analysisd_compute_duration_seconds",
			"Indicator + regime compute latency per price point",
			[]float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001}),
		RegimeFlips: counterVec("analysisd_regime_flips_total",
			"Regime label changes per symbol", "symbol"),

		RiskEvaluations: counterVec("analysisd_risk_evaluations_total",
			"Risk gate evaluations by outcome (accepted/rejected reason)", "outcome"),

		RingBufOverflow: counter("analysisd_ringbuf_overflow_total",
			"Ring buffer push overflows (dropped price points)"),

		FanoutDropsTotal: counterVec("analysisd_fanout_drops_total",
			"Price points dropped by FanOut bus per subscriber", "subscriber"),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "analysisd_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		RedisWriteDur: histogram("analysisd_redis_write_duration_seconds",
			"Redis write latency", prometheus.DefBuckets),
		SQLiteCommitDur: histogram("analysisd_sqlite_commit_duration_seconds",
			"SQLite batch commit latency", prometheus.DefBuckets),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysisd_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: counter("analysisd_redis_circuit_breaker_trips_total",
			"Times the Redis circuit breaker tripped open"),
	}

	prometheus.MustRegister(
		m.PricesTotal, m.UpdatesTotal, m.WSReconnects, m.OutOfOrderTotal,
		m.DroppedTicks, m.ComputeDur, m.RegimeFlips, m.RiskEvaluations,
		m.RingBufOverflow, m.FanoutDropsTotal, m.ChannelSaturationPct,
		m.RedisWriteDur, m.SQLiteCommitDur,
		m.RedisCircuitBreakerState, m.RedisCircuitBreakerTrips,
	)

	return m
}

// HealthStatus aggregates the engine's dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastPriceTime  time.Time `json:"last_price_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	PipelineOK     bool      `json:"pipeline_ok"`
	Symbols        []string  `json:"symbols"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

// set runs fn under the write lock.
func (h *HealthStatus) set(fn func()) {
	h.mu.Lock()
	fn()
	h.mu.Unlock()
}

func (h *HealthStatus) SetFeedConnected(v bool)      { h.set(func() { h.FeedConnected = v }) }
func (h *HealthStatus) SetLastPriceTime(t time.Time) { h.set(func() { h.LastPriceTime = t }) }
func (h *HealthStatus) SetRedisConnected(v bool)     { h.set(func() { h.RedisConnected = v }) }
func (h *HealthStatus) SetSQLiteOK(v bool)           { h.set(func() { h.SQLiteOK = v }) }
func (h *HealthStatus) SetPipelineOK(v bool)         { h.set(func() { h.PipelineOK = v }) }
func (h *HealthStatus) SetSymbols(symbols []string)  { h.set(func() { h.Symbols = symbols }) }

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	elapsed := time.Since(start)

	h.set(func() {
		h.RedisConnected = err == nil
		h.RedisLatencyMs = float64(elapsed.Microseconds()) / 1000.0
		h.LastCheckAt = time.Now()
	})
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	elapsed := time.Since(start)

	h.set(func() {
		h.SQLiteOK = err == nil
		h.SQLiteLatencyMs = float64(elapsed.Microseconds()) / 1000.0
		h.LastCheckAt = time.Now()
	})
}

// StartLivenessChecker probes the given dependencies on a fixed cadence
// until ctx is cancelled. Nil dependencies are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.probe(ctx, rdb, sqlDB)
			}
		}
	}()
}

func (h *HealthStatus) probe(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if rdb != nil {
		h.CheckRedis(probeCtx, rdb)
	}
	if sqlDB != nil {
		h.CheckSQLite(probeCtx, sqlDB)
	}
}

// overall derives the aggregate status from the dependency flags. Losing
// one dependency is degraded; losing both stores is unhealthy.
func (h *HealthStatus) overall() (status string, httpCode int) {
	status, httpCode = "healthy", http.StatusOK
	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		status, httpCode = "degraded", http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		status = "unhealthy"
	}
	return status, httpCode
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status, httpCode := h.overall()

	priceAge := ""
	if !h.LastPriceTime.IsZero() {
		priceAge = time.Since(h.LastPriceTime).Round(time.Millisecond).String()
	}

	body := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		FeedConnected   bool     `json:"feed_connected"`
		LastPriceTime   string   `json:"last_price_time"`
		PriceAge        string   `json:"price_age"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		PipelineOK      bool     `json:"pipeline_ok"`
		Symbols         []string `json:"symbols"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          status,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastPriceTime:   h.LastPriceTime.Format(time.RFC3339),
		PriceAge:        priceAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		PipelineOK:      h.PipelineOK,
		Symbols:         h.Symbols,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(body)
}

// Server exposes /metrics and /healthz on its own listener.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
