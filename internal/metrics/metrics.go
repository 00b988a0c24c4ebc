package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trader process.
type Metrics struct {
	// Dispatcher
	CommandsTotal   *prometheus.CounterVec   // labels: kind, status
	CommandDuration *prometheus.HistogramVec // labels: kind
	QueueDepth      *prometheus.GaugeVec     // labels: queue=in|out

	// Bridge
	BridgeTimeouts *prometheus.CounterVec // labels: kind
	StaleDrained   prometheus.Counter

	// Broker session
	BrokerRequestDur *prometheus.HistogramVec // labels: tr
	BrokerErrors     *prometheus.CounterVec   // labels: tr
	BrokerState      prometheus.Gauge         // 0=idle 1=sent 2=awaiting 3=resolved

	// Signals and delivery
	SignalsTotal   *prometheus.CounterVec // labels: kind, signal
	NotifyFailures *prometheus.CounterVec // labels: backend

	// Redis circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open

	// Scheduler
	ScansTotal  *prometheus.CounterVec // labels: status=ok|error|timeout
	MarketState prometheus.Gauge       // 0=closed, 1=open
}

// NewMetrics registers and returns all metrics on reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_commands_total",
			Help: "Commands executed by the dispatcher",
		}, []string{"kind", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autotrader_command_duration_seconds",
			Help:    "Time from dequeue to result push",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"kind"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotrader_queue_depth",
			Help: "Items waiting in the command/result queues",
		}, []string{"queue"}),
		BridgeTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_bridge_timeouts_total",
			Help: "Bridge calls that gave up waiting for a result",
		}, []string{"kind"}),
		StaleDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_stale_results_drained_total",
			Help: "Late results discarded before a new call",
		}),
		BrokerRequestDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autotrader_broker_request_duration_seconds",
			Help:    "Broker TR request to callback latency",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"tr"}),
		BrokerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_broker_errors_total",
			Help: "Failed broker TR requests",
		}, []string{"tr"}),
		BrokerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_broker_state",
			Help: "Session state (0=idle, 1=sent, 2=awaiting callback, 3=resolved)",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_signals_total",
			Help: "Signal classifications by kind and Y/N",
		}, []string{"kind", "signal"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_notify_failures_total",
			Help: "Failed alert deliveries per backend",
		}, []string{"backend"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_redis_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_scans_total",
			Help: "Scheduled basket volume scans",
		}, []string{"status"}),
		MarketState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_market_state",
			Help: "KRX regular session (0=closed, 1=open)",
		}),
	}

	reg.MustRegister(
		m.CommandsTotal,
		m.CommandDuration,
		m.QueueDepth,
		m.BridgeTimeouts,
		m.StaleDrained,
		m.BrokerRequestDur,
		m.BrokerErrors,
		m.BrokerState,
		m.SignalsTotal,
		m.NotifyFailures,
		m.RedisCircuitBreakerState,
		m.ScansTotal,
		m.MarketState,
	)

	return m
}

// ObserveCommand records one dispatched Command.
func (m *Metrics) ObserveCommand(kind, status string, d time.Duration) {
	m.CommandsTotal.WithLabelValues(kind, status).Inc()
	m.CommandDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveBrokerRequest records one TR round trip.
func (m *Metrics) ObserveBrokerRequest(tr string, d time.Duration, err error) {
	m.BrokerRequestDur.WithLabelValues(tr).Observe(d.Seconds())
	if err != nil {
		m.BrokerErrors.WithLabelValues(tr).Inc()
	}
}

// Pinger is a dependency with a liveness probe (the redis publisher).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	BrokerConnected bool      `json:"broker_connected"`
	LastTickTime    time.Time `json:"last_tick_time"`
	LastScanTime    time.Time `json:"last_scan_time"`
	RedisEnabled    bool      `json:"redis_enabled"`
	RedisConnected  bool      `json:"redis_connected"`
	SQLiteOK        bool      `json:"sqlite_ok"`
	TradeMode       string    `json:"trade_mode"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(mode string) *HealthStatus {
	return &HealthStatus{
		TradeMode: mode,
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetBrokerConnected(v bool) {
	h.mu.Lock()
	h.BrokerConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastScanTime(t time.Time) {
	h.mu.Lock()
	h.LastScanTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.RedisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, p Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
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
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. rdb and sqlDB may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb Pinger, sqlDB *sql.DB, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
		if sqlDB != nil {
			h.CheckSQLite(probeCtx, sqlDB)
		}
	}
	probe()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
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

	redisDown := h.RedisEnabled && !h.RedisConnected
	if !h.BrokerConnected || !h.SQLiteOK || redisDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.BrokerConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}
	lastScan := ""
	if !h.LastScanTime.IsZero() {
		lastScan = h.LastScanTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		TradeMode       string  `json:"trade_mode"`
		BrokerConnected bool    `json:"broker_connected"`
		LastTickTime    string  `json:"last_tick_time"`
		TickAge         string  `json:"tick_age"`
		LastScanTime    string  `json:"last_scan_time"`
		RedisEnabled    bool    `json:"redis_enabled"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		TradeMode:       h.TradeMode,
		BrokerConnected: h.BrokerConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		LastScanTime:    lastScan,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer serves the
// default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the mux (tests).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

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
