// Package metrics exposes Prometheus metrics and a /healthz endpoint
// for the P&L engine.
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

// Metrics holds all Prometheus metrics for the P&L engine.
type Metrics struct {
	TradesApplied   prometheus.Counter
	TradesRejected  prometheus.Counter
	TradesDuplicate prometheus.Counter
	Realizations    prometheus.Counter

	PriceUpdates   prometheus.Counter
	RolloversTotal prometheus.Counter

	MissingPriceFallbacks *prometheus.CounterVec // labels: slot
	DegradedSymbols       prometheus.Gauge

	RecomputeDur      prometheus.Histogram
	RecomputesTotal   prometheus.Counter
	RecomputeCoalesce prometheus.Counter

	SQLiteCommitDur  prometheus.Histogram
	SQLiteRetries    prometheus.Counter
	SnapshotQueueLen prometheus.Gauge

	FeedReconnects prometheus.Counter
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TradesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_trades_applied_total",
			Help: "Trades applied to the matching engine",
		}),
		TradesRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_trades_rejected_total",
			Help: "Trades rejected at the validation boundary",
		}),
		TradesDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_trades_duplicate_total",
			Help: "Replayed trades ignored via the (trading_day, seq_id) key",
		}),
		Realizations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_realizations_total",
			Help: "Realization records emitted across both disciplines",
		}),

		PriceUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_price_updates_total",
			Help: "Price slot observations applied",
		}),
		RolloversTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_rollovers_total",
			Help: "Day-close price slot rollovers performed",
		}),

		MissingPriceFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pnlengine_missing_price_fallbacks_total",
			Help: "Unrealized P&L legs degraded to trade price (by slot)",
		}, []string{"slot"}),
		DegradedSymbols: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pnlengine_degraded_symbols",
			Help: "Symbols whose last snapshot used a price fallback",
		}),

		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pnlengine_recompute_duration_seconds",
			Help:    "Full aggregation pass latency",
			Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		RecomputesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_recomputes_total",
			Help: "Aggregation passes executed",
		}),
		RecomputeCoalesce: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_recompute_coalesced_total",
			Help: "Change signals coalesced into an already-pending pass",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pnlengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_sqlite_retries_total",
			Help: "Failed SQLite batches scheduled for retry",
		}),
		SnapshotQueueLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pnlengine_snapshot_queue_len",
			Help: "Snapshots pending in the writer queue",
		}),

		FeedReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pnlengine_feed_reconnects_total",
			Help: "WebSocket feed reconnection attempts",
		}),
	}

	prometheus.MustRegister(
		m.TradesApplied,
		m.TradesRejected,
		m.TradesDuplicate,
		m.Realizations,
		m.PriceUpdates,
		m.RolloversTotal,
		m.MissingPriceFallbacks,
		m.DegradedSymbols,
		m.RecomputeDur,
		m.RecomputesTotal,
		m.RecomputeCoalesce,
		m.SQLiteCommitDur,
		m.SQLiteRetries,
		m.SnapshotQueueLen,
		m.FeedReconnects,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	LastTradeTime  time.Time `json:"last_trade_time"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTradeTime(t time.Time) {
	h.mu.Lock()
	h.LastTradeTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
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

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
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

	if !h.FeedConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	tradeAge := ""
	if !h.LastTradeTime.IsZero() {
		tradeAge = time.Since(h.LastTradeTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		FeedConnected   bool    `json:"feed_connected"`
		LastTradeTime   string  `json:"last_trade_time"`
		TradeAge        string  `json:"trade_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:   h.FeedConnected,
		LastTradeTime:   h.LastTradeTime.Format(time.RFC3339),
		TradeAge:        tradeAge,
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

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
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
