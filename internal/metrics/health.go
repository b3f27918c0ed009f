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

// HealthStatus is the process health reported on /healthz. Redis and SQLite
// only count against health when they are configured.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool
	LastCandleTime  time.Time
	ExchangeOK      bool
	TradingEnabled  bool

	RedisEnabled    bool
	RedisConnected  bool
	RedisLatencyMs  float64
	SQLiteEnabled   bool
	SQLiteOK        bool
	SQLiteLatencyMs float64

	LastCheckAt time.Time
	StartedAt   time.Time

	now func() time.Time
}

// NewHealthStatus returns a status with the start time set.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), now: time.Now}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastCandleTime(t time.Time) {
	h.mu.Lock()
	h.LastCandleTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetExchangeOK(v bool) {
	h.mu.Lock()
	h.ExchangeOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetTradingEnabled(v bool) {
	h.mu.Lock()
	h.TradingEnabled = v
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency and health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the configured stores every interval. Either
// argument may be nil.
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

// Report is the JSON body of /healthz.
type Report struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	StreamConnected bool    `json:"stream_connected"`
	LastCandleTime  string  `json:"last_candle_time,omitempty"`
	CandleAge       string  `json:"candle_age,omitempty"`
	ExchangeOK      bool    `json:"exchange_ok"`
	TradingEnabled  bool    `json:"trading_enabled"`
	RedisConnected  *bool   `json:"redis_connected,omitempty"`
	RedisLatencyMs  float64 `json:"redis_latency_ms,omitempty"`
	SQLiteOK        *bool   `json:"sqlite_ok,omitempty"`
	SQLiteLatencyMs float64 `json:"sqlite_latency_ms,omitempty"`
}

// Report computes the overall status: "healthy", "degraded" when a required
// dependency is down, "unhealthy" when the exchange is unreachable too.
func (h *HealthStatus) Report() Report {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{
		Status:          "healthy",
		Uptime:          h.now().Sub(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		ExchangeOK:      h.ExchangeOK,
		TradingEnabled:  h.TradingEnabled,
	}
	if !h.LastCandleTime.IsZero() {
		r.LastCandleTime = h.LastCandleTime.UTC().Format(time.RFC3339)
		r.CandleAge = h.now().Sub(h.LastCandleTime).Round(time.Second).String()
	}
	storesOK := true
	if h.RedisEnabled {
		v := h.RedisConnected
		r.RedisConnected, r.RedisLatencyMs = &v, h.RedisLatencyMs
		storesOK = storesOK && v
	}
	if h.SQLiteEnabled {
		v := h.SQLiteOK
		r.SQLiteOK, r.SQLiteLatencyMs = &v, h.SQLiteLatencyMs
		storesOK = storesOK && v
	}

	switch {
	case !h.ExchangeOK && !h.StreamConnected:
		r.Status = "unhealthy"
	case !h.ExchangeOK || !h.StreamConnected || !storesOK:
		r.Status = "degraded"
	}
	return r
}

// ServeHTTP handles /healthz.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	r := h.Report()
	w.Header().Set("Content-Type", "application/json")
	if r.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(r)
}

// Server exposes /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server reading from gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv:  &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
	}
}

// Handler returns the server's mux, for tests.
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

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
