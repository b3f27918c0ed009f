package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the trading engine.
type Metrics struct {
	CandlesTotal     prometheus.Counter
	CandleLag        prometheus.Gauge
	SignalsTotal     *prometheus.CounterVec // labels: kind
	AmbiguousSignals prometheus.Counter

	OrdersPlaced   *prometheus.CounterVec // labels: tag
	OrderFailures  prometheus.Counter
	CancelAllTotal prometheus.Counter
	ResetsTotal    *prometheus.CounterVec // labels: reason
	FillsTotal     prometheus.Counter
	ReconcileRuns  prometheus.Counter
	ActiveState    prometheus.Gauge // 0=empty, 1=pending, 2=active
	RealizedPnL    prometheus.Gauge

	ExchangeCallDur  *prometheus.HistogramVec // labels: endpoint, result
	StreamReconnects prometheus.Counter

	FanoutDropsTotal         *prometheus.CounterVec // labels: subscriber
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. Pass
// prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_candles_total",
			Help: "Closed candles processed by the engine",
		}),
		CandleLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dreamrunner_candle_lag_seconds",
			Help: "Wall clock minus the open time of the last processed candle",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreamrunner_signals_total",
			Help: "Signals emitted by the strategy",
		}, []string{"kind"}),
		AmbiguousSignals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_ambiguous_signals_total",
			Help: "Evaluations where long and short both triggered",
		}),

		OrdersPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreamrunner_orders_placed_total",
			Help: "Limit orders accepted by the exchange",
		}, []string{"tag"}),
		OrderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_order_failures_total",
			Help: "Order placements rejected or failed",
		}),
		CancelAllTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_cancel_all_total",
			Help: "Cancel-all-open-orders calls",
		}),
		ResetsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreamrunner_active_order_resets_total",
			Help: "Active order slot resets",
		}, []string{"reason"}),
		FillsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_fills_total",
			Help: "Entry orders confirmed FILLED",
		}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_reconcile_runs_total",
			Help: "Periodic reconciliation passes",
		}),
		ActiveState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dreamrunner_active_order_state",
			Help: "Entry slot state (0=empty, 1=pending, 2=active)",
		}),
		RealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dreamrunner_realized_pnl_quote",
			Help: "Realized PnL in quote asset since start",
		}),

		ExchangeCallDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dreamrunner_exchange_call_duration_seconds",
			Help:    "Exchange REST call latency",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"endpoint", "result"}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_stream_reconnects_total",
			Help: "WebSocket reconnections",
		}),

		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dreamrunner_fanout_drops_total",
			Help: "Candles dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dreamrunner_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dreamrunner_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	reg.MustRegister(
		m.CandlesTotal,
		m.CandleLag,
		m.SignalsTotal,
		m.AmbiguousSignals,
		m.OrdersPlaced,
		m.OrderFailures,
		m.CancelAllTotal,
		m.ResetsTotal,
		m.FillsTotal,
		m.ReconcileRuns,
		m.ActiveState,
		m.RealizedPnL,
		m.ExchangeCallDur,
		m.StreamReconnects,
		m.FanoutDropsTotal,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)
	return m
}

// ObserveCall records one exchange call; it matches the binance CallObserver
// signature. Order ids and query strings are not part of endpoint.
func (m *Metrics) ObserveCall(endpoint string, took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ExchangeCallDur.WithLabelValues(strings.ToLower(endpoint), result).Observe(took.Seconds())
}
