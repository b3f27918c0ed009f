// Package engine runs one symbol live: closed candles go through the
// strategy, signals become limit entries, and exchange order events drive
// the entry slot until it is filled or abandoned.
//
// Everything that mutates engine state happens on the goroutine that calls
// Run. Exchange calls are awaited before the next event is taken, so a
// signal can never race the placement of the previous one. Snapshot is the
// only method meant to be called from other goroutines.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/logger"
	"github.com/0xBreath/binance-engine-sub000/internal/metrics"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/notification"
	"github.com/0xBreath/binance-engine-sub000/internal/order"
	"github.com/0xBreath/binance-engine-sub000/internal/portfolio"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultEquityPct      = 95.0
	DefaultReconcileEvery = time.Minute
)

// Config is the per-symbol trading configuration.
type Config struct {
	Symbol string
	Base   string
	Quote  string

	// EquityPct is the share of the free balance committed to one entry.
	EquityPct float64
	// StaleAfter abandons a Pending or working entry older than this.
	StaleAfter time.Duration
	// ReconcileEvery is the period of the exchange reconciliation pass.
	ReconcileEvery time.Duration

	// TradingEnabled false runs the strategy and logs signals without
	// placing orders.
	TradingEnabled bool

	// Equalize rebalances base and quote to equal value at startup.
	// Legs at or below MinEqualizeQty base units are skipped.
	Equalize       bool
	MinEqualizeQty decimal.Decimal

	Risk portfolio.RiskLimits
}

// Deps are the collaborators of an Engine. Exchange and Strategy are
// required; the rest may be nil.
type Deps struct {
	Exchange  model.Exchange
	Strategy  strategy.Strategy
	Journal   model.FillJournal
	Publisher model.StatePublisher
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Logger    *slog.Logger
	Now       func() time.Time
}

// Engine drives one symbol.
type Engine struct {
	cfg Config

	ex     model.Exchange
	strat  strategy.Strategy
	slot   *order.ActiveOrder
	book   *portfolio.Book
	pnl    *portfolio.PnLTracker
	risk   *portfolio.RiskManager
	notify notification.Notifier
	m      *metrics.Metrics
	health *metrics.HealthStatus
	log    *slog.Logger
	now    func() time.Time

	journal   model.FillJournal
	publisher model.StatePublisher

	mu         sync.RWMutex
	lastPrice  float64
	lastCandle time.Time
	lastSignal strategy.Signal
	ambiguous  int

	// order ids already accounted as fills; engine goroutine only
	filled map[int64]struct{}
}

// New validates cfg and wires the engine.
func New(cfg Config, deps Deps) (*Engine, error) {
	if deps.Exchange == nil {
		return nil, errors.New("engine: exchange is required")
	}
	if deps.Strategy == nil {
		return nil, errors.New("engine: strategy is required")
	}
	cfg.Symbol = strings.ToUpper(cfg.Symbol)
	if cfg.Symbol == "" || cfg.Base == "" || cfg.Quote == "" {
		return nil, fmt.Errorf("engine: symbol, base and quote are required (got %q %q %q)", cfg.Symbol, cfg.Base, cfg.Quote)
	}
	if cfg.EquityPct <= 0 {
		cfg.EquityPct = DefaultEquityPct
	}
	if cfg.EquityPct > 100 {
		return nil, fmt.Errorf("engine: equity percent %v above 100", cfg.EquityPct)
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = order.DefaultStaleAfter
	}
	if cfg.ReconcileEvery <= 0 {
		cfg.ReconcileEvery = DefaultReconcileEvery
	}

	e := &Engine{
		cfg:       cfg,
		ex:        deps.Exchange,
		strat:     deps.Strategy,
		slot:      order.New(cfg.Symbol),
		book:      portfolio.NewBook(cfg.Base, cfg.Quote),
		pnl:       portfolio.NewPnLTracker(),
		risk:      portfolio.NewRiskManager(cfg.Risk, 0),
		notify:    deps.Notifier,
		m:         deps.Metrics,
		health:    deps.Health,
		log:       deps.Logger,
		now:       deps.Now,
		journal:   deps.Journal,
		publisher: deps.Publisher,
		filled:    make(map[int64]struct{}),
	}
	if e.notify == nil {
		e.notify = notification.Multi{}
	}
	if e.m == nil {
		e.m = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if e.health == nil {
		e.health = metrics.NewHealthStatus()
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.log = e.log.With(slog.String("symbol", cfg.Symbol), slog.String("strategy", e.strat.Name()))
	e.health.SetTradingEnabled(cfg.TradingEnabled)
	return e, nil
}

// Run drains closed candles and order events until ctx is cancelled or the
// candle channel is closed. A closed events channel only stops event
// handling. Errors from individual events are logged and do not stop the
// loop.
func (e *Engine) Run(ctx context.Context, candles <-chan model.Candle, events <-chan model.OrderEvent) error {
	ticker := time.NewTicker(e.cfg.ReconcileEvery)
	defer ticker.Stop()

	e.log.Info("engine started",
		"trading_enabled", e.cfg.TradingEnabled,
		"equity_pct", e.cfg.EquityPct,
		"stale_after", e.cfg.StaleAfter.String(),
	)
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopping", "reason", ctx.Err())
			return nil
		case c, ok := <-candles:
			if !ok {
				e.log.Info("candle channel closed, engine stopping")
				return nil
			}
			cctx := logger.WithTraceID(ctx, logger.GenerateTraceID(c.Symbol, c.TS))
			if err := e.HandleCandle(cctx, c); err != nil {
				e.log.Error("candle handling failed", append(logger.LogWithTrace(cctx), "error", err)...)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if err := e.HandleOrderEvent(ctx, ev); err != nil {
				e.log.Error("order event handling failed", "client_order_id", ev.ClientOrderID, "error", err)
			}
		case <-ticker.C:
			rctx := logger.WithTraceID(ctx, logger.NewTraceID())
			if err := e.Reconcile(rctx); err != nil {
				e.log.Warn("reconcile failed", append(logger.LogWithTrace(rctx), "error", err)...)
			}
		}
	}
}

// HandleCandle evaluates one closed candle and, when the slot is empty and
// trading is enabled, acts on the signal. Candles for other symbols are
// ignored.
func (e *Engine) HandleCandle(ctx context.Context, c model.Candle) error {
	if c.Symbol != "" && !strings.EqualFold(c.Symbol, e.cfg.Symbol) {
		return nil
	}
	e.m.CandlesTotal.Inc()
	e.m.CandleLag.Set(e.now().Sub(c.TS).Seconds())
	e.health.SetLastCandleTime(c.TS)
	e.mu.Lock()
	e.lastPrice, e.lastCandle = c.Close, c.TS
	e.mu.Unlock()

	sig, err := e.strat.ProcessCandle(c)
	switch {
	case errors.Is(err, model.ErrAmbiguousSignal):
		e.m.AmbiguousSignals.Inc()
		e.mu.Lock()
		e.ambiguous++
		e.mu.Unlock()
		e.log.Warn("ambiguous signal, skipping candle", append(logger.LogWithTrace(ctx), "ts", c.TS, "close", c.Close)...)
		e.alert(ctx, notification.Warnf("ambiguous signal", "long and short both triggered at %s close %.4f", c.TS.UTC().Format(time.RFC3339), c.Close))
		sig = strategy.Signal{}
	case err != nil:
		return fmt.Errorf("strategy %s: %w", e.strat.Name(), err)
	}

	// opportunistic staleness check on every candle
	if err := e.checkSlot(ctx); err != nil {
		e.log.Error("slot check failed", "error", err)
	}

	if sig.IsNone() {
		return nil
	}
	e.m.SignalsTotal.WithLabelValues(sig.Kind.String()).Inc()
	e.mu.Lock()
	e.lastSignal = sig
	e.mu.Unlock()
	e.log.Info("signal", append(logger.LogWithTrace(ctx), "kind", sig.Kind.String(), "price", sig.Price, "ts", sig.TS)...)
	e.publishSignal(ctx, sig)

	if !e.slot.IsEmpty() {
		e.log.Info("entry slot occupied, signal ignored", "state", e.slot.State().String())
		return nil
	}
	if !e.cfg.TradingEnabled {
		e.log.Info("trading disabled, signal not traded")
		return nil
	}
	return e.enter(ctx, sig)
}

// UpdateBalances folds an account balance update into the book. Safe to
// call from the stream goroutine.
func (e *Engine) UpdateBalances(balances []model.Balance) {
	e.book.Update(balances)
}

// Snapshot is the engine state exposed to the inspection API.
type Snapshot struct {
	Symbol         string               `json:"symbol"`
	Strategy       string               `json:"strategy"`
	TradingEnabled bool                 `json:"trading_enabled"`
	LastPrice      float64              `json:"last_price"`
	LastCandle     time.Time            `json:"last_candle"`
	LastSignal     *strategy.Signal     `json:"last_signal,omitempty"`
	Ambiguous      int                  `json:"ambiguous_signals"`
	ActiveOrder    order.Snapshot       `json:"active_order"`
	Assets         portfolio.Assets     `json:"assets"`
	PnL            portfolio.PnLSummary `json:"pnl"`
	Risk           portfolio.RiskStatus `json:"risk"`
	Fills          []portfolio.Fill     `json:"fills,omitempty"`
}

// Snapshot returns a consistent copy of the engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	s := Snapshot{
		Symbol:         e.cfg.Symbol,
		Strategy:       e.strat.Name(),
		TradingEnabled: e.cfg.TradingEnabled,
		LastPrice:      e.lastPrice,
		LastCandle:     e.lastCandle,
		Ambiguous:      e.ambiguous,
	}
	if !e.lastSignal.IsNone() {
		sig := e.lastSignal
		s.LastSignal = &sig
	}
	e.mu.RUnlock()

	s.ActiveOrder = e.slot.Snapshot()
	s.Assets = e.book.Get()
	s.PnL = e.pnl.Summary(s.LastPrice)
	s.Risk = e.risk.Status()
	s.Fills = e.pnl.Fills()
	return s
}

// ActiveOrder returns the entry slot snapshot.
func (e *Engine) ActiveOrder() order.Snapshot { return e.slot.Snapshot() }

func (e *Engine) Symbol() string { return e.cfg.Symbol }

func (e *Engine) publishSignal(ctx context.Context, sig strategy.Signal) {
	if e.publisher == nil {
		return
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}
	if err := e.publisher.PublishSignal(ctx, e.cfg.Symbol, payload); err != nil {
		e.log.Debug("publish signal failed", "error", err)
	}
}

func (e *Engine) publishSlot(ctx context.Context) {
	e.m.ActiveState.Set(float64(e.slot.State()))
	if e.publisher == nil {
		return
	}
	payload, err := json.Marshal(e.slot.Snapshot())
	if err != nil {
		return
	}
	if err := e.publisher.SaveActiveOrder(ctx, e.cfg.Symbol, payload); err != nil {
		e.log.Debug("save active order failed", "error", err)
	}
}

func (e *Engine) alert(ctx context.Context, a notification.Alert) {
	a.Symbol = e.cfg.Symbol
	if err := e.notify.Send(ctx, a); err != nil {
		e.log.Warn("notification failed", "title", a.Title, "error", err)
	}
}

// Publishers sends engine state to every publisher in order and joins the
// errors. Nil entries are skipped.
type Publishers []model.StatePublisher

func (ps Publishers) PublishSignal(ctx context.Context, symbol string, payload []byte) error {
	var errs []error
	for _, p := range ps {
		if p != nil {
			errs = append(errs, p.PublishSignal(ctx, symbol, payload))
		}
	}
	return errors.Join(errs...)
}

func (ps Publishers) SaveActiveOrder(ctx context.Context, symbol string, payload []byte) error {
	var errs []error
	for _, p := range ps {
		if p != nil {
			errs = append(errs, p.SaveActiveOrder(ctx, symbol, payload))
		}
	}
	return errors.Join(errs...)
}
