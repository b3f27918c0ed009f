package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/notification"
	"github.com/0xBreath/binance-engine-sub000/internal/portfolio"
)

// Start prepares the engine before Run: history warms the strategy without
// trading, every open order for the symbol is canceled, balances are
// loaded and risk equity is set from them. With Equalize on, base and quote
// are then rebalanced to equal value at the last price.
func (e *Engine) Start(ctx context.Context, history []model.Candle) error {
	warmed := e.Warm(history)

	if err := e.cancelAll(ctx); err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	if err := e.refreshBalances(ctx); err != nil {
		return fmt.Errorf("startup balances: %w", err)
	}

	assets := e.book.Get()
	price := e.lastClose()
	equity := assets.FreeQuote.Add(assets.LockedQuote).
		Add(assets.FreeBase.Add(assets.LockedBase).Mul(portfolio.LimitPrice(price)))
	e.risk.Rebase(equity.InexactFloat64())
	e.log.Info("engine ready",
		"warmup_candles", warmed,
		"assets", assets.String(),
		"equity", equity.StringFixed(2),
	)

	if e.cfg.Equalize && e.cfg.TradingEnabled {
		if price <= 0 {
			e.log.Warn("no price known, skipping equalize")
			return nil
		}
		return e.equalize(ctx, price)
	}
	return nil
}

// Warm feeds history through the strategy and discards its signals. It
// returns how many candles were consumed.
func (e *Engine) Warm(history []model.Candle) int {
	n := 0
	for _, c := range history {
		if c.Symbol != "" && !strings.EqualFold(c.Symbol, e.cfg.Symbol) {
			continue
		}
		if _, err := e.strat.ProcessCandle(c); err != nil && !errors.Is(err, model.ErrAmbiguousSignal) {
			e.log.Warn("warm-up candle rejected", "ts", c.TS, "error", err)
			continue
		}
		e.mu.Lock()
		e.lastPrice, e.lastCandle = c.Close, c.TS
		e.mu.Unlock()
		n++
	}
	return n
}

// equalize places the rebalance orders that bring base and quote to a
// 50/50 split. Failed legs are reported and skipped.
func (e *Engine) equalize(ctx context.Context, price float64) error {
	limit := portfolio.LimitPrice(price)
	plan := e.book.Get().EqualizePlan(limit, e.cfg.MinEqualizeQty)
	if len(plan) == 0 {
		e.log.Info("assets already balanced")
		return nil
	}

	var errs []error
	for _, leg := range plan {
		intent := e.newIntent(leg.Side, leg.Tag, leg.Qty, limit)
		ack, err := e.ex.PlaceLimitOrder(ctx, intent)
		if err != nil {
			e.m.OrderFailures.Inc()
			e.alert(ctx, notification.Warnf("equalize failed", "%s %s %s @ %s: %v", leg.Tag, leg.Side, leg.Qty, limit, err))
			errs = append(errs, fmt.Errorf("equalize %s: %w", leg.Tag, err))
			continue
		}
		e.m.OrdersPlaced.WithLabelValues(strings.ToLower(string(leg.Tag))).Inc()
		e.log.Info("equalize order placed",
			"client_order_id", ack.ClientOrderID, "side", leg.Side.String(), "qty", leg.Qty.String(), "price", limit.String())
	}
	return errors.Join(errs...)
}

func (e *Engine) lastClose() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice
}
