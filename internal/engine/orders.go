package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xBreath/binance-engine-sub000/internal/logger"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/notification"
	"github.com/0xBreath/binance-engine-sub000/internal/order"
	"github.com/0xBreath/binance-engine-sub000/internal/portfolio"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
	"github.com/shopspring/decimal"
)

// enter sizes, records and places an entry for sig. A failed placement
// resets the slot and cancels every open order before returning the error.
func (e *Engine) enter(ctx context.Context, sig strategy.Signal) error {
	side, ok := sig.Side()
	if !ok {
		return nil
	}
	if err := e.refreshBalances(ctx); err != nil {
		e.log.Warn("balance refresh failed, sizing from cached balances", "error", err)
	}

	price := portfolio.LimitPrice(sig.Price)
	assets := e.book.Get()
	qty := assets.TradeQty(side, price, e.cfg.EquityPct)
	if ok, reason := e.risk.CanTrade(qty, price); !ok {
		e.log.Info("entry rejected by risk check",
			"reason", reason, "side", side.String(), "qty", qty.String(), "price", price.String(), "assets", assets.String())
		return nil
	}

	intent := e.newIntent(side, model.TagEntry, qty, price)
	if err := e.slot.AddEntry(intent); err != nil {
		return err
	}
	e.publishSlot(ctx)

	ack, err := e.ex.PlaceLimitOrder(ctx, intent)
	if err != nil {
		e.m.OrderFailures.Inc()
		e.log.Error("entry placement failed",
			append(logger.LogWithTrace(ctx), "client_order_id", intent.ClientOrderID.String(), "error", err)...)
		e.alert(ctx, notification.Criticalf("entry failed", "%s %s @ %s: %v", side, qty, price, err))
		if rerr := e.resetAndCancel(ctx, "place_failed"); rerr != nil {
			e.log.Error("compensating cancel-all failed", "error", rerr)
		}
		return fmt.Errorf("place entry %s: %w", intent.ClientOrderID, err)
	}

	e.m.OrdersPlaced.WithLabelValues(strings.ToLower(string(model.TagEntry))).Inc()
	e.log.Info("entry placed", append(logger.LogWithTrace(ctx),
		"client_order_id", ack.ClientOrderID,
		"order_id", ack.OrderID,
		"status", ack.Status,
		"side", side.String(),
		"qty", qty.String(),
		"price", price.String(),
	)...)
	return nil
}

func (e *Engine) newIntent(side model.Side, tag model.OrderTag, qty, price decimal.Decimal) model.OrderIntent {
	now := e.now()
	return model.OrderIntent{
		Symbol:        e.cfg.Symbol,
		ClientOrderID: model.NewClientOrderID(strconv.FormatInt(now.UnixMilli(), 10), tag),
		Side:          side,
		Type:          model.OrderTypeLimit,
		Quantity:      qty,
		LimitPrice:    price,
		SubmittedAt:   now,
	}
}

// HandleOrderEvent applies one exchange order update. Unparseable events
// return the parse error without touching any state. Fills of any role are
// journaled; only the current entry's updates move the slot.
func (e *Engine) HandleOrderEvent(ctx context.Context, ev model.OrderEvent) error {
	if ev.Symbol != "" && !strings.EqualFold(ev.Symbol, e.cfg.Symbol) {
		return nil
	}
	info, err := ev.TradeInfo()
	if err != nil {
		return fmt.Errorf("order event %s: %w", ev.ClientOrderID, err)
	}
	e.log.Debug("order event",
		"client_order_id", ev.ClientOrderID, "status", info.Status.String(), "execution_type", ev.ExecutionType)

	if info.Status == model.StatusFilled {
		e.recordFill(ctx, info)
	}

	if info.ClientOrderID.Tag == model.TagEntry {
		current, ok := e.slot.ClientOrderID()
		if !ok || current != info.ClientOrderID {
			e.log.Info("update for an entry not in the slot, ignored",
				"client_order_id", info.ClientOrderID.String(), "status", info.Status.String())
			return nil
		}
	}
	if !e.slot.UpdateFromEvent(info) {
		return nil
	}
	e.publishSlot(ctx)
	return e.checkSlot(ctx)
}

// maxTrackedFills bounds the fill de-duplication set.
const maxTrackedFills = 1024

// recordFill accounts a fill once per order id. Reconcile and the stream can
// both report the same fill.
func (e *Engine) recordFill(ctx context.Context, info model.TradeInfo) {
	if info.OrderID != 0 {
		if _, seen := e.filled[info.OrderID]; seen {
			return
		}
		if len(e.filled) >= maxTrackedFills {
			e.filled = make(map[int64]struct{})
		}
		e.filled[info.OrderID] = struct{}{}
	}
	e.m.FillsTotal.Inc()
	if e.journal != nil {
		if err := e.journal.RecordFill(info, e.cfg.Symbol); err != nil {
			e.log.Warn("fill journal write failed", "error", err)
		}
	}
	realized := e.pnl.Record(portfolio.FillFromTrade(e.cfg.Symbol, info))
	if realized != 0 {
		e.risk.RecordPnL(realized)
	}
	e.m.RealizedPnL.Set(e.pnl.Summary(0).Realized)
	e.log.Info("fill", "client_order_id", info.ClientOrderID.String(), "side", info.Side.String(),
		"qty", info.Quantity, "price", info.Price, "realized", realized)
	e.alert(ctx, notification.Infof("fill", "%s %s %.4f @ %.4f", info.ClientOrderID, info.Side, info.Quantity, info.Price))
}

// checkSlot resets a filled, stale or closed entry.
func (e *Engine) checkSlot(ctx context.Context) error {
	switch action := e.slot.Check(e.now(), e.cfg.StaleAfter); action {
	case order.ResetFilled:
		return e.resetAndCancel(ctx, action.String())
	case order.ResetStale:
		id, _ := e.slot.ClientOrderID()
		e.alert(ctx, notification.Warnf("stale entry", "%s abandoned after %s", id, e.cfg.StaleAfter))
		return e.resetAndCancel(ctx, action.String())
	}
	// canceled, rejected or expired entries can never fill
	if tr, ok := e.slot.Trade(); ok && tr.Status != model.StatusFilled && !tr.Status.Working() {
		return e.resetAndCancel(ctx, "reset_closed")
	}
	return nil
}

// resetAndCancel empties the slot and cancels every open order for the
// symbol. The slot is cleared even when the cancel fails.
func (e *Engine) resetAndCancel(ctx context.Context, reason string) error {
	id, _ := e.slot.ClientOrderID()
	e.slot.Reset()
	e.m.ResetsTotal.WithLabelValues(reason).Inc()
	e.log.Info("entry slot reset", "reason", reason, "client_order_id", id.String())
	e.publishSlot(ctx)
	return e.cancelAll(ctx)
}

func (e *Engine) cancelAll(ctx context.Context) error {
	e.m.CancelAllTotal.Inc()
	canceled, err := e.ex.CancelAllOpenOrders(ctx, e.cfg.Symbol)
	if err != nil {
		if model.IsBenign(err) {
			return nil
		}
		return fmt.Errorf("cancel all %s: %w", e.cfg.Symbol, err)
	}
	if len(canceled) > 0 {
		e.log.Info("canceled open orders", "count", len(canceled))
	}
	return nil
}

func (e *Engine) refreshBalances(ctx context.Context) error {
	balances, err := e.ex.Balances(ctx)
	e.health.SetExchangeOK(err == nil)
	if err != nil {
		return err
	}
	e.book.Update(balances)
	return nil
}

// Reconcile fetches the slot's order from the exchange, folds in a changed
// status, refreshes balances and re-runs the slot check.
func (e *Engine) Reconcile(ctx context.Context) error {
	e.m.ReconcileRuns.Inc()
	if err := e.refreshBalances(ctx); err != nil {
		e.log.Warn("balance refresh failed", "error", err)
	}

	if id, ok := e.slot.ClientOrderID(); ok {
		fetched, err := e.ex.QueryOrder(ctx, e.cfg.Symbol, id.String())
		switch {
		case model.IsBenign(err):
			e.log.Debug("slot order unknown to the exchange", "client_order_id", id.String())
		case err != nil:
			return fmt.Errorf("query %s: %w", id, err)
		default:
			info, err := fetched.TradeInfo()
			if err != nil {
				return fmt.Errorf("query %s: %w", id, err)
			}
			// filled slots are reset on the event, so a fill seen here was missed by the stream
			if info.Status == model.StatusFilled {
				e.recordFill(ctx, info)
			}
			if e.slot.Reconcile(info) {
				e.publishSlot(ctx)
			}
		}
	}
	return e.checkSlot(ctx)
}
