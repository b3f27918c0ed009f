// Package paper simulates a spot exchange in memory.
//
// Exchange implements model.Exchange without real venue calls: balances are
// locked on placement, limit orders fill either immediately or when a later
// candle trades through the limit, and every status change is emitted as a
// model.OrderEvent on Events(), shaped like a Binance executionReport.
package paper

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/shopspring/decimal"
)

// FillMode controls when resting orders execute.
type FillMode int

const (
	// FillImmediate fills every order at its limit as soon as it is placed.
	FillImmediate FillMode = iota
	// FillOnCandle fills orders when OnCandle sees a bar trade through the limit.
	FillOnCandle
)

// Config configures a paper exchange.
type Config struct {
	Base        string
	Quote       string
	Mode        FillMode
	SlippageBps int64 // basis points, applied against the taker
	EventBuffer int
	Now         func() time.Time
}

type paperOrder struct {
	order model.ExchangeOrder
	side  model.Side
	qty   decimal.Decimal
	price decimal.Decimal
}

// Exchange is an in-memory exchange for one spot pair.
type Exchange struct {
	mu       sync.Mutex
	cfg      Config
	free     map[string]decimal.Decimal
	locked   map[string]decimal.Decimal
	orders   map[int64]*paperOrder
	orderSeq int64
	events   chan model.OrderEvent
	failNext error

	cancelAllCalls int
	placed         int
}

var _ model.Exchange = (*Exchange)(nil)

// New creates a paper exchange with starting free balances.
func New(cfg Config, balances map[string]decimal.Decimal) *Exchange {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 64
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	free := make(map[string]decimal.Decimal, len(balances))
	for k, v := range balances {
		free[strings.ToUpper(k)] = v
	}
	return &Exchange{
		cfg:    cfg,
		free:   free,
		locked: make(map[string]decimal.Decimal),
		orders: make(map[int64]*paperOrder),
		events: make(chan model.OrderEvent, cfg.EventBuffer),
	}
}

// Events returns the channel of simulated order updates.
func (p *Exchange) Events() <-chan model.OrderEvent { return p.events }

// FailNext makes the next PlaceLimitOrder return err.
func (p *Exchange) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

// CancelAllCalls reports how many times CancelAllOpenOrders ran.
func (p *Exchange) CancelAllCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelAllCalls
}

// Placed reports how many orders were accepted.
func (p *Exchange) Placed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.placed
}

func (p *Exchange) PlaceLimitOrder(ctx context.Context, in model.OrderIntent) (model.OrderAck, error) {
	if err := ctx.Err(); err != nil {
		return model.OrderAck{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failNext; err != nil {
		p.failNext = nil
		return model.OrderAck{}, err
	}
	if !in.Quantity.IsPositive() || !in.LimitPrice.IsPositive() {
		return model.OrderAck{}, &model.ExchangeError{Code: -1013, Msg: "Filter failure: LOT_SIZE"}
	}

	asset, amount := p.cfg.Quote, in.Quantity.Mul(in.LimitPrice)
	if in.Side == model.SideShort {
		asset, amount = p.cfg.Base, in.Quantity
	}
	if p.free[asset].LessThan(amount) {
		return model.OrderAck{}, &model.ExchangeError{Code: -2010, Msg: "Account has insufficient balance for requested action."}
	}
	p.free[asset] = p.free[asset].Sub(amount)
	p.locked[asset] = p.locked[asset].Add(amount)

	p.orderSeq++
	now := p.cfg.Now()
	o := &paperOrder{
		order: model.ExchangeOrder{
			Symbol:        in.Symbol,
			ClientOrderID: in.ClientOrderID.String(),
			OrderID:       p.orderSeq,
			Type:          in.Type.String(),
			Status:        model.StatusNew.String(),
			Side:          in.Side.Binance(),
			Price:         in.LimitPrice.String(),
			OrigQty:       in.Quantity.String(),
			ExecutedQty:   "0",
			UpdateTime:    now.UnixMilli(),
		},
		side:  in.Side,
		qty:   in.Quantity,
		price: in.LimitPrice,
	}
	p.orders[o.order.OrderID] = o
	p.placed++
	log.Printf("[paper] %s %s %s qty=%s price=%s order=%d",
		in.Side.Binance(), in.Symbol, in.ClientOrderID, in.Quantity, in.LimitPrice, o.order.OrderID)

	p.emit(o, "NEW")
	if p.cfg.Mode == FillImmediate {
		p.fill(o, o.price)
	}
	return model.OrderAck{Symbol: in.Symbol, OrderID: o.order.OrderID, ClientOrderID: o.order.ClientOrderID, Status: o.order.Status}, nil
}

// OnCandle fills resting orders the bar traded through.
func (p *Exchange) OnCandle(c model.Candle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range p.workingIDs() {
		o := p.orders[id]
		limit := o.price.InexactFloat64()
		if (o.side == model.SideLong && c.Low <= limit) || (o.side == model.SideShort && c.High >= limit) {
			p.fill(o, o.price)
		}
	}
}

// fill executes o at px with slippage. Caller holds p.mu.
func (p *Exchange) fill(o *paperOrder, px decimal.Decimal) {
	slip := px.Mul(decimal.NewFromInt(p.cfg.SlippageBps)).Div(decimal.NewFromInt(10000))
	if o.side == model.SideLong {
		px = px.Add(slip)
		lockedQuote := o.qty.Mul(o.price)
		p.locked[p.cfg.Quote] = p.locked[p.cfg.Quote].Sub(lockedQuote)
		// refund any difference between the locked limit and the fill
		p.free[p.cfg.Quote] = p.free[p.cfg.Quote].Add(lockedQuote).Sub(o.qty.Mul(px))
		p.free[p.cfg.Base] = p.free[p.cfg.Base].Add(o.qty)
	} else {
		px = px.Sub(slip)
		p.locked[p.cfg.Base] = p.locked[p.cfg.Base].Sub(o.qty)
		p.free[p.cfg.Quote] = p.free[p.cfg.Quote].Add(o.qty.Mul(px))
	}
	o.order.Status = model.StatusFilled.String()
	o.order.ExecutedQty = o.qty.String()
	o.order.Price = px.String()
	o.order.UpdateTime = p.cfg.Now().UnixMilli()
	p.emit(o, "TRADE")
}

// emit queues an event without blocking. Caller holds p.mu.
func (p *Exchange) emit(o *paperOrder, execType string) {
	ev := model.OrderEvent{
		Symbol:        o.order.Symbol,
		ClientOrderID: o.order.ClientOrderID,
		OrderID:       o.order.OrderID,
		OrderType:     o.order.Type,
		Status:        o.order.Status,
		ExecutionType: execType,
		EventTime:     o.order.UpdateTime,
		Price:         o.order.Price,
		Quantity:      o.order.OrigQty,
		Side:          o.order.Side,
	}
	select {
	case p.events <- ev:
	default:
		log.Printf("[paper] event channel full, dropping %s %s", ev.ClientOrderID, ev.Status)
	}
}

func (p *Exchange) workingIDs() []int64 {
	ids := make([]int64, 0, len(p.orders))
	for id, o := range p.orders {
		if st, _ := model.ParseOrderStatus(o.order.Status); st.Working() {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (p *Exchange) cancel(o *paperOrder) model.CanceledOrder {
	if o.side == model.SideLong {
		amt := o.qty.Mul(o.price)
		p.locked[p.cfg.Quote] = p.locked[p.cfg.Quote].Sub(amt)
		p.free[p.cfg.Quote] = p.free[p.cfg.Quote].Add(amt)
	} else {
		p.locked[p.cfg.Base] = p.locked[p.cfg.Base].Sub(o.qty)
		p.free[p.cfg.Base] = p.free[p.cfg.Base].Add(o.qty)
	}
	o.order.Status = model.StatusCanceled.String()
	o.order.UpdateTime = p.cfg.Now().UnixMilli()
	p.emit(o, "CANCELED")
	return model.CanceledOrder{Symbol: o.order.Symbol, OrderID: o.order.OrderID, ClientOrderID: o.order.ClientOrderID, Status: o.order.Status}
}

func (p *Exchange) CancelAllOpenOrders(ctx context.Context, symbol string) ([]model.CanceledOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelAllCalls++
	out := []model.CanceledOrder{}
	for _, id := range p.workingIDs() {
		if o := p.orders[id]; o.order.Symbol == symbol {
			out = append(out, p.cancel(o))
		}
	}
	return out, nil
}

func (p *Exchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (model.CanceledOrder, error) {
	if err := ctx.Err(); err != nil {
		return model.CanceledOrder{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok || o.order.Symbol != symbol {
		return model.CanceledOrder{}, nil
	}
	if st, _ := model.ParseOrderStatus(o.order.Status); !st.Working() {
		return model.CanceledOrder{}, nil
	}
	return p.cancel(o), nil
}

func (p *Exchange) OpenOrders(ctx context.Context, symbol string) ([]model.ExchangeOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []model.ExchangeOrder
	for _, id := range p.workingIDs() {
		if o := p.orders[id]; o.order.Symbol == symbol {
			out = append(out, o.order)
		}
	}
	return out, nil
}

func (p *Exchange) QueryOrder(ctx context.Context, symbol, clientOrderID string) (model.ExchangeOrder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.orders {
		if o.order.Symbol == symbol && o.order.ClientOrderID == clientOrderID {
			return o.order, nil
		}
	}
	return model.ExchangeOrder{}, &model.ExchangeError{Code: model.CodeNoSuchOrder, Msg: "Order does not exist."}
}

func (p *Exchange) Balances(ctx context.Context) ([]model.Balance, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	assets := make(map[string]struct{})
	for a := range p.free {
		assets[a] = struct{}{}
	}
	for a := range p.locked {
		assets[a] = struct{}{}
	}
	out := make([]model.Balance, 0, len(assets))
	for a := range assets {
		out = append(out, model.Balance{Asset: a, Free: p.free[a], Locked: p.locked[a]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out, nil
}

// Price returns the last filled price, for equalisation in paper runs.
func (p *Exchange) Price(ctx context.Context, symbol string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var last *paperOrder
	for _, o := range p.orders {
		if o.order.Symbol == symbol && (last == nil || o.order.OrderID > last.order.OrderID) {
			last = o
		}
	}
	if last == nil {
		return 0, fmt.Errorf("paper: no price for %s", symbol)
	}
	return strconv.ParseFloat(last.order.Price, 64)
}
