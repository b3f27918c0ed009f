package portfolio

import (
	"sync"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// Fill is an executed entry recorded for P&L.
type Fill struct {
	Symbol    string     `json:"symbol"`
	Side      model.Side `json:"side"`
	Qty       float64    `json:"qty"`
	Price     float64    `json:"price"`
	Timestamp time.Time  `json:"timestamp"`
}

// FillFromTrade converts confirmed trade info into a Fill.
func FillFromTrade(symbol string, info model.TradeInfo) Fill {
	return Fill{Symbol: symbol, Side: info.Side, Qty: info.Quantity, Price: info.Price, Timestamp: info.EventTime}
}

// PnLTracker tracks realized and unrealized P&L of the base asset inventory
// bought and sold by the engine, in quote units.
type PnLTracker struct {
	mu    sync.RWMutex
	fills []Fill

	realized float64
	qty      float64
	avgPrice float64
}

func NewPnLTracker() *PnLTracker {
	return &PnLTracker{fills: make([]Fill, 0, 256)}
}

// Record adds a fill and returns the P&L it realized.
func (p *PnLTracker) Record(f Fill) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.fills = append(p.fills, f)

	if f.Side == model.SideLong {
		total := p.avgPrice*p.qty + f.Price*f.Qty
		p.qty += f.Qty
		if p.qty > 0 {
			p.avgPrice = total / p.qty
		}
		return 0
	}

	// selling more than was bought here realizes only the tracked part
	sellQty := f.Qty
	if sellQty > p.qty {
		sellQty = p.qty
	}
	realized := (f.Price - p.avgPrice) * sellQty
	p.qty -= sellQty
	if p.qty <= 0 {
		p.qty, p.avgPrice = 0, 0
	}
	p.realized += realized
	return realized
}

// PnLSummary is a point-in-time view.
type PnLSummary struct {
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	Total      float64 `json:"total"`
	Fills      int     `json:"fills"`
	OpenQty    float64 `json:"open_qty"`
	AvgPrice   float64 `json:"avg_price"`
}

// Summary marks the open inventory at lastPrice.
func (p *PnLTracker) Summary(lastPrice float64) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var unrealized float64
	if p.qty > 0 && lastPrice > 0 {
		unrealized = (lastPrice - p.avgPrice) * p.qty
	}
	return PnLSummary{
		Realized:   p.realized,
		Unrealized: unrealized,
		Total:      p.realized + unrealized,
		Fills:      len(p.fills),
		OpenQty:    p.qty,
		AvgPrice:   p.avgPrice,
	}
}

// Fills returns a copy of every recorded fill.
func (p *PnLTracker) Fills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}
