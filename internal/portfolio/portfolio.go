// Package portfolio tracks the two balances a spot pair trades between,
// sizes new orders from them, and accounts realized P&L on fills.
package portfolio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/shopspring/decimal"
)

// QtyDecimals and PriceDecimals are the step sizes orders are truncated to.
const (
	QtyDecimals   = 2
	PriceDecimals = 2
)

// Assets holds free and locked balances for the base and quote asset.
type Assets struct {
	Base        string          `json:"base"`
	Quote       string          `json:"quote"`
	FreeBase    decimal.Decimal `json:"free_base"`
	LockedBase  decimal.Decimal `json:"locked_base"`
	FreeQuote   decimal.Decimal `json:"free_quote"`
	LockedQuote decimal.Decimal `json:"locked_quote"`
}

// FromBalances picks base and quote out of an account balance list. Missing
// assets count as zero.
func FromBalances(balances []model.Balance, base, quote string) Assets {
	a := Assets{Base: base, Quote: quote}
	for _, b := range balances {
		switch {
		case strings.EqualFold(b.Asset, base):
			a.FreeBase, a.LockedBase = b.Free, b.Locked
		case strings.EqualFold(b.Asset, quote):
			a.FreeQuote, a.LockedQuote = b.Free, b.Locked
		}
	}
	return a
}

func (a Assets) String() string {
	return fmt.Sprintf("%s free=%s locked=%s | %s free=%s locked=%s",
		a.Quote, a.FreeQuote, a.LockedQuote, a.Base, a.FreeBase, a.LockedBase)
}

// TradeQty sizes an entry at price. Long spends equityPct of free quote,
// short sells equityPct of free base. The result is truncated to
// QtyDecimals.
func (a Assets) TradeQty(side model.Side, price decimal.Decimal, equityPct float64) decimal.Decimal {
	frac := decimal.NewFromFloat(equityPct).Div(decimal.NewFromInt(100))
	var qty decimal.Decimal
	switch side {
	case model.SideLong:
		if price.Sign() <= 0 {
			return decimal.Zero
		}
		qty = a.FreeQuote.Div(price).Mul(frac)
	case model.SideShort:
		qty = a.FreeBase.Mul(frac)
	}
	return qty.Truncate(QtyDecimals)
}

// LimitPrice truncates a price to PriceDecimals.
func LimitPrice(price float64) decimal.Decimal {
	return decimal.NewFromFloat(price).Truncate(PriceDecimals)
}

// Rebalance is one order that moves the pair towards a 50/50 split.
type Rebalance struct {
	Tag  model.OrderTag
	Side model.Side
	Qty  decimal.Decimal
}

// EqualizePlan returns the orders that bring base and quote to equal value
// at price. Legs whose base quantity does not exceed minQty are skipped.
func (a Assets) EqualizePlan(price decimal.Decimal, minQty decimal.Decimal) []Rebalance {
	if price.Sign() <= 0 {
		return nil
	}
	quoteInBase := a.FreeQuote.Div(price)
	equal := quoteInBase.Add(a.FreeBase).Div(decimal.NewFromInt(2)).Truncate(QtyDecimals)

	var plan []Rebalance
	if diff := quoteInBase.Sub(equal).Truncate(QtyDecimals); diff.IsPositive() && diff.GreaterThan(minQty) {
		plan = append(plan, Rebalance{Tag: model.TagEqualizeQuote, Side: model.SideLong, Qty: diff})
	}
	if diff := a.FreeBase.Sub(equal).Truncate(QtyDecimals); diff.IsPositive() && diff.GreaterThan(minQty) {
		plan = append(plan, Rebalance{Tag: model.TagEqualizeBase, Side: model.SideShort, Qty: diff})
	}
	return plan
}

// Book is the concurrency-safe latest view of Assets.
type Book struct {
	mu     sync.RWMutex
	assets Assets
}

func NewBook(base, quote string) *Book {
	return &Book{assets: Assets{Base: base, Quote: quote}}
}

// Update replaces the balances from an account snapshot or balance event.
func (b *Book) Update(balances []model.Balance) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := FromBalances(balances, b.assets.Base, b.assets.Quote)
	// partial updates only carry the assets that moved
	if !hasAsset(balances, b.assets.Base) {
		next.FreeBase, next.LockedBase = b.assets.FreeBase, b.assets.LockedBase
	}
	if !hasAsset(balances, b.assets.Quote) {
		next.FreeQuote, next.LockedQuote = b.assets.FreeQuote, b.assets.LockedQuote
	}
	b.assets = next
}

func (b *Book) Get() Assets {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.assets
}

func hasAsset(balances []model.Balance, asset string) bool {
	for _, bal := range balances {
		if strings.EqualFold(bal.Asset, asset) {
			return true
		}
	}
	return false
}
