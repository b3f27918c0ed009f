package portfolio

import (
	"log"
	"sync"

	"github.com/shopspring/decimal"
)

// RiskLimits defines the checks an entry must pass before it is sent.
type RiskLimits struct {
	MinNotional    decimal.Decimal `json:"min_notional"`     // qty*price floor, in quote
	MaxNotional    decimal.Decimal `json:"max_notional"`     // zero disables
	MaxDrawdownPct float64         `json:"max_drawdown_pct"` // realized drawdown from peak equity, zero disables
}

// RiskManager validates entries and tracks realized equity.
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits

	equity     float64
	peakEquity float64
}

// NewRiskManager creates a RiskManager starting at initialEquity (quote).
func NewRiskManager(limits RiskLimits, initialEquity float64) *RiskManager {
	return &RiskManager{limits: limits, equity: initialEquity, peakEquity: initialEquity}
}

// CanTrade checks an order of qty at price. It returns false with a reason
// when a limit would be violated.
func (rm *RiskManager) CanTrade(qty, price decimal.Decimal) (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if !qty.IsPositive() {
		return false, "zero quantity"
	}
	notional := qty.Mul(price)
	if notional.LessThan(rm.limits.MinNotional) {
		return false, "below min notional"
	}
	if rm.limits.MaxNotional.IsPositive() && notional.GreaterThan(rm.limits.MaxNotional) {
		return false, "above max notional"
	}
	if rm.limits.MaxDrawdownPct > 0 && rm.drawdownPct() > rm.limits.MaxDrawdownPct {
		return false, "max drawdown exceeded"
	}
	return true, ""
}

// RecordPnL applies realized P&L to equity.
func (rm *RiskManager) RecordPnL(pnl float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}
	log.Printf("[risk] equity: %.4f, peak: %.4f, drawdown: %.2f%%", rm.equity, rm.peakEquity, rm.drawdownPct())
}

// Rebase restarts equity tracking at equity and clears the peak.
func (rm *RiskManager) Rebase(equity float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.equity, rm.peakEquity = equity, equity
}

func (rm *RiskManager) drawdownPct() float64 {
	if rm.peakEquity <= 0 {
		return 0
	}
	return (rm.peakEquity - rm.equity) / rm.peakEquity * 100
}

// RiskStatus is the current equity view.
type RiskStatus struct {
	Equity      float64    `json:"equity"`
	PeakEquity  float64    `json:"peak_equity"`
	DrawdownPct float64    `json:"drawdown_pct"`
	Limits      RiskLimits `json:"limits"`
}

func (rm *RiskManager) Status() RiskStatus {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return RiskStatus{
		Equity:      rm.equity,
		PeakEquity:  rm.peakEquity,
		DrawdownPct: rm.drawdownPct(),
		Limits:      rm.limits,
	}
}
