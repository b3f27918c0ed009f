package backtest

import (
	"math"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// Summary holds the statistics of a run. Series are sampled at each entry.
type Summary struct {
	CumPct      []Point `json:"cum_pct"`
	CumQuote    []Point `json:"cum_quote"`
	PctPerTrade []Point `json:"pct_per_trade"`

	Trades         int     `json:"trades"`
	Pairs          int     `json:"pairs"`
	WinRate        float64 `json:"win_rate"`
	AvgTradeSize   float64 `json:"avg_trade_size"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	TotalReturnPct float64 `json:"total_return_pct"`
	FinalCapital   float64 `json:"final_capital"`
	AvgTradePct    float64 `json:"avg_trade_pct"`
	BestTradePct   float64 `json:"best_trade_pct"`
	WorstTradePct  float64 `json:"worst_trade_pct"`
	BuyHoldPct     float64 `json:"buy_hold_pct"`
}

// Summarize computes statistics over consecutive (entry, exit) pairs:
// trades[0..1], trades[2..3] and so on. A trailing unmatched entry is an
// open position and is excluded from the pair statistics, as is any pair
// whose entry price is not positive.
func Summarize(trades []Trade, cfg Config) Summary {
	s := Summary{Trades: len(trades)}
	initial := cfg.Capital
	capital := initial
	quote := 0.0
	wins := 0

	for i := 0; i+1 < len(trades); i += 2 {
		entry, exit := trades[i], trades[i+1]
		if entry.Price <= 0 {
			continue
		}
		factor := 1.0
		if entry.Side == model.SideShort {
			factor = -1
		}
		pct := (exit.Price - entry.Price) / entry.Price * factor * 100
		notional := entry.Price * entry.Quantity
		pnl := pct/100*notional - notional*cfg.FeePct/100

		capital += pnl
		quote += pnl
		if pnl > 0 {
			wins++
		}

		s.CumQuote = append(s.CumQuote, Point{TS: entry.TS, Value: quote})
		s.CumPct = append(s.CumPct, Point{TS: entry.TS, Value: returnPct(capital, initial)})
		s.PctPerTrade = append(s.PctPerTrade, Point{TS: entry.TS, Value: pct})
	}

	s.Pairs = len(s.PctPerTrade)
	s.FinalCapital = capital
	s.TotalReturnPct = returnPct(capital, initial)
	if s.Pairs > 0 {
		s.WinRate = float64(wins) / float64(s.Pairs) * 100
	}
	s.MaxDrawdown = MaxDrawdown(s.CumPct)
	s.AvgTradeSize = avgTradeSize(trades)
	s.AvgTradePct, s.BestTradePct, s.WorstTradePct = tradeStats(s.PctPerTrade)
	return s
}

// MaxDrawdown returns the most negative (value - running max) over series,
// with the running max starting at the first sample. Zero for an empty or
// never-declining series.
func MaxDrawdown(series []Point) float64 {
	if len(series) == 0 {
		return 0
	}
	peak := series[0].Value
	dd := 0.0
	for _, p := range series {
		if p.Value > peak {
			peak = p.Value
		}
		if d := p.Value - peak; d < dd {
			dd = d
		}
	}
	return dd
}

func returnPct(capital, initial float64) float64 {
	if initial <= 0 {
		return 0
	}
	return capital/initial*100 - 100
}

func avgTradeSize(trades []Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range trades {
		sum += t.Price * t.Quantity
	}
	return sum / float64(len(trades))
}

func tradeStats(pcts []Point) (avg, best, worst float64) {
	if len(pcts) == 0 {
		return 0, 0, 0
	}
	best, worst = math.Inf(-1), math.Inf(1)
	for _, p := range pcts {
		avg += p.Value
		best = math.Max(best, p.Value)
		worst = math.Min(worst, p.Value)
	}
	return avg / float64(len(pcts)), best, worst
}
