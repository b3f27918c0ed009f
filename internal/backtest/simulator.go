// Package backtest replays a strategy over historical candles with a
// long-or-flat position and summarises the resulting trades.
package backtest

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/strategy"
)

// Trade is one simulated fill. Capital is the account value after the trade.
type Trade struct {
	TS       time.Time  `json:"ts"`
	Side     model.Side `json:"side"`
	Quantity float64    `json:"quantity"`
	Price    float64    `json:"price"`
	Capital  float64    `json:"capital"`
}

// Point is one sample of a time series.
type Point struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}

// Config configures a run.
type Config struct {
	Capital     float64 // starting quote capital
	FeePct      float64 // percent of entry notional charged per round trip
	StopLossPct float64 // exit a long once the low falls this far below entry; 0 disables
}

// Result is the output of Run.
type Result struct {
	Trades     []Trade `json:"trades"`
	Equity     []Point `json:"equity"` // mark-to-market capital per candle
	Summary    Summary `json:"summary"`
	Candles    int     `json:"candles"`
	Ambiguous  int     `json:"ambiguous"`
	StopLosses int     `json:"stop_losses"`
}

type position struct {
	open  bool
	qty   float64
	entry float64
}

// stopPrice is the exit price of a long entered at entry, or 0 when the stop
// is disabled.
func (c Config) stopPrice(entry float64) float64 {
	if c.StopLossPct <= 0 {
		return 0
	}
	return entry * (1 - c.StopLossPct/100)
}

// Run drives strat over candles in order. A Long signal opens a position of
// capital/price units when flat; a Short signal closes an open long and sets
// capital to qty*price. Short signals while flat and repeated Longs are
// ignored, as are signals with a non-positive price. Ambiguous signals are
// logged, counted and treated as None; any other strategy error aborts the
// run.
//
// With a stop loss, an open long whose candle low falls more than
// StopLossPct below entry is closed at the stop price before the candle
// reaches the strategy.
func Run(strat strategy.Strategy, candles []model.Candle, cfg Config) (Result, error) {
	if cfg.Capital <= 0 {
		return Result{}, fmt.Errorf("backtest: capital must be positive, got %v", cfg.Capital)
	}
	if cfg.StopLossPct < 0 {
		return Result{}, fmt.Errorf("backtest: stop loss must not be negative, got %v", cfg.StopLossPct)
	}

	res := Result{Candles: len(candles), Equity: make([]Point, 0, len(candles))}
	capital := cfg.Capital
	var pos position

	for _, c := range candles {
		if stop := cfg.stopPrice(pos.entry); pos.open && stop > 0 && c.Low < stop {
			capital = pos.qty * stop
			res.Trades = append(res.Trades, Trade{TS: c.TS, Side: model.SideShort, Quantity: pos.qty, Price: stop, Capital: capital})
			res.StopLosses++
			pos = position{}
		}

		sig, err := strat.ProcessCandle(c)
		if err != nil {
			if !errors.Is(err, model.ErrAmbiguousSignal) {
				return res, fmt.Errorf("backtest: %s at %s: %w", strat.Name(), c.TS.Format(time.RFC3339), err)
			}
			log.Printf("[backtest] %v", err)
			res.Ambiguous++
			sig = strategy.Signal{}
		}

		if sig.Kind != strategy.None && sig.Price <= 0 {
			log.Printf("[backtest] %s signal at %s has price %v, skipped", sig.Kind, c.TS.Format(time.RFC3339), sig.Price)
			sig = strategy.Signal{}
		}

		switch sig.Kind {
		case strategy.Long:
			if !pos.open {
				pos = position{open: true, qty: capital / sig.Price, entry: sig.Price}
				res.Trades = append(res.Trades, Trade{TS: sig.TS, Side: model.SideLong, Quantity: pos.qty, Price: sig.Price, Capital: capital})
			}
		case strategy.Short:
			if pos.open {
				capital = pos.qty * sig.Price
				res.Trades = append(res.Trades, Trade{TS: sig.TS, Side: model.SideShort, Quantity: pos.qty, Price: sig.Price, Capital: capital})
				pos = position{}
			}
		}

		mark := capital
		if pos.open {
			mark = pos.qty * c.Close
		}
		res.Equity = append(res.Equity, Point{TS: c.TS, Value: mark})
	}

	res.Summary = Summarize(res.Trades, cfg)
	if len(candles) > 1 {
		first, last := candles[0].Close, candles[len(candles)-1].Close
		if first != 0 {
			res.Summary.BuyHoldPct = (last - first) / first * 100
		}
	}
	return res, nil
}
