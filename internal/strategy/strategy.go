// Package strategy turns closed candles into trading signals.
//
// A Strategy owns whatever rolling state it needs (candle window, Kagi line,
// moving averages) and is fed one closed candle at a time by a single
// goroutine. Two variants exist: Dreamrunner (WMA crossing a Kagi reversal
// line) and Crossover (fast WMA crossing slow WMA).
package strategy

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// Kind is the direction of a signal.
type Kind int

const (
	None Kind = iota
	Long
	Short
)

func (k Kind) String() string {
	switch k {
	case Long:
		return "long"
	case Short:
		return "short"
	}
	return "none"
}

// Signal is emitted once per evaluated candle. Price and TS are the closing
// price and timestamp of the candle that produced it.
type Signal struct {
	Kind   Kind      `json:"kind"`
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	TS     time.Time `json:"ts"`
}

// IsNone reports whether the signal carries no action.
func (s Signal) IsNone() bool { return s.Kind == None }

// Side maps Long/Short onto an order side. It returns false for None.
func (s Signal) Side() (model.Side, bool) {
	switch s.Kind {
	case Long:
		return model.SideLong, true
	case Short:
		return model.SideShort, true
	}
	return 0, false
}

func (s Signal) String() string {
	if s.IsNone() {
		return "signal{none}"
	}
	return fmt.Sprintf("signal{%s %s @ %.4f %s}", s.Kind, s.Symbol, s.Price, s.TS.UTC().Format(time.RFC3339))
}

func signalAt(kind Kind, c model.Candle) Signal {
	return Signal{Kind: kind, Symbol: c.Symbol, Price: c.Close, TS: c.TS}
}

// Strategy is the interface every signal generator implements.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// ProcessCandle feeds one closed candle and evaluates it. A None signal
	// with nil error means nothing to do (including warm-up).
	ProcessCandle(c model.Candle) (Signal, error)

	// Warmup returns how many candles are needed before signals can fire.
	Warmup() int
}

// Config selects and parameterises a strategy.
type Config struct {
	Name       string // "dreamrunner" or "crossover"
	Symbol     string
	Reversal   float64
	Period     int
	KagiMode   indicator.KagiMode
	KagiSource model.Source
	MASource   model.Source
	FastPeriod int
	SlowPeriod int

	StopLossPct float64 // backtest stop loss, percent below entry; 0 disables
}

// New builds the strategy named by cfg.Name.
func New(cfg Config) (Strategy, error) {
	switch strings.ToLower(cfg.Name) {
	case "", "dreamrunner", "kagi":
		if cfg.Period < 2 {
			return nil, fmt.Errorf("strategy: dreamrunner period must be >= 2, got %d", cfg.Period)
		}
		if cfg.Reversal < 0 {
			return nil, fmt.Errorf("strategy: negative kagi reversal %v", cfg.Reversal)
		}
		return NewDreamrunner(cfg.Symbol, Params{
			Reversal:   cfg.Reversal,
			Period:     cfg.Period,
			Mode:       cfg.KagiMode,
			KagiSource: cfg.KagiSource,
			MASource:   cfg.MASource,
		}), nil
	case "crossover", "wma_crossover":
		if cfg.FastPeriod < 1 || cfg.SlowPeriod <= cfg.FastPeriod {
			return nil, fmt.Errorf("strategy: crossover needs 1 <= fast < slow, got %d/%d", cfg.FastPeriod, cfg.SlowPeriod)
		}
		return NewCrossover(cfg.FastPeriod, cfg.SlowPeriod, cfg.MASource), nil
	}
	return nil, fmt.Errorf("strategy: unknown strategy %q", cfg.Name)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }
