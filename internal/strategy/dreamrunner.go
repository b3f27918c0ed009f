package strategy

import (
	"fmt"
	"log"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/ringbuf"
)

// Params configures a Dreamrunner.
type Params struct {
	Reversal   float64
	Period     int
	Mode       indicator.KagiMode
	KagiSource model.Source
	MASource   model.Source

	// StopLossPct is the tuned backtest stop for the symbol; the detector
	// itself ignores it.
	StopLossPct float64
}

// Dreamrunner signals when the WMA of the last Period candles crosses the
// Kagi reversal line.
//
// Long: the WMA is above the new line now and was not above the previous
// line one bar ago. Short is the mirror image.
type Dreamrunner struct {
	symbol string
	params Params
	window *ringbuf.Window[model.Candle]
	kagi   *indicator.KagiTracker
	logf   func(format string, args ...any)
}

// NewDreamrunner creates a detector with a window of Period+1 candles.
func NewDreamrunner(symbol string, p Params) *Dreamrunner {
	return &Dreamrunner{
		symbol: symbol,
		params: p,
		window: ringbuf.New[model.Candle](p.Period + 1),
		kagi:   indicator.NewKagiTracker(p.Reversal, p.Mode, p.KagiSource),
		logf:   log.Printf,
	}
}

// SetLogf replaces the warm-up logger; nil silences it.
func (d *Dreamrunner) SetLogf(f func(format string, args ...any)) {
	if f == nil {
		f = func(string, ...any) {}
	}
	d.logf = f
}

func (d *Dreamrunner) Name() string { return "dreamrunner" }
func (d *Dreamrunner) Warmup() int  { return d.window.Cap() }

// Params returns the configuration.
func (d *Dreamrunner) Params() Params { return d.params }

// Kagi returns the committed Kagi state.
func (d *Dreamrunner) Kagi() indicator.Kagi { return d.kagi.State() }

// Window exposes the candle window, newest first.
func (d *Dreamrunner) Window() *ringbuf.Window[model.Candle] { return d.window }

// SeedKagi installs an externally supplied Kagi state.
func (d *Dreamrunner) SeedKagi(k indicator.Kagi) { d.kagi.SeedState(k) }

// ProcessCandle pushes c into the window and evaluates it. The very first
// candle seeds the Kagi line at its low, pointing down.
func (d *Dreamrunner) ProcessCandle(c model.Candle) (Signal, error) {
	if !d.kagi.Seeded() {
		d.kagi.Seed(c)
	}
	d.window.Push(c)
	return d.Evaluate()
}

// Evaluate computes the signal for the newest candle in the window. The Kagi
// update is committed before the crossing test, so it stays committed even
// when the result is ErrAmbiguousSignal.
func (d *Dreamrunner) Evaluate() (Signal, error) {
	n := d.window.Len()
	if n < 3 {
		d.logf("[dreamrunner] %s: insufficient candles for kagi (%d)", d.symbol, n)
		return Signal{}, nil
	}
	if n < d.window.Cap() {
		d.logf("[dreamrunner] %s: insufficient candles for wma (%d/%d)", d.symbol, n, d.window.Cap())
		return Signal{}, nil
	}

	c0 := d.window.At(0)
	k1 := d.kagi.State()
	k0 := d.kagi.Next(c0)
	d.kagi.Commit(k0)

	wma0, err := indicator.WMA(d.window.Slice(0, n-1), d.params.MASource)
	if err != nil {
		return Signal{}, fmt.Errorf("dreamrunner: current wma: %w", err)
	}
	wma1, err := indicator.WMA(d.window.Slice(1, n), d.params.MASource)
	if err != nil {
		return Signal{}, fmt.Errorf("dreamrunner: previous wma: %w", err)
	}

	long := wma0 > k0.Line && !(wma1 > k1.Line)
	short := wma0 < k0.Line && !(wma1 < k1.Line)

	switch {
	case long && short:
		return Signal{}, fmt.Errorf("%w: %s wma=%.4f/%.4f kagi=%s/%s",
			model.ErrAmbiguousSignal, d.symbol, wma0, wma1, k0, k1)
	case long:
		return signalAt(Long, c0), nil
	case short:
		return signalAt(Short, c0), nil
	}
	return Signal{}, nil
}

// Reset clears the window and unseeds the Kagi tracker.
func (d *Dreamrunner) Reset() {
	d.window.Reset()
	d.kagi.Reset()
}
