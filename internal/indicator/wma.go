package indicator

import (
	"fmt"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/0xBreath/binance-engine-sub000/internal/ringbuf"
)

// WMA averages src over a newest-first slice. For a slice of length L the
// candle at index i weighs (L-i)*L, so the newest bar dominates quadratically
// relative to a linear WMA.
func WMA(candles []model.Candle, src model.Source) (float64, error) {
	n := len(candles)
	if n == 0 {
		return 0, model.ErrEmptySlice
	}
	var sum, norm float64
	for i, c := range candles {
		w := float64((n - i) * n)
		sum += w * src.Price(c)
		norm += w
	}
	return sum / norm, nil
}

// WMAIndicator is a streaming WMA over the last period candles.
type WMAIndicator struct {
	period int
	src    model.Source
	window *ringbuf.Window[model.Candle]
	value  float64
}

var _ Indicator = (*WMAIndicator)(nil)

// NewWMA creates a streaming WMA reading src.
func NewWMA(period int, src model.Source) *WMAIndicator {
	if period < 1 {
		period = 1
	}
	return &WMAIndicator{
		period: period,
		src:    src,
		window: ringbuf.New[model.Candle](period),
	}
}

func (w *WMAIndicator) Name() string { return fmt.Sprintf("WMA_%d", w.period) }

func (w *WMAIndicator) Update(candle model.Candle) {
	w.window.Push(candle)
	if w.window.Full() {
		// window is never empty here
		w.value, _ = WMA(w.window.Values(), w.src)
	}
}

func (w *WMAIndicator) Value() float64 { return w.value }
func (w *WMAIndicator) Ready() bool    { return w.window.Full() }

// Peek computes the WMA as if a bar with the given source price were pushed.
func (w *WMAIndicator) Peek(price float64) float64 {
	var probe model.Candle
	probe.Open, probe.High, probe.Low, probe.Close = price, price, price, price

	candles := make([]model.Candle, 0, w.period)
	candles = append(candles, probe)
	candles = append(candles, w.window.Slice(0, w.period-1)...)
	v, _ := WMA(candles, w.src)
	return v
}
