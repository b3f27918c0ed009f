// Package indicator provides the price studies the strategies are built on:
// the Kagi reversal line and the quadratically weighted moving average.
//
// Streaming indicators implement the Indicator interface, receiving closed
// candles and producing float64 values. Pure helpers (WMA) operate on
// newest-first candle slices taken from a ringbuf.Window.
package indicator

import "github.com/0xBreath/binance-engine-sub000/internal/model"

// Indicator is the interface for streaming technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "WMA_8").
	Name() string

	// Update feeds a new closed candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if a candle with this source price
	// were added next, WITHOUT mutating internal state.
	Peek(price float64) float64
}
