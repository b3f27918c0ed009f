// Package replay emits stored candles into a channel at a configurable speed,
// so the live engine can paper-trade over history.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// maxGap caps the simulated wait between two candles.
const maxGap = 5 * time.Second

// Replayer reads candles from a CandleSource and replays them.
type Replayer struct {
	src   model.CandleSource
	sleep func(ctx context.Context, d time.Duration) error

	// OnCandle runs after each candle is sent, e.g. to let a paper
	// exchange fill resting orders against the bar.
	OnCandle func(model.Candle)
}

// New creates a Replayer.
func New(src model.CandleSource) *Replayer {
	return &Replayer{src: src, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run replays candles for symbol in [from, to) into outCh. speed is the
// playback rate: 1 = real time, 60 = one minute per second, 0 = as fast as
// possible. It returns the number of candles emitted.
func (r *Replayer) Run(ctx context.Context, symbol string, from, to time.Time, speed float64, outCh chan<- model.Candle) (int, error) {
	candles, err := r.src.ReadCandles(symbol, from, to)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		log.Printf("[replay] no candles for %s", symbol)
		return 0, nil
	}
	sort.SliceStable(candles, func(i, j int) bool { return candles[i].TS.Before(candles[j].TS) })
	log.Printf("[replay] loaded %d %s candles, speed=%.1fx", len(candles), symbol, speed)

	var prev time.Time
	emitted := 0
	for _, c := range candles {
		if speed > 0 && !prev.IsZero() {
			if gap := c.TS.Sub(prev); gap > 0 {
				wait := time.Duration(float64(gap) / speed)
				if wait > maxGap {
					wait = maxGap
				}
				if err := r.sleep(ctx, wait); err != nil {
					return emitted, err
				}
			}
		}
		prev = c.TS

		select {
		case outCh <- c:
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d candles", emitted)
			return emitted, ctx.Err()
		}
		if r.OnCandle != nil {
			r.OnCandle(c)
		}
		emitted++
	}

	log.Printf("[replay] completed: %d candles replayed", emitted)
	return emitted, nil
}
