package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

type sliceSource []model.Candle

func (s sliceSource) ReadCandles(symbol string, from, to time.Time) ([]model.Candle, error) {
	return s, nil
}

func TestReplayer_OrdersAndScalesGaps(t *testing.T) {
	src := sliceSource{
		{Symbol: "SOLUSDT", TS: time.Unix(120, 0), Close: 2},
		{Symbol: "SOLUSDT", TS: time.Unix(0, 0), Close: 0},
		{Symbol: "SOLUSDT", TS: time.Unix(60, 0), Close: 1},
	}
	r := New(src)
	var waits []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	var seen int
	r.OnCandle = func(model.Candle) { seen++ }

	out := make(chan model.Candle, 3)
	n, err := r.Run(context.Background(), "SOLUSDT", time.Time{}, time.Time{}, 60, out)
	if err != nil || n != 3 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	close(out)

	var closes []float64
	for c := range out {
		closes = append(closes, c.Close)
	}
	if closes[0] != 0 || closes[1] != 1 || closes[2] != 2 {
		t.Errorf("order = %v", closes)
	}
	if len(waits) != 2 || waits[0] != time.Second {
		t.Errorf("waits = %v, want two 1s gaps at 60x", waits)
	}
	if seen != 3 {
		t.Errorf("OnCandle calls = %d", seen)
	}
}

func TestReplayer_Cancelled(t *testing.T) {
	src := sliceSource{{TS: time.Unix(0, 0)}, {TS: time.Unix(60, 0)}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan model.Candle)
	_, err := New(src).Run(ctx, "SOLUSDT", time.Time{}, time.Time{}, 0, out)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
