package bus

import (
	"context"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

func bar(sec int64) model.Candle {
	return model.Candle{Symbol: "SOLUSDT", TS: time.Unix(sec, 0), Open: 100, High: 110, Low: 90, Close: 105}
}

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe("archive")
	out2 := fo.SubscribeBlocking("engine")

	input := make(chan model.Candle, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	input <- bar(60)

	for name, ch := range map[string]<-chan model.Candle{"archive": out1, "engine": out2} {
		select {
		case c := <-ch:
			if c.Close != 105 {
				t.Errorf("%s: close = %v", name, c.Close)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: timed out waiting for candle", name)
		}
	}
}

func TestFanOut_LossyDropsBlockingKeepsAll(t *testing.T) {
	fo := New(1)
	var dropped []string
	fo.OnDrop = func(name string) { dropped = append(dropped, name) }
	lossy := fo.Subscribe("archive")
	engine := fo.SubscribeBlocking("engine")

	input := make(chan model.Candle)
	done := make(chan struct{})
	go func() {
		fo.Run(context.Background(), input)
		close(done)
	}()

	go func() {
		for i := int64(1); i <= 3; i++ {
			input <- bar(i * 60)
		}
		close(input)
	}()

	var got []int64
	for c := range engine {
		got = append(got, c.TS.Unix())
	}
	<-done

	if len(got) != 3 || got[0] != 60 || got[2] != 180 {
		t.Errorf("engine received %v, want all three in order", got)
	}
	n := 0
	for range lossy {
		n++
	}
	if n+len(dropped) != 3 || n == 0 {
		t.Errorf("lossy got %d, dropped %d", n, len(dropped))
	}
}

func TestFanOut_ChannelStats(t *testing.T) {
	fo := New(4)
	fo.Subscribe("a")
	fo.SubscribeBlocking("b")
	stats := fo.ChannelStats()
	if len(stats) != 2 || stats[1].Name != "b" || stats[1].Cap != 4 {
		t.Errorf("stats = %+v", stats)
	}
}
