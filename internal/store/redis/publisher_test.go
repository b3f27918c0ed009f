package redis

import (
	"context"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// deadPublisher points at a port nothing listens on.
func deadPublisher(t *testing.T) *Publisher {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	p := NewWithClient(client, "")
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	ctx := context.Background()
	if err := p.PublishSignal(ctx, "SOLUSDT", []byte(`{}`)); err != nil {
		t.Errorf("PublishSignal: %v", err)
	}
	if err := p.SaveActiveOrder(ctx, "SOLUSDT", []byte(`{}`)); err != nil {
		t.Errorf("SaveActiveOrder: %v", err)
	}
	if err := p.AppendCandle(ctx, model.Candle{Symbol: "SOLUSDT"}); err != nil {
		t.Errorf("AppendCandle: %v", err)
	}
	if p.Pending() != 0 || p.Close() != nil || p.Client() != nil {
		t.Error("nil publisher accessors should be zero")
	}
}

func TestPublisher_BreakerBuffersWhenRedisIsDown(t *testing.T) {
	p := deadPublisher(t)
	ctx := context.Background()

	for i := 0; i < defaultMaxFailure; i++ {
		if err := p.PublishSignal(ctx, "SOLUSDT", []byte(`{"kind":"Long"}`)); err == nil {
			t.Fatalf("write %d should fail against a dead server", i)
		}
	}
	if p.Breaker().CurrentState() != StateOpen {
		t.Fatalf("breaker = %v, want open", p.Breaker().CurrentState())
	}

	// open breaker: writes are absorbed into the buffer
	if err := p.SaveActiveOrder(ctx, "SOLUSDT", []byte(`{}`)); err != nil {
		t.Errorf("buffered write returned %v", err)
	}
	if err := p.AppendCandle(ctx, model.Candle{Symbol: "SOLUSDT", TS: time.Unix(60, 0)}); err != nil {
		t.Errorf("buffered write returned %v", err)
	}
	if p.Pending() != 2 {
		t.Errorf("pending = %d, want 2", p.Pending())
	}
}

func TestBuffer_DropsOldest(t *testing.T) {
	p := deadPublisher(t)
	b := &buffer{p: p, max: 2}
	b.add(pendingWrite{symbol: "A"})
	b.add(pendingWrite{symbol: "B"})
	b.add(pendingWrite{symbol: "C"})
	if b.len() != 2 || b.pending[0].symbol != "B" || b.pending[1].symbol != "C" {
		t.Errorf("pending = %+v", b.pending)
	}
}

func TestPublisher_Keys(t *testing.T) {
	p := deadPublisher(t)
	if got := p.key("active-order", "solusdt"); got != "dreamrunner:active-order:SOLUSDT" {
		t.Errorf("key = %q", got)
	}
}

func TestDecodeCandles_Ascending(t *testing.T) {
	newest := model.Candle{Symbol: "SOLUSDT", TS: time.Unix(120, 0).UTC(), Close: 2}
	oldest := model.Candle{Symbol: "SOLUSDT", TS: time.Unix(60, 0).UTC(), Close: 1}
	msgs := []goredis.XMessage{
		{ID: "2-0", Values: map[string]interface{}{"data": string(newest.JSON())}},
		{ID: "1-0", Values: map[string]interface{}{"data": string(oldest.JSON())}},
		{ID: "0-0", Values: map[string]interface{}{"other": "x"}},
	}
	got, err := decodeCandles(msgs)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Close != 1 || got[1].Close != 2 {
		t.Errorf("got %+v", got)
	}
}
