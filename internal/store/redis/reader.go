package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/0xBreath/binance-engine-sub000/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ActiveOrder returns the stored active-order snapshot, or nil when unset.
func (p *Publisher) ActiveOrder(ctx context.Context, symbol string) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	data, err := p.client.Get(ctx, p.key("active-order", symbol)).Bytes()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get active order %s: %w", symbol, err)
	}
	return data, nil
}

// RecentCandles reads the newest n candles from the symbol's stream, oldest first.
func (p *Publisher) RecentCandles(ctx context.Context, symbol string, n int64) ([]model.Candle, error) {
	if p == nil {
		return nil, nil
	}
	msgs, err := p.client.XRevRangeN(ctx, p.key("candles", symbol), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("xrevrange %s: %w", symbol, err)
	}
	return decodeCandles(msgs)
}

// decodeCandles reverses XREVRANGE output into ascending order.
func decodeCandles(msgs []goredis.XMessage) ([]model.Candle, error) {
	out := make([]model.Candle, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var c model.Candle
		if err := json.Unmarshal([]byte(raw), &c); err != nil {
			return nil, fmt.Errorf("decode candle %s: %w", msgs[i].ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}
