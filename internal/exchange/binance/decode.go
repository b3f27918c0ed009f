package binance

import (
	"fmt"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

func parseCanceled(r gjson.Result) model.CanceledOrder {
	return model.CanceledOrder{
		Symbol:        r.Get("symbol").String(),
		OrderID:       r.Get("orderId").Int(),
		ClientOrderID: r.Get("origClientOrderId").String(),
		Status:        r.Get("status").String(),
	}
}

func parseOrder(r gjson.Result) model.ExchangeOrder {
	upd := r.Get("updateTime").Int()
	if upd == 0 {
		upd = r.Get("time").Int()
	}
	return model.ExchangeOrder{
		Symbol:        r.Get("symbol").String(),
		ClientOrderID: r.Get("clientOrderId").String(),
		OrderID:       r.Get("orderId").Int(),
		Type:          r.Get("type").String(),
		Status:        r.Get("status").String(),
		Side:          r.Get("side").String(),
		Price:         r.Get("price").String(),
		OrigQty:       r.Get("origQty").String(),
		ExecutedQty:   r.Get("executedQty").String(),
		UpdateTime:    upd,
	}
}

// parseBalances reads an array of balance objects using the given keys
// (REST uses asset/free/locked, the stream a/f/l). Zero balances are dropped
// unless keepZero is set.
func parseBalances(arr gjson.Result, assetKey, freeKey, lockedKey string, keepZero bool) ([]model.Balance, error) {
	var out []model.Balance
	for _, r := range arr.Array() {
		free, err := decimal.NewFromString(r.Get(freeKey).String())
		if err != nil {
			return nil, fmt.Errorf("binance: balance %s free: %w", r.Get(assetKey).String(), err)
		}
		locked, err := decimal.NewFromString(r.Get(lockedKey).String())
		if err != nil {
			return nil, fmt.Errorf("binance: balance %s locked: %w", r.Get(assetKey).String(), err)
		}
		if !keepZero && free.IsZero() && locked.IsZero() {
			continue
		}
		out = append(out, model.Balance{Asset: r.Get(assetKey).String(), Free: free, Locked: locked})
	}
	return out, nil
}

// parseKlineRow decodes one REST kline row
// [openTime, open, high, low, close, volume, closeTime, ...].
func parseKlineRow(symbol string, row gjson.Result) (model.Candle, int64, error) {
	f := row.Array()
	if len(f) < 7 {
		return model.Candle{}, 0, fmt.Errorf("binance: short kline row %s", row.Raw)
	}
	return model.Candle{
		Symbol: symbol,
		TS:     time.UnixMilli(f[0].Int()).UTC(),
		Open:   f[1].Float(),
		High:   f[2].Float(),
		Low:    f[3].Float(),
		Close:  f[4].Float(),
		Volume: f[5].Float(),
	}, f[6].Int(), nil
}

// EventKind classifies a stream payload.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventKline
	EventOrder
	EventBalance
)

// Event is one decoded stream message.
type Event struct {
	Kind     EventKind
	Candle   model.Candle
	Closed   bool // kline only: the bar is final
	Order    model.OrderEvent
	Balances []model.Balance
}

// ParseMessage decodes a raw or combined-stream (`{"stream":..,"data":..}`)
// payload.
func ParseMessage(msg []byte) (Event, error) {
	root := gjson.ParseBytes(msg)
	if data := root.Get("data"); data.Exists() && root.Get("stream").Exists() {
		root = data
	}

	switch root.Get("e").String() {
	case "kline":
		k := root.Get("k")
		return Event{
			Kind: EventKline,
			Candle: model.Candle{
				Symbol: k.Get("s").String(),
				TS:     time.UnixMilli(k.Get("t").Int()).UTC(),
				Open:   k.Get("o").Float(),
				High:   k.Get("h").Float(),
				Low:    k.Get("l").Float(),
				Close:  k.Get("c").Float(),
				Volume: k.Get("v").Float(),
			},
			Closed: k.Get("x").Bool(),
		}, nil
	case "executionReport":
		// On a cancel "c" is the cancel request's id and "C" the order's own.
		cid := root.Get("c").String()
		if orig := root.Get("C").String(); orig != "" {
			cid = orig
		}
		return Event{
			Kind: EventOrder,
			Order: model.OrderEvent{
				Symbol:        root.Get("s").String(),
				ClientOrderID: cid,
				OrderID:       root.Get("i").Int(),
				OrderType:     root.Get("o").String(),
				Status:        root.Get("X").String(),
				ExecutionType: root.Get("x").String(),
				EventTime:     root.Get("E").Int(),
				Price:         root.Get("p").String(),
				Quantity:      root.Get("q").String(),
				Side:          root.Get("S").String(),
			},
		}, nil
	case "outboundAccountPosition":
		bals, err := parseBalances(root.Get("B"), "a", "f", "l", true)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventBalance, Balances: bals}, nil
	}
	return Event{Kind: EventUnknown}, nil
}
