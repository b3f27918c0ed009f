package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OrderIntent is an order the engine has decided to submit.
type OrderIntent struct {
	Symbol        string          `json:"symbol"`
	ClientOrderID ClientOrderID   `json:"client_order_id"`
	Side          Side            `json:"side"`
	Type          OrderType       `json:"type"`
	Quantity      decimal.Decimal `json:"quantity"`
	LimitPrice    decimal.Decimal `json:"limit_price"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

// OrderAck is the exchange's acknowledgement of a placed order.
type OrderAck struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}

// CanceledOrder is one entry of a cancel response.
type CanceledOrder struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"order_id"`
	ClientOrderID string `json:"client_order_id"`
	Status        string `json:"status"`
}

// OrderEvent is a raw order/trade confirmation as delivered by the exchange.
// Enum and number fields stay strings until converted with TradeInfo.
type OrderEvent struct {
	Symbol        string `json:"symbol"`
	ClientOrderID string `json:"client_order_id"`
	OrderID       int64  `json:"order_id"`
	OrderType     string `json:"order_type"`
	Status        string `json:"status"`
	ExecutionType string `json:"execution_type"`
	EventTime     int64  `json:"event_time"` // unix ms
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	Side          string `json:"side"`
}

// ExchangeOrder is an order record fetched from the exchange (open orders or
// a single order query). It shares the string encoding of OrderEvent.
type ExchangeOrder struct {
	Symbol        string `json:"symbol"`
	ClientOrderID string `json:"client_order_id"`
	OrderID       int64  `json:"order_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	OrigQty       string `json:"orig_qty"`
	ExecutedQty   string `json:"executed_qty"`
	UpdateTime    int64  `json:"update_time"` // unix ms
}

// TradeInfo is a parsed, confirmed view of an order.
type TradeInfo struct {
	ClientOrderID ClientOrderID `json:"client_order_id"`
	OrderID       int64         `json:"order_id"`
	OrderType     OrderType     `json:"order_type"`
	Status        OrderStatus   `json:"status"`
	EventTime     time.Time     `json:"event_time"`
	Quantity      float64       `json:"quantity"`
	Price         float64       `json:"price"`
	Side          Side          `json:"side"`
}

// TradeInfo parses the event. Any unknown enum yields ErrInvalidExchangeEnum.
func (e OrderEvent) TradeInfo() (TradeInfo, error) {
	return buildTradeInfo(e.ClientOrderID, e.OrderID, e.OrderType, e.Status, e.Side, e.Price, e.Quantity, e.EventTime)
}

// TradeInfo parses the fetched order, using the executed quantity.
func (o ExchangeOrder) TradeInfo() (TradeInfo, error) {
	return buildTradeInfo(o.ClientOrderID, o.OrderID, o.Type, o.Status, o.Side, o.Price, o.ExecutedQty, o.UpdateTime)
}

func buildTradeInfo(clientID string, orderID int64, typ, status, side, price, qty string, ms int64) (TradeInfo, error) {
	ot, err := ParseOrderType(typ)
	if err != nil {
		return TradeInfo{}, err
	}
	st, err := ParseOrderStatus(status)
	if err != nil {
		return TradeInfo{}, err
	}
	sd, err := ParseSide(side)
	if err != nil {
		return TradeInfo{}, err
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return TradeInfo{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	q, err := decimal.NewFromString(qty)
	if err != nil {
		return TradeInfo{}, fmt.Errorf("parse quantity %q: %w", qty, err)
	}
	return TradeInfo{
		ClientOrderID: ParseClientOrderID(clientID),
		OrderID:       orderID,
		OrderType:     ot,
		Status:        st,
		EventTime:     time.UnixMilli(ms).UTC(),
		Quantity:      q.InexactFloat64(),
		Price:         p.InexactFloat64(),
		Side:          sd,
	}, nil
}

// Balance is the free and locked amount of one asset.
type Balance struct {
	Asset  string          `json:"asset"`
	Free   decimal.Decimal `json:"free"`
	Locked decimal.Decimal `json:"locked"`
}
