package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These decouple the engine from the concrete exchange and storage adapters
// (Binance, paper exchange, SQLite, Redis).

// Exchange is the order-management surface the engine needs.
type Exchange interface {
	// PlaceLimitOrder submits a limit order and returns the exchange ack.
	PlaceLimitOrder(ctx context.Context, intent OrderIntent) (OrderAck, error)

	// CancelAllOpenOrders cancels every open order for symbol. No open
	// orders is not an error: it returns an empty slice.
	CancelAllOpenOrders(ctx context.Context, symbol string) ([]CanceledOrder, error)

	// CancelOrder cancels one order. An unknown order returns a zero value and nil.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (CanceledOrder, error)

	// OpenOrders lists working orders for symbol.
	OpenOrders(ctx context.Context, symbol string) ([]ExchangeOrder, error)

	// QueryOrder fetches a single order by its client order id.
	QueryOrder(ctx context.Context, symbol, clientOrderID string) (ExchangeOrder, error)

	// Balances returns free/locked amounts per asset.
	Balances(ctx context.Context) ([]Balance, error)
}

// CandleArchive persists closed candles.
type CandleArchive interface {
	// Run reads candles from candleCh and stores them.
	// Blocks until ctx is cancelled or candleCh is closed.
	Run(ctx context.Context, candleCh <-chan Candle)

	// Close releases underlying resources.
	Close() error
}

// CandleSource reads stored candles in ascending time order.
type CandleSource interface {
	ReadCandles(symbol string, from, to time.Time) ([]Candle, error)
}

// FillJournal records confirmed order updates for audit.
type FillJournal interface {
	RecordFill(info TradeInfo, symbol string) error
}

// StatePublisher fans engine state out to external consumers.
type StatePublisher interface {
	PublishSignal(ctx context.Context, symbol string, payload []byte) error
	SaveActiveOrder(ctx context.Context, symbol string, payload []byte) error
}
