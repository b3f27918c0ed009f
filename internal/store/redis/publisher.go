package redis

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultPrefix     = "dreamrunner"
	candleStreamLen   = 5000
	activeOrderTTL    = 24 * time.Hour
	defaultOpTimeout  = 2 * time.Second
	defaultMaxBuffer  = 1000
	defaultMaxFailure = 5
	defaultCoolDown   = 10 * time.Second
)

// Config configures the Redis publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	Prefix   string // key namespace, default "dreamrunner"
}

// Publisher fans engine state out to Redis:
//
//	PUBLISH <prefix>:signal:<symbol>        signal JSON
//	SET     <prefix>:active-order:<symbol>  active-order snapshot JSON
//	XADD    <prefix>:candles:<symbol>       closed candles, approx-trimmed
//
// Every write goes through a circuit breaker. A nil *Publisher is valid and
// does nothing.
type Publisher struct {
	client *goredis.Client
	prefix string
	cb     *CircuitBreaker
	buf    *buffer
}

var _ model.StatePublisher = (*Publisher)(nil)

// New connects and pings Redis.
func New(cfg Config) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg.Prefix), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = defaultPrefix
	}
	p := &Publisher{
		client: client,
		prefix: prefix,
		cb:     NewCircuitBreaker(defaultMaxFailure, defaultCoolDown),
	}
	p.buf = newBuffer(p, defaultMaxBuffer)
	return p
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client {
	if p == nil {
		return nil
	}
	return p.client
}

// Breaker exposes the circuit breaker for metrics callbacks.
func (p *Publisher) Breaker() *CircuitBreaker {
	if p == nil {
		return nil
	}
	return p.cb
}

func (p *Publisher) key(kind, symbol string) string {
	return p.prefix + ":" + kind + ":" + strings.ToUpper(symbol)
}

// PublishSignal publishes a signal payload on the symbol's channel.
func (p *Publisher) PublishSignal(ctx context.Context, symbol string, payload []byte) error {
	if p == nil {
		return nil
	}
	return p.guard(ctx, writeSignal, symbol, payload)
}

// SaveActiveOrder stores the latest active-order snapshot.
func (p *Publisher) SaveActiveOrder(ctx context.Context, symbol string, payload []byte) error {
	if p == nil {
		return nil
	}
	return p.guard(ctx, writeActiveOrder, symbol, payload)
}

// AppendCandle adds a closed candle to the symbol's stream.
func (p *Publisher) AppendCandle(ctx context.Context, c model.Candle) error {
	if p == nil {
		return nil
	}
	return p.guard(ctx, writeCandle, c.Symbol, c.JSON())
}

// Run appends candles from candleCh until ctx is cancelled or the channel closes.
func (p *Publisher) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candleCh:
			if !ok {
				return
			}
			if err := p.AppendCandle(ctx, c); err != nil {
				log.Printf("[redis] append candle %s: %v", c.Key(), err)
			}
		}
	}
}

// guard writes through the breaker; rejected writes are buffered and
// replayed once the breaker closes.
func (p *Publisher) guard(ctx context.Context, kind writeKind, symbol string, payload []byte) error {
	err := p.cb.Execute(func() error {
		return p.write(ctx, kind, symbol, payload)
	})
	if err == ErrCircuitOpen {
		p.buf.add(pendingWrite{kind: kind, symbol: symbol, data: payload})
		return nil
	}
	return err
}

func (p *Publisher) write(ctx context.Context, kind writeKind, symbol string, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, defaultOpTimeout)
	defer cancel()

	data := string(payload)
	switch kind {
	case writeSignal:
		pipe := p.client.Pipeline()
		pipe.Publish(ctx, p.key("signal", symbol), data)
		pipe.Set(ctx, p.key("signal:latest", symbol), data, 0)
		_, err := pipe.Exec(ctx)
		return err
	case writeActiveOrder:
		return p.client.Set(ctx, p.key("active-order", symbol), data, activeOrderTTL).Err()
	case writeCandle:
		return p.client.XAdd(ctx, &goredis.XAddArgs{
			Stream: p.key("candles", symbol),
			MaxLen: candleStreamLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		}).Err()
	}
	return fmt.Errorf("redis: unknown write kind %d", kind)
}

// Pending returns the number of buffered writes.
func (p *Publisher) Pending() int {
	if p == nil {
		return 0
	}
	return p.buf.len()
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
