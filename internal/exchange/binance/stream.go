package binance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/gorilla/websocket"
)

const (
	DefaultKeepAlive = 30 * time.Minute
	pingInterval     = 3 * time.Minute
	pongWait         = 10 * time.Minute
	writeWait        = 10 * time.Second
	minBackoff       = time.Second
	maxBackoff       = time.Minute
)

// UserStreams opens and refreshes user data listen keys.
type UserStreams interface {
	StartUserStream(ctx context.Context) (string, error)
	KeepAliveUserStream(ctx context.Context, listenKey string) error
}

// StreamConfig configures a Stream.
type StreamConfig struct {
	BaseURL   string // ws base, e.g. LiveWS
	Symbol    string
	Interval  string
	KeepAlive time.Duration
}

// Stream is the combined kline + user data WebSocket for one symbol. Closed
// klines go to Candles, executionReports to Orders, balance snapshots to
// OnBalances.
type Stream struct {
	cfg    StreamConfig
	users  UserStreams
	dialer *websocket.Dialer

	// OnBalances receives outboundAccountPosition updates.
	OnBalances func([]model.Balance)
	// OnReconnect fires after every dropped connection.
	OnReconnect func()

	mu        sync.Mutex
	listenKey string
}

// NewStream creates a stream. users may be nil for market data only.
func NewStream(cfg StreamConfig, users UserStreams) *Stream {
	if cfg.BaseURL == "" {
		cfg.BaseURL = LiveWS
	}
	if cfg.KeepAlive <= 0 {
		cfg.KeepAlive = DefaultKeepAlive
	}
	return &Stream{
		cfg:    cfg,
		users:  users,
		dialer: &websocket.Dialer{HandshakeTimeout: 15 * time.Second},
	}
}

// URL returns the combined-stream URL for the current listen key.
func (s *Stream) URL() string {
	streams := []string{fmt.Sprintf("%s@kline_%s", strings.ToLower(s.cfg.Symbol), s.cfg.Interval)}
	s.mu.Lock()
	if s.listenKey != "" {
		streams = append(streams, s.listenKey)
	}
	s.mu.Unlock()
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// Run connects and pumps events until ctx is cancelled, reconnecting with
// exponential backoff. It returns ctx.Err() on shutdown.
func (s *Stream) Run(ctx context.Context, candles chan<- model.Candle, orders chan<- model.OrderEvent) error {
	if s.users != nil {
		if err := s.refreshListenKey(ctx); err != nil {
			return err
		}
		go s.keepAlive(ctx)
	}

	backoff := minBackoff
	for {
		started := time.Now()
		err := s.session(ctx, candles, orders)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[stream] %s: disconnected: %v", s.cfg.Symbol, err)
		if s.OnReconnect != nil {
			s.OnReconnect()
		}
		if time.Since(started) > maxBackoff {
			backoff = minBackoff
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		if s.users != nil {
			if err := s.refreshListenKey(ctx); err != nil {
				log.Printf("[stream] listen key refresh failed: %v", err)
			}
		}
	}
}

func (s *Stream) session(ctx context.Context, candles chan<- model.Candle, orders chan<- model.OrderEvent) error {
	url := s.URL()
	conn, resp, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %s: %w", s.cfg.Symbol, resp.Status, err)
		}
		return fmt.Errorf("dial %s: %w", s.cfg.Symbol, err)
	}
	defer conn.Close()
	log.Printf("[stream] connected %s", s.redact(url))

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// Binance pings every 3 minutes and expects the payload echoed back.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				conn.Close()
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					log.Printf("[stream] ping failed: %v", err)
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := s.dispatch(ctx, msg, candles, orders); err != nil {
			log.Printf("[stream] decode error: %v", err)
		}
	}
}

func (s *Stream) dispatch(ctx context.Context, msg []byte, candles chan<- model.Candle, orders chan<- model.OrderEvent) error {
	ev, err := ParseMessage(msg)
	if err != nil {
		return err
	}
	switch ev.Kind {
	case EventKline:
		if !ev.Closed {
			return nil
		}
		select {
		case candles <- ev.Candle:
		case <-ctx.Done():
		}
	case EventOrder:
		if orders == nil {
			return nil
		}
		select {
		case orders <- ev.Order:
		case <-ctx.Done():
		}
	case EventBalance:
		if s.OnBalances != nil {
			s.OnBalances(ev.Balances)
		}
	}
	return nil
}

func (s *Stream) refreshListenKey(ctx context.Context) error {
	key, err := s.users.StartUserStream(ctx)
	if err != nil {
		return fmt.Errorf("stream: start user stream: %w", err)
	}
	s.mu.Lock()
	s.listenKey = key
	s.mu.Unlock()
	return nil
}

func (s *Stream) keepAlive(ctx context.Context) {
	t := time.NewTicker(s.cfg.KeepAlive)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.mu.Lock()
			key := s.listenKey
			s.mu.Unlock()
			if err := s.users.KeepAliveUserStream(ctx, key); err != nil {
				log.Printf("[stream] keep-alive failed: %v", err)
			}
		}
	}
}

// redact hides the listen key, which grants read access to the account.
func (s *Stream) redact(url string) string {
	s.mu.Lock()
	key := s.listenKey
	s.mu.Unlock()
	if key == "" {
		return url
	}
	return strings.ReplaceAll(url, key, "<listenKey>")
}
