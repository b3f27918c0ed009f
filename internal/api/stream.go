package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingEvery      = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans engine events out to WebSocket clients. Every message is an
// envelope {"channel", "data", "ts"}; a new client first receives the last
// message of every channel with "initial": true.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	latest  map[string]envelope
	now     func() time.Time
}

type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
	TS      string          `json:"ts"`
	Initial bool            `json:"initial,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

var _ model.StatePublisher = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*wsClient]struct{}),
		latest:  make(map[string]envelope),
		now:     time.Now,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish marshals data and broadcasts it on channel. Slow clients drop
// messages rather than block the caller.
func (h *Hub) Publish(channel string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[api] marshal %s: %v", channel, err)
		return
	}
	h.publishRaw(channel, raw)
}

func (h *Hub) publishRaw(channel string, raw []byte) {
	env := envelope{Channel: channel, Data: raw, TS: h.now().UTC().Format(time.RFC3339Nano)}
	msg, err := json.Marshal(env)
	if err != nil {
		return
	}
	h.mu.Lock()
	h.latest[channel] = env
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
	h.mu.Unlock()
}

// PublishSignal and SaveActiveOrder let the hub sit next to the Redis
// publisher as an engine StatePublisher.
func (h *Hub) PublishSignal(_ context.Context, symbol string, payload []byte) error {
	h.publishRaw("signal:"+symbol, payload)
	return nil
}

func (h *Hub) SaveActiveOrder(_ context.Context, symbol string, payload []byte) error {
	h.publishRaw("active_order:"+symbol, payload)
	return nil
}

// Run broadcasts candles until ctx is done or candles is closed.
func (h *Hub) Run(ctx context.Context, candles <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candles:
			if !ok {
				return
			}
			h.Publish("candle:"+c.Symbol, c)
		}
	}
}

// ServeWS upgrades the request and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[api] ws upgrade error: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientSendBuffer), hub: h}

	h.mu.Lock()
	for _, env := range h.latest {
		env.Initial = true
		if msg, err := json.Marshal(env); err == nil {
			c.send <- msg
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingEvery)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only services control frames; clients do not send commands.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
