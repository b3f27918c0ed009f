// Package api is the HTTP inspection surface of a running engine: account
// balances, open orders, the entry slot, and a live WebSocket feed. The one
// mutating endpoint (cancel-all) requires a TOTP code.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/engine"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

const exchangeTimeout = 5 * time.Second

// StateSource exposes the engine state.
type StateSource interface {
	Snapshot() engine.Snapshot
}

// Handler carries everything the routes need. It replaces any global
// account state: each server is built from its own Handler.
type Handler struct {
	Exchange   model.Exchange
	State      StateSource
	Symbol     string
	TOTPSecret string // empty disables mutating endpoints
	Hub        *Hub   // nil disables /api/v1/stream

	now func() time.Time
}

// NewRouter registers the routes of h on a new mux.
func NewRouter(h *Handler) *http.ServeMux {
	if h.now == nil {
		h.now = time.Now
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", get(h.health))
	mux.HandleFunc("/api/v1/account", get(h.account))
	mux.HandleFunc("/api/v1/orders/open", get(h.openOrders))
	mux.HandleFunc("/api/v1/active-order", get(h.activeOrder))
	mux.HandleFunc("/api/v1/state", get(h.state))
	mux.HandleFunc("/api/v1/orders/cancel-all", h.cancelAll)
	if h.Hub != nil {
		mux.HandleFunc("/api/v1/stream", h.Hub.ServeWS)
	}
	return mux
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+totpHeader)
}

func get(fn http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		fn(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"symbol": h.Symbol,
		"ts":     h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) account(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()
	balances, err := h.Exchange.Balances(ctx)
	if err != nil {
		log.Printf("[api] balances: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	body := map[string]any{"balances": balances}
	if h.State != nil {
		body["assets"] = h.State.Snapshot().Assets
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) openOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()
	orders, err := h.Exchange.OpenOrders(ctx, h.Symbol)
	if err != nil {
		log.Printf("[api] open orders: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if orders == nil {
		orders = []model.ExchangeOrder{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) activeOrder(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not attached")
		return
	}
	writeJSON(w, http.StatusOK, h.State.Snapshot().ActiveOrder)
}

func (h *Handler) state(w http.ResponseWriter, r *http.Request) {
	if h.State == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not attached")
		return
	}
	writeJSON(w, http.StatusOK, h.State.Snapshot())
}

func (h *Handler) cancelAll(w http.ResponseWriter, r *http.Request) {
	SetCORS(w)
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.TOTPSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "mutating endpoints disabled")
		return
	}
	if !validTOTP(r.Header.Get(totpHeader), h.TOTPSecret, h.now()) {
		log.Printf("[api] cancel-all rejected: bad TOTP from %s", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid TOTP code")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), exchangeTimeout)
	defer cancel()
	canceled, err := h.Exchange.CancelAllOpenOrders(ctx, h.Symbol)
	if err != nil && !model.IsBenign(err) {
		log.Printf("[api] cancel-all: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if canceled == nil {
		canceled = []model.CanceledOrder{}
	}
	log.Printf("[api] cancel-all %s: %d orders", h.Symbol, len(canceled))
	writeJSON(w, http.StatusOK, map[string]any{"canceled": canceled})
}
