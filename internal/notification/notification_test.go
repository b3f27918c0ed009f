package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

type captured struct {
	mu     sync.Mutex
	path   string
	bodies []map[string]any
}

func capture(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	c := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var m map[string]any
		json.Unmarshal(raw, &m)
		c.mu.Lock()
		c.path = r.URL.Path
		c.bodies = append(c.bodies, m)
		c.mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, c
}

func TestWebhook_Payload(t *testing.T) {
	srv, got := capture(t, http.StatusNoContent)
	w := NewWebhookNotifier(srv.URL)
	w.now = func() time.Time { return time.Unix(1690000000, 0) }

	alert := Warnf("stale reset", "order %s", "1690000000000-ENTRY")
	alert.Symbol = "SOLUSDT"
	if err := w.Send(context.Background(), alert); err != nil {
		t.Fatalf("send: %v", err)
	}
	b := got.bodies[0]
	if b["level"] != "WARNING" || b["message"] != "order 1690000000000-ENTRY" || b["symbol"] != "SOLUSDT" {
		t.Errorf("payload = %v", b)
	}
	if b["ts"] != "2023-07-22T04:26:40Z" {
		t.Errorf("ts = %v", b["ts"])
	}
}

func TestWebhook_ErrorStatus(t *testing.T) {
	srv, _ := capture(t, http.StatusInternalServerError)
	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), Infof("x", "y")); err == nil {
		t.Error("expected error on 500")
	}
}

func TestTelegram_EscapesAndRoutes(t *testing.T) {
	srv, got := capture(t, http.StatusOK)
	tg := NewTelegramNotifier("TOKEN", "42").WithBaseURL(srv.URL)

	if err := tg.Send(context.Background(), Criticalf("fill", "qty 1.5 @ 25.1")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got.path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %s", got.path)
	}
	text, _ := got.bodies[0]["text"].(string)
	if !strings.Contains(text, `qty 1\.5 @ 25\.1`) || got.bodies[0]["chat_id"] != "42" {
		t.Errorf("body = %v", got.bodies[0])
	}
}

type recorder struct {
	alerts []Alert
	err    error
}

func (r *recorder) Send(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti_SendsToAllAndJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{err: boom}, &recorder{}
	err := Multi{a, nil, b}.Send(context.Background(), Infof("t", "m"))
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
	if len(a.alerts) != 1 || len(b.alerts) != 1 {
		t.Errorf("deliveries a=%d b=%d", len(a.alerts), len(b.alerts))
	}
}

func TestMinLevel(t *testing.T) {
	r := &recorder{}
	n := MinLevel(AlertWarning, r)
	n.Send(context.Background(), Infof("skip", ""))
	n.Send(context.Background(), Warnf("keep", ""))
	n.Send(context.Background(), Criticalf("keep", ""))
	if len(r.alerts) != 2 {
		t.Errorf("delivered %d, want 2", len(r.alerts))
	}
}

func TestTelegramText(t *testing.T) {
	tests := []struct {
		alert Alert
		want  string
	}{
		{Alert{Level: AlertCritical, Title: "entry failed", Message: "code -2010", Symbol: "SOLUSDT"}, "🚨 *SOLUSDT entry failed*\n\ncode \\-2010"},
		{Alert{Level: AlertWarning, Title: "stale_reset"}, "⚠️ *stale\\_reset*\n\n"},
		{Alert{Level: "DEBUG", Title: "x", Message: "(y)"}, "ℹ️ *x*\n\n\\(y\\)"},
	}
	for _, tt := range tests {
		if got := telegramText(tt.alert); got != tt.want {
			t.Errorf("telegramText(%+v) = %q, want %q", tt.alert, got, tt.want)
		}
	}
}
