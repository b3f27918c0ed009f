package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_ObserveCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveCall("POST /api/v3/order", 40*time.Millisecond, nil)
	m.ObserveCall("POST /api/v3/order", 90*time.Millisecond, errors.New("boom"))
	m.SignalsTotal.WithLabelValues("long").Inc()

	if n := testutil.CollectAndCount(m.ExchangeCallDur); n != 2 {
		t.Errorf("histogram series = %d, want 2 (ok and error)", n)
	}
	if v := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("long")); v != 1 {
		t.Errorf("signals = %v", v)
	}
}

func TestMetrics_IsolatedRegistries(t *testing.T) {
	// registering twice on separate registries must not panic
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func fixedHealth() *HealthStatus {
	h := NewHealthStatus()
	start := time.Unix(1690000000, 0)
	h.StartedAt = start
	h.now = func() time.Time { return start.Add(90 * time.Second) }
	return h
}

func TestHealth_Report(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h *HealthStatus)
		want  string
	}{
		{"all up", func(h *HealthStatus) {
			h.SetStreamConnected(true)
			h.SetExchangeOK(true)
		}, "healthy"},
		{"redis down", func(h *HealthStatus) {
			h.SetStreamConnected(true)
			h.SetExchangeOK(true)
			h.RedisEnabled = true
		}, "degraded"},
		{"stream down", func(h *HealthStatus) {
			h.SetExchangeOK(true)
		}, "degraded"},
		{"nothing up", func(h *HealthStatus) {}, "unhealthy"},
	}
	for _, tc := range cases {
		h := fixedHealth()
		tc.setup(h)
		if got := h.Report().Status; got != tc.want {
			t.Errorf("%s: status = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestServer_Endpoints(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.CandlesTotal.Add(3)

	h := fixedHealth()
	h.SetStreamConnected(true)
	h.SetExchangeOK(true)
	h.SetLastCandleTime(time.Unix(1690000060, 0))
	srv := NewServer(":0", h, reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz code = %d", rec.Code)
	}
	var r Report
	if err := json.Unmarshal(rec.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Status != "healthy" || r.Uptime != "1m30s" || r.CandleAge != "30s" || r.RedisConnected != nil {
		t.Errorf("report = %+v", r)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "dreamrunner_candles_total 3") {
		t.Errorf("metrics output missing candle counter:\n%s", rec.Body.String())
	}
}
