package portfolio

import (
	"math"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFromBalances(t *testing.T) {
	a := FromBalances([]model.Balance{
		{Asset: "BNB", Free: d("1")},
		{Asset: "SOL", Free: d("10.5"), Locked: d("0.5")},
		{Asset: "USDT", Free: d("250"), Locked: d("0")},
	}, "SOL", "USDT")
	if !a.FreeBase.Equal(d("10.5")) || !a.LockedBase.Equal(d("0.5")) || !a.FreeQuote.Equal(d("250")) {
		t.Fatalf("unexpected assets %s", a)
	}
}

func TestTradeQty(t *testing.T) {
	a := Assets{FreeQuote: d("1000"), FreeBase: d("12.345")}
	cases := []struct {
		name string
		side model.Side
		pct  float64
		want string
	}{
		// 1000 / 21.37 * 0.95 = 44.454...
		{"long", model.SideLong, 95, "44.45"},
		// 12.345 * 0.95 = 11.72775
		{"short", model.SideShort, 95, "11.72"},
		{"long all-in", model.SideLong, 100, "46.79"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := a.TradeQty(tc.side, d("21.37"), tc.pct)
			if !got.Equal(d(tc.want)) {
				t.Errorf("TradeQty = %s, want %s", got, tc.want)
			}
		})
	}
	if q := a.TradeQty(model.SideLong, decimal.Zero, 95); !q.IsZero() {
		t.Errorf("zero price should size zero, got %s", q)
	}
}

func TestLimitPrice(t *testing.T) {
	if got := LimitPrice(21.3789); !got.Equal(d("21.37")) {
		t.Errorf("LimitPrice = %s", got)
	}
}

func TestEqualizePlan(t *testing.T) {
	// 1000 USDT at 20 = 50 SOL, plus 10 SOL: 30 each side
	a := Assets{FreeQuote: d("1000"), FreeBase: d("10")}
	plan := a.EqualizePlan(d("20"), d("0.1"))
	if len(plan) != 1 || plan[0].Tag != model.TagEqualizeQuote || plan[0].Side != model.SideLong || !plan[0].Qty.Equal(d("20")) {
		t.Fatalf("unexpected plan %+v", plan)
	}

	a = Assets{FreeQuote: d("200"), FreeBase: d("50")}
	plan = a.EqualizePlan(d("20"), d("0.1"))
	if len(plan) != 1 || plan[0].Tag != model.TagEqualizeBase || !plan[0].Qty.Equal(d("20")) {
		t.Fatalf("unexpected plan %+v", plan)
	}

	a = Assets{FreeQuote: d("200"), FreeBase: d("10.05")}
	if plan = a.EqualizePlan(d("20"), d("0.1")); len(plan) != 0 {
		t.Fatalf("balanced within min qty should be a no-op, got %+v", plan)
	}
}

func TestBook_PartialUpdate(t *testing.T) {
	b := NewBook("SOL", "USDT")
	b.Update([]model.Balance{{Asset: "SOL", Free: d("3")}, {Asset: "USDT", Free: d("100")}})
	b.Update([]model.Balance{{Asset: "USDT", Free: d("40"), Locked: d("60")}})
	a := b.Get()
	if !a.FreeBase.Equal(d("3")) || !a.FreeQuote.Equal(d("40")) || !a.LockedQuote.Equal(d("60")) {
		t.Fatalf("partial update lost data: %s", a)
	}
}

func TestPnLTracker(t *testing.T) {
	p := NewPnLTracker()
	now := time.Now()
	p.Record(Fill{Side: model.SideLong, Qty: 2, Price: 10, Timestamp: now})
	p.Record(Fill{Side: model.SideLong, Qty: 2, Price: 14, Timestamp: now})
	realized := p.Record(Fill{Side: model.SideShort, Qty: 3, Price: 15, Timestamp: now})
	// avg 12, sold 3 at 15
	if math.Abs(realized-9) > 1e-9 {
		t.Fatalf("realized = %v, want 9", realized)
	}
	s := p.Summary(16)
	if math.Abs(s.Unrealized-4) > 1e-9 || math.Abs(s.Total-13) > 1e-9 || s.Fills != 3 || s.OpenQty != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}

	// overselling only realizes tracked inventory
	realized = p.Record(Fill{Side: model.SideShort, Qty: 5, Price: 12})
	if math.Abs(realized) > 1e-9 || p.Summary(0).OpenQty != 0 {
		t.Fatalf("oversell realized %v open %v", realized, p.Summary(0).OpenQty)
	}
}

func TestRiskManager(t *testing.T) {
	rm := NewRiskManager(RiskLimits{MinNotional: d("5"), MaxNotional: d("1000"), MaxDrawdownPct: 10}, 100)

	cases := []struct {
		qty, price string
		ok         bool
		reason     string
	}{
		{"1", "10", true, ""},
		{"0", "10", false, "zero quantity"},
		{"0.1", "10", false, "below min notional"},
		{"200", "10", false, "above max notional"},
	}
	for _, tc := range cases {
		ok, reason := rm.CanTrade(d(tc.qty), d(tc.price))
		if ok != tc.ok || reason != tc.reason {
			t.Errorf("CanTrade(%s, %s) = %v %q", tc.qty, tc.price, ok, reason)
		}
	}

	rm.RecordPnL(20) // peak 120
	rm.RecordPnL(-10) // 8.3% off peak
	if ok, reason := rm.CanTrade(d("1"), d("10")); !ok {
		t.Fatalf("drawdown under limit should trade, got %q", reason)
	}
	rm.RecordPnL(-5) // 12.5% off peak
	if ok, reason := rm.CanTrade(d("1"), d("10")); ok || reason != "max drawdown exceeded" {
		t.Fatalf("expected drawdown block, got %v %q", ok, reason)
	}
	if st := rm.Status(); st.PeakEquity != 120 || st.Equity != 105 {
		t.Errorf("unexpected status %+v", st)
	}
}
