package order

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
	"github.com/shopspring/decimal"
)

var now = time.UnixMilli(1690000000000).UTC()

func intent(at time.Time) model.OrderIntent {
	return model.OrderIntent{
		Symbol:        "SOLUSDT",
		ClientOrderID: model.NewClientOrderID("1690000000000", model.TagEntry),
		Side:          model.SideLong,
		Type:          model.OrderTypeLimit,
		Quantity:      decimal.RequireFromString("3.5"),
		LimitPrice:    decimal.RequireFromString("21.35"),
		SubmittedAt:   at,
	}
}

func trade(raw string, st model.OrderStatus, at time.Time) model.TradeInfo {
	return model.TradeInfo{
		ClientOrderID: model.ParseClientOrderID(raw),
		OrderID:       7,
		OrderType:     model.OrderTypeLimit,
		Status:        st,
		EventTime:     at,
		Quantity:      3.5,
		Price:         21.35,
		Side:          model.SideLong,
	}
}

func TestActiveOrder_Transitions(t *testing.T) {
	a := New("SOLUSDT")
	if a.State() != Empty {
		t.Fatalf("new slot should be empty, got %s", a.State())
	}

	in := intent(now)
	if err := a.AddEntry(in); err != nil {
		t.Fatal(err)
	}
	got, ok := a.Intent()
	if !ok || got.ClientOrderID != in.ClientOrderID || a.State() != Pending {
		t.Fatalf("expected Pending(intent), got %s %+v", a.State(), got)
	}
	if err := a.AddEntry(in); !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("second AddEntry: expected ErrSlotOccupied, got %v", err)
	}

	if !a.UpdateFromEvent(trade("1690000000000-ENTRY", model.StatusNew, now)) {
		t.Fatal("ENTRY event should update the slot")
	}
	tr, ok := a.Trade()
	if !ok || tr.Status != model.StatusNew || a.State() != Active {
		t.Fatalf("expected Active(NEW), got %s %+v", a.State(), tr)
	}
	if act := a.Check(now, DefaultStaleAfter); act != Keep {
		t.Fatalf("fresh NEW order: expected keep, got %s", act)
	}

	a.UpdateFromEvent(trade("1690000000000-ENTRY", model.StatusFilled, now))
	if act := a.Check(now, DefaultStaleAfter); act != ResetFilled {
		t.Fatalf("filled: expected reset_filled, got %s", act)
	}
	a.Reset()
	if !a.IsEmpty() {
		t.Fatal("reset should empty the slot")
	}
	if _, ok := a.ClientOrderID(); ok {
		t.Fatal("empty slot has no client order id")
	}
}

// activate moves a fresh slot to Active with status st.
func activate(a *ActiveOrder, st model.OrderStatus) {
	_ = a.AddEntry(intent(now))
	a.UpdateFromEvent(trade("1690000000000-ENTRY", st, now))
}

func TestActiveOrder_EmptyIgnoresEvents(t *testing.T) {
	for _, st := range []model.OrderStatus{model.StatusNew, model.StatusCanceled, model.StatusFilled} {
		a := New("SOLUSDT")
		if a.UpdateFromEvent(trade("1690000000000-ENTRY", st, now)) {
			t.Errorf("%s on an empty slot reported a change", st)
		}
		if a.State() != Empty {
			t.Errorf("%s on an empty slot: state %s, want empty", st, a.State())
		}
	}

	// a late cancel after a stale reset must not occupy the slot again
	a := New("SOLUSDT")
	activate(a, model.StatusNew)
	a.Reset()
	if a.UpdateFromEvent(trade("1690000000000-ENTRY", model.StatusCanceled, now)) || !a.IsEmpty() {
		t.Fatalf("late cancel re-occupied the slot: %s", a.State())
	}
}

func TestActiveOrder_IgnoresOtherRoles(t *testing.T) {
	a := New("SOLUSDT")
	_ = a.AddEntry(intent(now))
	for _, raw := range []string{"1690000000000-EQUALIZE_QUOTE", "web_manual", "1690000000000-STOP"} {
		if a.UpdateFromEvent(trade(raw, model.StatusFilled, now)) {
			t.Errorf("%s should be ignored", raw)
		}
	}
	if a.State() != Pending {
		t.Fatalf("slot should still be pending, got %s", a.State())
	}
}

func TestActiveOrder_Staleness(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(a *ActiveOrder)
		at     time.Time
		expect Action
	}{
		{"empty", func(a *ActiveOrder) {}, now.Add(time.Hour), Keep},
		{"pending fresh", func(a *ActiveOrder) { _ = a.AddEntry(intent(now)) }, now.Add(10 * time.Minute), Keep},
		{"pending stale", func(a *ActiveOrder) { _ = a.AddEntry(intent(now)) }, now.Add(10*time.Minute + time.Second), ResetStale},
		{"pending future-dated", func(a *ActiveOrder) { _ = a.AddEntry(intent(now)) }, now.Add(-11 * time.Minute), ResetStale},
		{"partial stale", func(a *ActiveOrder) { activate(a, model.StatusPartiallyFilled) }, now.Add(11 * time.Minute), ResetStale},
		{"new fresh", func(a *ActiveOrder) { activate(a, model.StatusNew) }, now.Add(9 * time.Minute), Keep},
		{"canceled old", func(a *ActiveOrder) { activate(a, model.StatusCanceled) }, now.Add(time.Hour), Keep},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := New("SOLUSDT")
			tc.setup(a)
			if got := a.Check(tc.at, DefaultStaleAfter); got != tc.expect {
				t.Errorf("Check = %s, want %s", got, tc.expect)
			}
		})
	}
}

func TestActiveOrder_Reconcile(t *testing.T) {
	a := New("SOLUSDT")
	_ = a.AddEntry(intent(now))

	// unrelated order leaves pending untouched
	if a.Reconcile(trade("999-ENTRY", model.StatusNew, now)) {
		t.Fatal("unrelated order should not reconcile")
	}

	// exchange knows the pending intent
	if !a.Reconcile(trade("1690000000000-ENTRY", model.StatusNew, now)) || a.State() != Active {
		t.Fatalf("pending should become active, got %s", a.State())
	}

	// same status: no change
	if a.Reconcile(trade("1690000000000-ENTRY", model.StatusNew, now)) {
		t.Fatal("same status should not count as a change")
	}

	// exchange says filled while the cache still says NEW
	if !a.Reconcile(trade("1690000000000-ENTRY", model.StatusFilled, now)) {
		t.Fatal("status change should reconcile")
	}
	if tr, _ := a.Trade(); tr.Status != model.StatusFilled {
		t.Fatalf("expected FILLED after reconcile, got %s", tr.Status)
	}
	if a.Check(now, DefaultStaleAfter) != ResetFilled {
		t.Fatal("reconciled fill should trigger reset")
	}
}

func TestActiveOrder_Snapshot(t *testing.T) {
	a := New("SOLUSDT")
	_ = a.AddEntry(intent(now))

	b, err := json.Marshal(a.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatal(err)
	}
	if out["state"] != "pending" {
		t.Errorf("state=%v", out["state"])
	}
	in, ok := out["intent"].(map[string]any)
	if !ok || in["client_order_id"] != "1690000000000-ENTRY" || in["side"] != "Long" {
		t.Errorf("intent=%v", out["intent"])
	}
	if _, ok := out["trade"]; ok {
		t.Error("pending snapshot should omit trade")
	}
}
