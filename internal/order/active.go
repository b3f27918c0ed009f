// Package order tracks the single in-flight entry order a symbol may have.
//
// The lifecycle is Empty -> Pending (intent recorded, placement in flight)
// -> Active (exchange confirmed, status known) -> Empty. A filled or stale
// entry is reset by the engine, which also cancels every open order on the
// exchange. All mutation happens on the engine goroutine; reads from the
// inspection API go through Snapshot.
package order

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// DefaultStaleAfter is how long a Pending or working Active entry may sit
// before it is abandoned.
const DefaultStaleAfter = 10 * time.Minute

// ErrSlotOccupied is returned by AddEntry when an entry already exists.
var ErrSlotOccupied = errors.New("order: entry slot occupied")

// State of the entry slot.
type State int

const (
	Empty State = iota
	Pending
	Active
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	}
	return "empty"
}

// Action tells the engine what a check concluded.
type Action int

const (
	Keep Action = iota
	ResetFilled
	ResetStale
)

func (a Action) String() string {
	switch a {
	case ResetFilled:
		return "reset_filled"
	case ResetStale:
		return "reset_stale"
	}
	return "keep"
}

// ActiveOrder is the entry slot for one symbol.
type ActiveOrder struct {
	mu     sync.RWMutex
	symbol string
	state  State
	intent model.OrderIntent
	trade  model.TradeInfo
}

// New returns an empty slot.
func New(symbol string) *ActiveOrder {
	return &ActiveOrder{symbol: symbol}
}

// AddEntry records a freshly built intent. The slot must be empty.
func (a *ActiveOrder) AddEntry(intent model.OrderIntent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Empty {
		return ErrSlotOccupied
	}
	a.state = Pending
	a.intent = intent
	a.trade = model.TradeInfo{}
	return nil
}

// UpdateFromEvent applies an exchange trade update to a Pending or Active
// slot. Only ENTRY-tagged orders touch the slot; anything else, and any
// update arriving while the slot is Empty, is logged and ignored. It reports
// whether the slot changed.
func (a *ActiveOrder) UpdateFromEvent(info model.TradeInfo) bool {
	if info.ClientOrderID.Tag != model.TagEntry {
		log.Printf("[order] %s: ignoring update for %s (%s)", a.symbol, info.ClientOrderID, info.Status)
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == Empty {
		log.Printf("[order] %s: no entry in flight, ignoring %s (%s)", a.symbol, info.ClientOrderID, info.Status)
		return false
	}
	a.state = Active
	a.trade = info
	return true
}

// Reconcile folds in an order fetched from the exchange. An Active entry
// with the same client order id takes the fetched status when it differs.
// A Pending entry whose intent the exchange already knows becomes Active.
func (a *ActiveOrder) Reconcile(fetched model.TradeInfo) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch a.state {
	case Active:
		if fetched.ClientOrderID != a.trade.ClientOrderID || fetched.Status == a.trade.Status {
			return false
		}
		log.Printf("[order] %s: reconcile %s %s -> %s", a.symbol, a.trade.ClientOrderID, a.trade.Status, fetched.Status)
		a.trade.Status = fetched.Status
		if fetched.OrderID != 0 {
			a.trade.OrderID = fetched.OrderID
		}
		return true
	case Pending:
		if fetched.ClientOrderID != a.intent.ClientOrderID {
			return false
		}
		log.Printf("[order] %s: reconcile %s pending -> %s", a.symbol, fetched.ClientOrderID, fetched.Status)
		a.state = Active
		a.trade = fetched
		return true
	}
	return false
}

// Check decides whether the slot should be reset at now. Filled entries are
// reset immediately; Pending entries and Active entries still working (NEW,
// PARTIALLY_FILLED) are reset once their recorded time is more than
// staleAfter away from now in either direction.
func (a *ActiveOrder) Check(now time.Time, staleAfter time.Duration) Action {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case Pending:
		if age(now, a.intent.SubmittedAt) > staleAfter {
			return ResetStale
		}
	case Active:
		if a.trade.Status == model.StatusFilled {
			return ResetFilled
		}
		if a.trade.Status.Working() && age(now, a.trade.EventTime) > staleAfter {
			return ResetStale
		}
	}
	return Keep
}

func age(now, t time.Time) time.Duration {
	d := now.Sub(t)
	if d < 0 {
		d = -d
	}
	return d
}

// Reset clears the slot.
func (a *ActiveOrder) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Empty
	a.intent = model.OrderIntent{}
	a.trade = model.TradeInfo{}
}

func (a *ActiveOrder) Symbol() string { return a.symbol }

func (a *ActiveOrder) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *ActiveOrder) IsEmpty() bool { return a.State() == Empty }

// Intent returns the pending intent, if the slot is Pending.
func (a *ActiveOrder) Intent() (model.OrderIntent, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.intent, a.state == Pending
}

// Trade returns the confirmed trade info, if the slot is Active.
func (a *ActiveOrder) Trade() (model.TradeInfo, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.trade, a.state == Active
}

// ClientOrderID returns the id of whatever occupies the slot.
func (a *ActiveOrder) ClientOrderID() (model.ClientOrderID, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	switch a.state {
	case Pending:
		return a.intent.ClientOrderID, true
	case Active:
		return a.trade.ClientOrderID, true
	}
	return model.ClientOrderID{}, false
}

// Snapshot is a point-in-time copy of the slot for inspection and publishing.
type Snapshot struct {
	Symbol string             `json:"symbol"`
	State  string             `json:"state"`
	Intent *model.OrderIntent `json:"intent,omitempty"`
	Trade  *model.TradeInfo   `json:"trade,omitempty"`
}

func (a *ActiveOrder) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Snapshot{Symbol: a.symbol, State: a.state.String()}
	switch a.state {
	case Pending:
		in := a.intent
		s.Intent = &in
	case Active:
		tr := a.trade
		s.Trade = &tr
	}
	return s
}
