package indicator

import (
	"fmt"
	"strings"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// Direction of the Kagi line.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// KagiMode selects which candle prices drive extension and reversal.
type KagiMode int

const (
	// KagiModeHighLow extends on the high (low) and reverses on the low (high).
	KagiModeHighLow KagiMode = iota
	// KagiModeClose extends and reverses on a single source price.
	KagiModeClose
)

func (m KagiMode) String() string {
	if m == KagiModeClose {
		return "close"
	}
	return "highlow"
}

// ParseKagiMode accepts "highlow" (also "hl") and "close".
func ParseKagiMode(s string) (KagiMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "highlow", "hl", "high_low":
		return KagiModeHighLow, nil
	case "close":
		return KagiModeClose, nil
	}
	return 0, fmt.Errorf("unknown kagi mode %q", s)
}

// Kagi is a reversal line: the last extreme seen in the current direction.
type Kagi struct {
	Direction Direction
	Line      float64
}

func (k Kagi) String() string {
	return fmt.Sprintf("kagi{%s %.4f}", k.Direction, k.Line)
}

// Update returns the state after observing c. The line first extends to a
// new extreme in the current direction, then reverses when price has moved
// at least rev against the (possibly extended) line. Both can happen on the
// same candle. In close mode src supplies the single price used for both.
func (k Kagi) Update(rev float64, c model.Candle, mode KagiMode, src model.Source) Kagi {
	hi, lo := c.High, c.Low
	if mode == KagiModeClose {
		p := src.Price(c)
		hi, lo = p, p
	}

	next := k
	switch k.Direction {
	case Up:
		if hi > next.Line {
			next.Line = hi
		}
		if next.Line-lo >= rev {
			next = Kagi{Direction: Down, Line: lo}
		}
	case Down:
		if lo < next.Line {
			next.Line = lo
		}
		if hi-next.Line >= rev {
			next = Kagi{Direction: Up, Line: hi}
		}
	}
	return next
}

// KagiTracker owns the committed Kagi state for one symbol.
type KagiTracker struct {
	rev    float64
	mode   KagiMode
	src    model.Source
	state  Kagi
	seeded bool
}

// NewKagiTracker creates an unseeded tracker. src is only read in close mode.
func NewKagiTracker(rev float64, mode KagiMode, src model.Source) *KagiTracker {
	return &KagiTracker{rev: rev, mode: mode, src: src}
}

// Seed starts the line at the candle's low, pointing down.
func (t *KagiTracker) Seed(c model.Candle) {
	t.SeedState(Kagi{Direction: Down, Line: c.Low})
}

// SeedState installs an externally supplied state.
func (t *KagiTracker) SeedState(k Kagi) {
	t.state = k
	t.seeded = true
}

func (t *KagiTracker) Seeded() bool      { return t.seeded }
func (t *KagiTracker) State() Kagi       { return t.state }
func (t *KagiTracker) Reversal() float64 { return t.rev }
func (t *KagiTracker) Mode() KagiMode    { return t.mode }

// Next computes the state for c without committing it.
func (t *KagiTracker) Next(c model.Candle) Kagi {
	return t.state.Update(t.rev, c, t.mode, t.src)
}

// Commit replaces the tracked state.
func (t *KagiTracker) Commit(k Kagi) { t.state = k }

// Advance computes and commits the state for c, returning the previous and
// new state. An unseeded tracker seeds from c first.
func (t *KagiTracker) Advance(c model.Candle) (prev, next Kagi) {
	if !t.seeded {
		t.Seed(c)
	}
	prev = t.state
	next = t.Next(c)
	t.Commit(next)
	return prev, next
}

// Reset forgets the state; the next Advance reseeds.
func (t *KagiTracker) Reset() {
	t.state = Kagi{}
	t.seeded = false
}
