package strategy

import (
	"fmt"

	"github.com/0xBreath/binance-engine-sub000/internal/indicator"
	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

// Crossover implements a WMA crossover strategy.
//
// Long: fast WMA crosses above slow WMA.
// Short: fast WMA crosses below slow WMA.
type Crossover struct {
	fastPeriod int
	slowPeriod int
	fast       *indicator.WMAIndicator
	slow       *indicator.WMAIndicator

	// Previous WMA values for crossover detection
	prevFast float64
	prevSlow float64
	ready    bool
}

// NewCrossover creates a crossover strategy. fast < slow (e.g., 5 and 20).
func NewCrossover(fast, slow int, src model.Source) *Crossover {
	return &Crossover{
		fastPeriod: fast,
		slowPeriod: slow,
		fast:       indicator.NewWMA(fast, src),
		slow:       indicator.NewWMA(slow, src),
	}
}

func (s *Crossover) Name() string {
	return fmt.Sprintf("crossover_%d_%d", s.fastPeriod, s.slowPeriod)
}

func (s *Crossover) Warmup() int { return s.slowPeriod + 1 }

func (s *Crossover) ProcessCandle(c model.Candle) (Signal, error) {
	s.fast.Update(c)
	s.slow.Update(c)

	// Need enough data for both averages
	if !s.slow.Ready() {
		return Signal{}, nil
	}

	fast, slow := s.fast.Value(), s.slow.Value()
	defer func() {
		s.prevFast = fast
		s.prevSlow = slow
		s.ready = true
	}()

	if !s.ready {
		return Signal{}, nil
	}

	switch {
	case s.prevFast <= s.prevSlow && fast > slow:
		return signalAt(Long, c), nil
	case s.prevFast >= s.prevSlow && fast < slow:
		return signalAt(Short, c), nil
	}
	return Signal{}, nil
}
