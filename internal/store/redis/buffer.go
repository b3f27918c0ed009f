package redis

import (
	"context"
	"log"
	"sync"
)

type writeKind int

const (
	writeSignal writeKind = iota
	writeActiveOrder
	writeCandle
)

type pendingWrite struct {
	kind   writeKind
	symbol string
	data   []byte
}

// buffer holds writes rejected while the breaker was open and replays them
// when it closes. When full the oldest write is dropped.
type buffer struct {
	p *Publisher

	mu      sync.Mutex
	pending []pendingWrite
	max     int

	// OnFlush is called after a replay with the number of writes sent.
	OnFlush func(count int)
}

func newBuffer(p *Publisher, max int) *buffer {
	b := &buffer{p: p, max: max}
	prev := p.cb.OnStateChange
	p.cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go b.flush()
		}
	}
	return b
}

func (b *buffer) add(w pendingWrite) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pending) >= b.max {
		b.pending = b.pending[1:]
	}
	b.pending = append(b.pending, w)
}

func (b *buffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *buffer) flush() {
	b.mu.Lock()
	todo := b.pending
	b.pending = nil
	b.mu.Unlock()
	if len(todo) == 0 {
		return
	}

	sent := 0
	for _, w := range todo {
		if err := b.p.write(context.Background(), w.kind, w.symbol, w.data); err != nil {
			log.Printf("[redis] replay %s write failed: %v", w.symbol, err)
			continue
		}
		sent++
	}
	log.Printf("[redis] replayed %d/%d buffered writes", sent, len(todo))
	if b.OnFlush != nil {
		b.OnFlush(sent)
	}
}
