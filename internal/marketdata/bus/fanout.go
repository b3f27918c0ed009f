// Package bus fans one closed-candle stream out to several consumers.
package bus

import (
	"context"
	"log"
	"sync"

	"github.com/0xBreath/binance-engine-sub000/internal/model"
)

type subscriber struct {
	name     string
	ch       chan model.Candle
	blocking bool
}

// FanOut broadcasts candles from one input channel to N subscribers.
//
// Lossy subscribers (Subscribe) drop a candle when their buffer is full so a
// slow archiver cannot stall the pipeline. Blocking subscribers
// (SubscribeBlocking) always receive every candle in order; the engine must
// be one of these since a missed bar corrupts the Kagi state.
type FanOut struct {
	mu      sync.RWMutex
	subs    []subscriber
	bufSize int

	// OnDrop is called with the subscriber name when a candle is dropped.
	OnDrop func(name string)
}

// New creates a FanOut whose subscriber channels have the given buffer.
func New(bufferSize int) *FanOut {
	return &FanOut{bufSize: bufferSize}
}

// Subscribe adds a lossy subscriber.
func (f *FanOut) Subscribe(name string) <-chan model.Candle {
	return f.add(name, false)
}

// SubscribeBlocking adds a subscriber that never misses a candle.
func (f *FanOut) SubscribeBlocking(name string) <-chan model.Candle {
	return f.add(name, true)
}

func (f *FanOut) add(name string, blocking bool) <-chan model.Candle {
	ch := make(chan model.Candle, f.bufSize)
	f.mu.Lock()
	f.subs = append(f.subs, subscriber{name: name, ch: ch, blocking: blocking})
	f.mu.Unlock()
	return ch
}

// Run forwards input to every subscriber until ctx is cancelled or input
// closes, then closes all subscriber channels.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Candle) {
	defer func() {
		f.mu.RLock()
		for _, s := range f.subs {
			close(s.ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for _, s := range f.subs {
				if s.blocking {
					select {
					case s.ch <- c:
					case <-ctx.Done():
						f.mu.RUnlock()
						return
					}
					continue
				}
				select {
				case s.ch <- c:
				default:
					if f.OnDrop != nil {
						f.OnDrop(s.name)
					} else {
						log.Printf("[bus] %s full, dropping candle %s", s.name, c.Key())
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the fill level of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports buffer saturation per subscriber.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.subs))
	for i, s := range f.subs {
		stats[i] = ChannelStat{Name: s.name, Len: len(s.ch), Cap: cap(s.ch)}
	}
	return stats
}
