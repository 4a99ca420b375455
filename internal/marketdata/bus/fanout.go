// Package bus fans one price stream out to several independent consumers
// (pipeline, Redis writer, SQLite writer). Slow consumers lose points
// rather than stall the others.
package bus

import (
	"context"
	"log"
	"sync"

	"marketpulse/internal/model"
)

// FanOut broadcasts every input point to all subscriber channels. A send
// to a full subscriber channel is dropped for that subscriber only.
type FanOut struct {
	mu      sync.RWMutex
	subs    []chan model.PricePoint
	bufSize int

	// OnDrop is called with the subscriber index each time a point is
	// dropped for that subscriber (optional, set before Run).
	OnDrop func(subscriberIdx int)
}

// New creates a FanOut whose subscriber channels buffer outputBufferSize points.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe registers a new consumer and returns its channel. The channel
// is closed when Run exits. Subscribe before calling Run.
func (f *FanOut) Subscribe() <-chan model.PricePoint {
	ch := make(chan model.PricePoint, f.bufSize)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Run broadcasts input points until ctx is cancelled or input closes, then
// closes every subscriber channel.
func (f *FanOut) Run(ctx context.Context, input <-chan model.PricePoint) {
	defer f.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-input:
			if !ok {
				return
			}
			f.broadcast(pt)
		}
	}
}

func (f *FanOut) broadcast(pt model.PricePoint) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for i, ch := range f.subs {
		select {
		case ch <- pt:
		default:
			if f.OnDrop != nil {
				f.OnDrop(i)
			} else {
				log.Printf("[bus] subscriber %d full, dropping %s point", i, pt.Symbol)
			}
		}
	}
}

func (f *FanOut) closeAll() {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, ch := range f.subs {
		close(ch)
	}
}

// ChannelStat is the fill state of one subscriber channel.
type ChannelStat struct {
	Len int
	Cap int
}

// ChannelStats reports the fill state of every subscriber channel, in
// subscription order. Feeds the saturation gauges.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.subs))
	for i, ch := range f.subs {
		stats[i] = ChannelStat{Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
