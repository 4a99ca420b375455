// Package agg coalesces raw feed ticks into one price point per symbol
// per second, taming burst rates before the analysis path.
package agg

import (
	"context"
	"log"
	"sync"
	"time"

	"marketpulse/internal/model"
)

// bucketState accumulates one symbol's ticks for the current second.
type bucketState struct {
	second int64 // Unix second of this bucket
	point  model.PricePoint
}

// Aggregator reduces a tick stream to 1-second price points: the last
// trade price of the second with the second's summed volume, stamped at
// the bucket boundary.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[string]*bucketState // key = symbol

	sweepEvery time.Duration

	// OnDroppedTick fires for every late tick discarded. Optional.
	OnDroppedTick func()
}

// New creates an Aggregator.
func New() *Aggregator {
	return &Aggregator{
		buckets:    make(map[string]*bucketState),
		sweepEvery: 100 * time.Millisecond,
	}
}

// Run consumes ticks from tickCh and emits coalesced points on outCh.
// Blocks until ctx is cancelled or tickCh closes; open buckets are
// flushed on the way out.
func (a *Aggregator) Run(ctx context.Context, tickCh <-chan model.PricePoint, outCh chan<- model.PricePoint) {
	sweep := time.NewTicker(a.sweepEvery)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			a.flush(outCh, nil)
			return

		case tick, ok := <-tickCh:
			if !ok {
				a.flush(outCh, nil)
				return
			}
			if !a.ingest(tick, outCh) && a.OnDroppedTick != nil {
				a.OnDroppedTick()
			}

		case <-sweep.C:
			// Emit buckets whose second has passed, so a quiet symbol
			// still produces its point without waiting for the next tick.
			now := time.Now().Unix()
			a.flush(outCh, func(b *bucketState) bool { return b.second < now })
		}
	}
}

// ingest folds one tick into its bucket, finalizing the previous bucket
// when the second rolls over. Reports false for late ticks, which are
// dropped.
func (a *Aggregator) ingest(tick model.PricePoint, outCh chan<- model.PricePoint) bool {
	second := tick.TS.Unix()

	a.mu.Lock()
	defer a.mu.Unlock()

	b, open := a.buckets[tick.Symbol]
	if open {
		switch {
		case second < b.second:
			return false
		case second > b.second:
			a.emit(b, outCh)
			open = false
		}
	}

	if !open {
		a.buckets[tick.Symbol] = &bucketState{
			second: second,
			point: model.PricePoint{
				Symbol: tick.Symbol,
				Price:  tick.Price,
				Volume: tick.Volume,
				TS:     time.Unix(second, 0).UTC(),
			},
		}
		return true
	}

	b.point.Price = tick.Price
	b.point.Volume += tick.Volume
	return true
}

// flush emits and removes every bucket matching the predicate (nil
// matches all).
func (a *Aggregator) flush(outCh chan<- model.PricePoint, match func(*bucketState) bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for symbol, b := range a.buckets {
		if match == nil || match(b) {
			a.emit(b, outCh)
			delete(a.buckets, symbol)
		}
	}
}

// emit forwards a finalized point without blocking the aggregation loop.
func (a *Aggregator) emit(b *bucketState, outCh chan<- model.PricePoint) {
	select {
	case outCh <- b.point:
	default:
		log.Printf("[agg] output channel full, dropping %s point ts=%v", b.point.Symbol, b.point.TS)
	}
}
