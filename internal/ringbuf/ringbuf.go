// Package ringbuf provides a lock-free single-producer single-consumer
// ring buffer of price points. It sits between the feed reader goroutine
// and the fan-out loop so a burst of ticks never blocks the socket read.
package ringbuf

import (
	"math/bits"
	"sync/atomic"

	"marketpulse/internal/model"
)

// padding keeps the producer and consumer indices on separate cache lines.
type padding [64]byte

// Ring is an SPSC ring buffer. Exactly one goroutine may Push and exactly
// one may Pop; neither ever blocks. Capacity is a power of two so index
// wrapping is a single AND.
type Ring struct {
	slots []model.PricePoint
	mask  uint64

	_        padding
	writeIdx atomic.Uint64 // advanced only by the producer
	_        padding
	readIdx  atomic.Uint64 // advanced only by the consumer
	_        padding

	overflow atomic.Uint64
}

// New creates a ring with at least the requested capacity, rounded up to
// the next power of two (minimum 2).
func New(capacity int) *Ring {
	if capacity < 2 {
		capacity = 2
	}
	size := 1 << bits.Len(uint(capacity-1))
	return &Ring{
		slots: make([]model.PricePoint, size),
		mask:  uint64(size - 1),
	}
}

// Push stores a point and returns true, or returns false without writing
// when the ring is full.
func (r *Ring) Push(pt model.PricePoint) bool {
	w := r.writeIdx.Load()
	if w-r.readIdx.Load() == uint64(len(r.slots)) {
		r.overflow.Add(1)
		return false
	}
	r.slots[w&r.mask] = pt
	r.writeIdx.Store(w + 1)
	return true
}

// Pop removes and returns the oldest point, or false when the ring is empty.
func (r *Ring) Pop() (model.PricePoint, bool) {
	rd := r.readIdx.Load()
	if rd == r.writeIdx.Load() {
		return model.PricePoint{}, false
	}
	pt := r.slots[rd&r.mask]
	r.readIdx.Store(rd + 1)
	return pt, true
}

// Len returns the number of buffered points.
func (r *Ring) Len() int {
	return int(r.writeIdx.Load() - r.readIdx.Load())
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.slots)
}

// Overflow returns how many pushes were refused because the ring was full.
func (r *Ring) Overflow() uint64 {
	return r.overflow.Load()
}
