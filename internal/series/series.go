// Package series provides the bounded rolling price window that all
// indicator computation reads. One Series per symbol, owned exclusively by
// the pipeline's per-symbol state — no internal locking.
package series

import (
	"marketpulse/internal/model"
)

// DefaultCapacity is the retained window size when none is configured.
const DefaultCapacity = 50

// Series is a fixed-capacity circular buffer of PricePoints for one symbol.
// Timestamps are non-decreasing; the oldest point is evicted on overflow.
type Series struct {
	symbol string
	buf    []model.PricePoint
	pos    int // next write position
	full   bool
}

// New creates a Series for the given symbol. capacity <= 0 falls back to
// DefaultCapacity.
func New(symbol string, capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{
		symbol: symbol,
		buf:    make([]model.PricePoint, capacity),
	}
}

// Symbol returns the symbol this series tracks.
func (s *Series) Symbol() string { return s.symbol }

// Cap returns the fixed capacity.
func (s *Series) Cap() int { return len(s.buf) }

// Len returns the number of retained points.
func (s *Series) Len() int {
	if s.full {
		return len(s.buf)
	}
	return s.pos
}

// Append adds a point to the series. A point older than the last retained
// timestamp is rejected with OutOfOrderTimestamp; an equal timestamp
// replaces the last entry so redelivered ticks are idempotent. Eviction of
// the oldest point at capacity never blocks or errors.
func (s *Series) Append(p model.PricePoint) error {
	if last, ok := s.Last(); ok {
		if p.TS.Before(last.TS) {
			return model.NewError(model.KindOutOfOrderTimestamp,
				"timestamp older than last retained point")
		}
		if p.TS.Equal(last.TS) {
			s.buf[s.lastIndex()] = p
			return nil
		}
	}

	s.buf[s.pos] = p
	s.pos = (s.pos + 1) % len(s.buf)
	if s.pos == 0 && !s.full {
		s.full = true
	}
	return nil
}

// Last returns the most recent point, if any.
func (s *Series) Last() (model.PricePoint, bool) {
	if s.Len() == 0 {
		return model.PricePoint{}, false
	}
	return s.buf[s.lastIndex()], true
}

// Window returns the most recent n points oldest-first. Fewer than n are
// returned if the series holds less history — callers must check length.
func (s *Series) Window(n int) []model.PricePoint {
	count := s.Len()
	if n > count {
		n = count
	}
	if n <= 0 {
		return nil
	}
	out := make([]model.PricePoint, n)
	for i := 0; i < n; i++ {
		out[i] = s.buf[s.index(count-n+i)]
	}
	return out
}

// Prices returns the full retained window as prices, oldest-first. This is
// the slice indicator computation runs on: EMA is seeded by the first
// element, so all indicators of one snapshot must share this exact slice.
func (s *Series) Prices() []float64 {
	count := s.Len()
	out := make([]float64, count)
	for i := 0; i < count; i++ {
		out[i] = s.buf[s.index(i)].Price
	}
	return out
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (s *Series) index(logical int) int {
	if s.full {
		return (s.pos + logical) % len(s.buf)
	}
	return logical
}

func (s *Series) lastIndex() int {
	return s.index(s.Len() - 1)
}
