package gateway

import (
	"math"
	"sort"
	"sync"
)

// LatencyTracker keeps a sliding window of end-to-end latency samples and
// reports nearest-rank percentiles for the dashboard metrics frame.
type LatencyTracker struct {
	mu     sync.Mutex
	window []float64 // ms, ring-indexed by total%len
	total  int       // samples recorded overall
}

// NewLatencyTracker creates a tracker over the last capacity samples.
func NewLatencyTracker(capacity int) *LatencyTracker {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LatencyTracker{window: make([]float64, capacity)}
}

// Record adds one latency sample in milliseconds.
func (lt *LatencyTracker) Record(latencyMs float64) {
	lt.mu.Lock()
	lt.window[lt.total%len(lt.window)] = latencyMs
	lt.total++
	lt.mu.Unlock()
}

// Count returns the number of retained samples.
func (lt *LatencyTracker) Count() int {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	return lt.retained()
}

func (lt *LatencyTracker) retained() int {
	if lt.total < len(lt.window) {
		return lt.total
	}
	return len(lt.window)
}

// Percentiles returns the p50/p95/p99 of the retained samples in
// milliseconds, or zeros when nothing has been recorded.
func (lt *LatencyTracker) Percentiles() (p50, p95, p99 float64) {
	lt.mu.Lock()
	n := lt.retained()
	sorted := make([]float64, n)
	copy(sorted, lt.window[:n])
	lt.mu.Unlock()

	if n == 0 {
		return 0, 0, 0
	}
	sort.Float64s(sorted)
	return rank(sorted, 0.50), rank(sorted, 0.95), rank(sorted, 0.99)
}

// rank returns the nearest-rank percentile of a sorted slice.
func rank(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
