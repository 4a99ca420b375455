package gateway

import "sync"

// replayEntry is one broadcast envelope retained for gap backfill.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer retains the last N envelopes of one channel so a
// reconnecting client can ask for the sequence range it missed.
// Sequence numbers are assigned monotonically by the broadcaster.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	written int64 // total pushes, entries wrap at written%cap
}

// NewReplayBuffer creates a buffer retaining capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push retains an envelope, evicting the oldest when full. The data is
// copied; the caller may reuse its slice.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.entries[rb.written%int64(len(rb.entries))] = replayEntry{Seq: seq, Data: cp}
	rb.written++
	rb.mu.Unlock()
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.retained()
}

func (rb *ReplayBuffer) retained() int {
	if rb.written < int64(len(rb.entries)) {
		return int(rb.written)
	}
	return len(rb.entries)
}

// Range returns retained envelopes with Seq in [fromSeq, toSeq], oldest
// first. Sequences already evicted are silently absent; the client falls
// back to a latest-state bootstrap when the range comes back short.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.retained()
	oldest := int64(0)
	if rb.written > int64(n) {
		oldest = rb.written - int64(n)
	}

	var out []replayEntry
	for i := int64(0); i < int64(n); i++ {
		e := rb.entries[(oldest+i)%int64(len(rb.entries))]
		if e.Seq > toSeq {
			break // seqs are monotonic, nothing further can match
		}
		if e.Seq >= fromSeq {
			out = append(out, e)
		}
	}
	return out
}
