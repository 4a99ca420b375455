package gateway

import (
	"fmt"
	"testing"
)

func fillBuffer(rb *ReplayBuffer, n int64) {
	for seq := int64(1); seq <= n; seq++ {
		rb.Push(seq, []byte(fmt.Sprintf(`{"channel":"pub:price:BTC-USD","channel_seq":%d}`, seq)))
	}
}

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	fillBuffer(rb, 10)

	got := rb.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5 envelopes, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestReplayBuffer_EvictsOldest(t *testing.T) {
	rb := NewReplayBuffer(5)
	fillBuffer(rb, 8) // seqs 1-3 fall off

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	got := rb.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5 retained envelopes, got %d", len(got))
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("retained range [%d..%d], want [4..8]", got[0].Seq, got[4].Seq)
	}
}

func TestReplayBuffer_CopiesData(t *testing.T) {
	rb := NewReplayBuffer(10)
	payload := []byte(`{"price":50000}`)
	rb.Push(1, payload)
	payload[2] = 'X' // caller reuses its slice

	got := rb.Range(1, 1)
	if len(got) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(got))
	}
	if string(got[0].Data) != `{"price":50000}` {
		t.Errorf("stored data mutated by caller: %s", got[0].Data)
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range should return 0, got %d", len(got))
	}
}
