package series

import (
	"testing"
	"time"

	"marketpulse/internal/model"
)

func point(symbol string, price float64, sec int64) model.PricePoint {
	return model.PricePoint{
		Symbol: symbol,
		Price:  price,
		Volume: 10,
		TS:     time.Unix(1700000000+sec, 0).UTC(),
	}
}

func TestSeries_AppendAndLen(t *testing.T) {
	s := New("BTC-USD", 5)
	if s.Len() != 0 {
		t.Fatalf("expected empty series, got len=%d", s.Len())
	}

	for i := 0; i < 3; i++ {
		if err := s.Append(point("BTC-USD", 100+float64(i), int64(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("expected len=3, got %d", s.Len())
	}

	last, ok := s.Last()
	if !ok || last.Price != 102 {
		t.Errorf("expected last price 102, got %v (ok=%v)", last.Price, ok)
	}
}

func TestSeries_CapacityEviction(t *testing.T) {
	// Appending 60 points into capacity 50 leaves exactly the last 50,
	// oldest-first.
	s := New("ETH-USD", 50)
	for i := 0; i < 60; i++ {
		if err := s.Append(point("ETH-USD", float64(i), int64(i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if s.Len() != 50 {
		t.Fatalf("expected len=50 after 60 appends, got %d", s.Len())
	}

	prices := s.Prices()
	if len(prices) != 50 {
		t.Fatalf("expected 50 prices, got %d", len(prices))
	}
	for i, p := range prices {
		want := float64(10 + i) // points 10..59 survive
		if p != want {
			t.Fatalf("price[%d]: got %v, want %v", i, p, want)
		}
	}
}

func TestSeries_RejectsOutOfOrder(t *testing.T) {
	s := New("BTC-USD", 10)
	s.Append(point("BTC-USD", 100, 10))

	err := s.Append(point("BTC-USD", 99, 5))
	if err == nil {
		t.Fatal("expected error for out-of-order timestamp")
	}
	if model.KindOf(err) != model.KindOutOfOrderTimestamp {
		t.Errorf("expected OutOfOrderTimestamp, got %v", model.KindOf(err))
	}
	if s.Len() != 1 {
		t.Errorf("rejected append must not grow the series: len=%d", s.Len())
	}
}

func TestSeries_EqualTimestampReplacesLast(t *testing.T) {
	// Redelivering the same tick must be idempotent: series state after a
	// duplicate append equals the state after a single append.
	s := New("BTC-USD", 10)
	s.Append(point("BTC-USD", 100, 1))
	s.Append(point("BTC-USD", 101, 2))

	if err := s.Append(point("BTC-USD", 101, 2)); err != nil {
		t.Fatalf("duplicate append: %v", err)
	}
	if s.Len() != 2 {
		t.Errorf("expected len=2 after duplicate, got %d", s.Len())
	}

	// A revised price at the same timestamp overwrites rather than appends.
	if err := s.Append(point("BTC-USD", 105, 2)); err != nil {
		t.Fatalf("revision append: %v", err)
	}
	last, _ := s.Last()
	if last.Price != 105 {
		t.Errorf("expected revised last price 105, got %v", last.Price)
	}
	if s.Len() != 2 {
		t.Errorf("expected len=2 after revision, got %d", s.Len())
	}
}

func TestSeries_WindowOldestFirst(t *testing.T) {
	s := New("BTC-USD", 5)
	for i := 0; i < 5; i++ {
		s.Append(point("BTC-USD", float64(100+i), int64(i)))
	}

	w := s.Window(3)
	if len(w) != 3 {
		t.Fatalf("expected window of 3, got %d", len(w))
	}
	for i, p := range w {
		want := float64(102 + i)
		if p.Price != want {
			t.Errorf("window[%d]: got %v, want %v", i, p.Price, want)
		}
	}
}

func TestSeries_WindowShortHistory(t *testing.T) {
	s := New("BTC-USD", 10)
	s.Append(point("BTC-USD", 100, 0))
	s.Append(point("BTC-USD", 101, 1))

	w := s.Window(5)
	if len(w) != 2 {
		t.Fatalf("expected short window of 2, got %d", len(w))
	}
	if w[0].Price != 100 || w[1].Price != 101 {
		t.Errorf("window not oldest-first: %v", w)
	}

	if got := s.Window(0); got != nil {
		t.Errorf("Window(0) should be nil, got %v", got)
	}
}

func TestSeries_WindowAfterWrap(t *testing.T) {
	s := New("BTC-USD", 4)
	for i := 0; i < 7; i++ {
		s.Append(point("BTC-USD", float64(i), int64(i)))
	}
	// Retained: 3, 4, 5, 6
	w := s.Window(4)
	for i, p := range w {
		want := float64(3 + i)
		if p.Price != want {
			t.Fatalf("wrapped window[%d]: got %v, want %v", i, p.Price, want)
		}
	}
}

func TestSeries_DefaultCapacity(t *testing.T) {
	s := New("BTC-USD", 0)
	if s.Cap() != DefaultCapacity {
		t.Errorf("expected default capacity %d, got %d", DefaultCapacity, s.Cap())
	}
}
