package bus

import (
	"context"
	"testing"
	"time"

	"marketpulse/internal/model"
)

func TestFanOut_BroadcastsToAll(t *testing.T) {
	fo := New(10)
	out1 := fo.Subscribe()
	out2 := fo.Subscribe()

	input := make(chan model.PricePoint, 10)
	ctx, cancel := context.WithCancel(context.Background())
	go fo.Run(ctx, input)

	pt := model.PricePoint{
		Symbol: "BTC-USD",
		Price:  50000,
		Volume: 1.5,
		TS:     time.Now().UTC(),
	}

	input <- pt
	time.Sleep(50 * time.Millisecond)

	select {
	case got := <-out1:
		if got.Symbol != "BTC-USD" {
			t.Errorf("out1: expected symbol BTC-USD, got %s", got.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out1: timed out waiting for point")
	}

	select {
	case got := <-out2:
		if got.Symbol != "BTC-USD" {
			t.Errorf("out2: expected symbol BTC-USD, got %s", got.Symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("out2: timed out waiting for point")
	}

	cancel()
}

func TestFanOut_DropsForSlowConsumer(t *testing.T) {
	fo := New(1)
	fo.Subscribe() // never drained

	var drops int
	fo.OnDrop = func(int) { drops++ }

	input := make(chan model.PricePoint, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go fo.Run(ctx, input)

	for i := 0; i < 3; i++ {
		input <- model.PricePoint{Symbol: "BTC-USD", Price: float64(i)}
	}
	time.Sleep(50 * time.Millisecond)

	// Buffer holds one, the other two must be dropped.
	if drops != 2 {
		t.Errorf("drops: got %d, want 2", drops)
	}
}
