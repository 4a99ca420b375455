package agg

import (
	"context"
	"testing"
	"time"

	"marketpulse/internal/model"
)

func TestAggregator_CoalescesSameSecond(t *testing.T) {
	agg := New()
	tickCh := make(chan model.PricePoint, 100)
	outCh := make(chan model.PricePoint, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, outCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Second)

	// Send 3 ticks in the same second
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 50000, Volume: 10, TS: now}
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 50500, Volume: 20, TS: now.Add(200 * time.Millisecond)}
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 49800, Volume: 5, TS: now.Add(500 * time.Millisecond)}

	// Send a tick in the next second to trigger flush of previous bucket
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 50100, Volume: 15, TS: now.Add(1 * time.Second)}

	// Allow time for processing
	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done // wait for goroutine to finish

	// Collect points (safe now since goroutine exited)
	var points []model.PricePoint
	for {
		select {
		case pt := <-outCh:
			points = append(points, pt)
		default:
			goto collected
		}
	}
collected:

	if len(points) < 1 {
		t.Fatalf("expected at least 1 point, got %d", len(points))
	}

	pt := points[0]
	if pt.Price != 49800 {
		t.Errorf("expected last price=49800, got %g", pt.Price)
	}
	if pt.Volume != 35 {
		t.Errorf("expected summed volume=35, got %g", pt.Volume)
	}
	if !pt.TS.Equal(now) {
		t.Errorf("expected bucket-aligned ts=%v, got %v", now, pt.TS)
	}
}

func TestAggregator_MultipleSymbols(t *testing.T) {
	agg := New()
	tickCh := make(chan model.PricePoint, 100)
	outCh := make(chan model.PricePoint, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, outCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Second)

	// Two different symbols in the same second
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 50000, Volume: 10, TS: now}
	tickCh <- model.PricePoint{Symbol: "ETH-USD", Price: 3000, Volume: 5, TS: now}

	// Next second triggers flush
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 50100, Volume: 1, TS: now.Add(time.Second)}
	tickCh <- model.PricePoint{Symbol: "ETH-USD", Price: 3010, Volume: 1, TS: now.Add(time.Second)}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	count := 0
	for {
		select {
		case <-outCh:
			count++
		default:
			goto done2
		}
	}
done2:
	// Should have at least 2 points (one per symbol for the first second) + 2 from flush
	if count < 2 {
		t.Errorf("expected at least 2 points, got %d", count)
	}
}

func TestAggregator_LateTick(t *testing.T) {
	agg := New()
	dropped := 0
	dropCh := make(chan struct{}, 10)
	agg.OnDroppedTick = func() {
		dropCh <- struct{}{}
	}

	tickCh := make(chan model.PricePoint, 100)
	outCh := make(chan model.PricePoint, 100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		agg.Run(ctx, tickCh, outCh)
		close(done)
	}()

	now := time.Now().UTC().Truncate(time.Second)

	// Current second tick
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 50000, Volume: 10, TS: now}
	// Late tick (1 second old)
	tickCh <- model.PricePoint{Symbol: "BTC-USD", Price: 49000, Volume: 5, TS: now.Add(-1 * time.Second)}

	time.Sleep(200 * time.Millisecond)
	cancel()
	<-done

	// Count drops from channel
	close(dropCh)
	for range dropCh {
		dropped++
	}

	if dropped != 1 {
		t.Errorf("expected 1 dropped tick, got %d", dropped)
	}
}
