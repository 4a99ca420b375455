// Package replay feeds historical price points from SQLite back through
// the analysis path at a configurable speed for backtesting.
package replay

import (
	"context"
	"log"
	"sort"
	"time"

	"marketpulse/internal/model"
	sqlitestore "marketpulse/internal/store/sqlite"
)

// maxGapSleep caps the simulated gap between points so overnight holes in
// the data don't stall a paced replay.
const maxGapSleep = 5 * time.Second

// Replayer streams stored price history into a channel, pacing emission
// by the original inter-point gaps.
type Replayer struct {
	reader *sqlitestore.Reader
}

// New creates a Replayer backed by a SQLite reader.
func New(reader *sqlitestore.Reader) *Replayer {
	return &Replayer{reader: reader}
}

// Run replays the stored points for the given symbols (nil = every symbol
// in the database) with ts after fromTS. speed scales playback: 1 is
// real-time, 100 is 100x, 0 emits as fast as the consumer drains.
func (r *Replayer) Run(ctx context.Context, symbols []string, fromTS int64, speed float64, outCh chan<- model.PricePoint) error {
	points, err := r.load(symbols, fromTS)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		log.Println("[replay] no price points found in SQLite")
		return nil
	}

	log.Printf("[replay] loaded %d price points, speed=%.1fx", len(points), speed)

	var prevTS time.Time
	for i, pt := range points {
		if speed > 0 && !prevTS.IsZero() {
			if err := r.pace(ctx, pt.TS.Sub(prevTS), speed); err != nil {
				log.Printf("[replay] cancelled after %d points", i)
				return err
			}
		}
		prevTS = pt.TS

		select {
		case <-ctx.Done():
			log.Printf("[replay] cancelled after %d points", i)
			return ctx.Err()
		case outCh <- pt:
		}
	}

	log.Printf("[replay] completed: %d points replayed", len(points))
	return nil
}

// load reads and time-orders the requested history.
func (r *Replayer) load(symbols []string, fromTS int64) ([]model.PricePoint, error) {
	if len(symbols) == 0 {
		return r.reader.ReadAllPrices(fromTS)
	}

	var points []model.PricePoint
	for _, sym := range symbols {
		ps, err := r.reader.ReadPrices(sym, fromTS)
		if err != nil {
			return nil, err
		}
		points = append(points, ps...)
	}
	// Per-symbol reads come back ordered; interleave them by time.
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].TS.Before(points[j].TS)
	})
	return points, nil
}

// pace sleeps for the scaled historical gap, honoring cancellation.
func (r *Replayer) pace(ctx context.Context, gap time.Duration, speed float64) error {
	if gap <= 0 {
		return nil
	}
	scaled := time.Duration(float64(gap) / speed)
	if scaled > maxGapSleep {
		scaled = maxGapSleep
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(scaled):
		return nil
	}
}
