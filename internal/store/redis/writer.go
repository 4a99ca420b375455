package redis

import (
	"context"
	"fmt"
	"log"
	"time"
	"unsafe"

	"marketpulse/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	// Stream trimming: ~3h of 1s points + buffer
	priceStreamMaxLen = 12000
	// Derived-state streams trim shorter; dashboards only need recent history.
	updateStreamMaxLen = 2000
	defaultLatestTTL   = 30 * time.Minute
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer writes price points, indicator snapshots, regime states and risk
// decisions to Redis: XADD to a per-symbol stream, SET the latest value
// with a TTL, PUBLISH for live subscribers. All writes run through a
// circuit breaker so a dead Redis degrades to fast-failing no-ops instead
// of stalling the pipeline drain loops.
type Writer struct {
	client  *goredis.Client
	breaker *CircuitBreaker

	// OnWriteDone reports the duration of each pipelined write (optional,
	// set externally for metrics).
	OnWriteDone func(d time.Duration)
}

func (w *Writer) observe(start time.Time) {
	if w.OnWriteDone != nil {
		w.OnWriteDone(time.Since(start))
	}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Breaker exposes the circuit breaker for metrics hooks.
func (w *Writer) Breaker() *CircuitBreaker { return w.breaker }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{
		client:  client,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// RunPrices reads raw price points from priceCh and writes them to Redis.
// Blocks until ctx is cancelled or priceCh is closed.
func (w *Writer) RunPrices(ctx context.Context, priceCh <-chan model.PricePoint) {
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-priceCh:
			if !ok {
				return
			}
			w.writePrice(ctx, pt)
		}
	}
}

// RunSnapshots reads indicator snapshots and writes them to Redis Streams.
// Blocks until ctx is cancelled or channel is closed.
func (w *Writer) RunSnapshots(ctx context.Context, snapCh <-chan model.IndicatorSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snapCh:
			if !ok {
				return
			}
			w.writeSnapshot(ctx, snap)
		}
	}
}

// RunRegimes reads regime states and writes them to Redis Streams.
// Blocks until ctx is cancelled or channel is closed.
func (w *Writer) RunRegimes(ctx context.Context, regimeCh <-chan model.RegimeState) {
	for {
		select {
		case <-ctx.Done():
			return
		case reg, ok := <-regimeCh:
			if !ok {
				return
			}
			w.writeRegime(ctx, reg)
		}
	}
}

// WriteDecision records one risk decision for audit: XADD + PUBLISH.
func (w *Writer) WriteDecision(ctx context.Context, d model.RiskDecision) error {
	jsonData := string(d.JSON())
	defer w.observe(time.Now())
	return w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: d.StreamKey(),
			MaxLen: updateStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Publish(ctx, "pub:"+d.StreamKey(), jsonData)
		_, err := pipe.Exec(ctx)
		return err
	})
}

// writePrice performs pipelined writes for a raw price point.
func (w *Writer) writePrice(ctx context.Context, pt model.PricePoint) {
	streamKey := pt.StreamKey()
	latestKey := "price:latest:" + pt.Symbol
	jsonData := string(pt.JSON())

	defer w.observe(time.Now())
	err := w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()

		// SET latest price with TTL
		pipe.Set(ctx, latestKey, jsonData, defaultLatestTTL)

		// XADD to stream with auto-trimming (~3h window)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey,
			MaxLen: priceStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})

		// PUBLISH to pubsub channel
		pipe.Publish(ctx, "pub:"+streamKey, jsonData)

		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] price pipeline error for %s: %v", pt.Symbol, err)
	}
}

// writeSnapshot publishes an indicator snapshot: XADD + SET + PUBLISH.
func (w *Writer) writeSnapshot(ctx context.Context, snap model.IndicatorSnapshot) {
	jsonBytes := snap.JSON()
	// Zero-copy []byte→string (safe: jsonBytes is not mutated after this)
	jsonData := *(*string)(unsafe.Pointer(&jsonBytes))

	defer w.observe(time.Now())
	err := w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: snap.StreamKey(),
			MaxLen: updateStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, "ind:latest:"+snap.Symbol, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, snap.PubSubChannel(), jsonData)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] snapshot pipeline error for %s: %v", snap.Symbol, err)
	}
}

// writeRegime publishes a regime state: XADD + SET + PUBLISH.
func (w *Writer) writeRegime(ctx context.Context, reg model.RegimeState) {
	jsonData := string(reg.JSON())

	defer w.observe(time.Now())
	err := w.breaker.Execute(func() error {
		pipe := w.client.Pipeline()
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: reg.StreamKey(),
			MaxLen: updateStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": jsonData},
		})
		pipe.Set(ctx, "regime:latest:"+reg.Symbol, jsonData, defaultLatestTTL)
		pipe.Publish(ctx, reg.PubSubChannel(), jsonData)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil && err != ErrCircuitOpen {
		log.Printf("[redis] regime pipeline error for %s: %v", reg.Symbol, err)
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
