package model

import "context"

// ── Storage Port Interfaces ──
// These interfaces decouple the analysis pipeline from concrete storage
// implementations (Redis, SQLite). The core hands derived state to whoever
// satisfies them; it has no opinion on storage format.

// UpdateWriter persists indicator snapshots and regime states.
type UpdateWriter interface {
	// RunSnapshots reads snapshots from the channel and writes them.
	// Blocks until ctx is cancelled or the channel is closed.
	RunSnapshots(ctx context.Context, snapCh <-chan IndicatorSnapshot)

	// RunRegimes reads regime states from the channel and writes them.
	RunRegimes(ctx context.Context, regimeCh <-chan RegimeState)

	// Close releases underlying resources.
	Close() error
}

// DecisionWriter persists risk decisions for audit.
type DecisionWriter interface {
	WriteDecision(ctx context.Context, d RiskDecision) error
	Close() error
}

// PriceReader reads stored price history for replay and warm-up.
type PriceReader interface {
	// ReadPrices returns points for a symbol after the given unix
	// timestamp, ordered oldest-first.
	ReadPrices(symbol string, afterTS int64) ([]PricePoint, error)
	Close() error
}
