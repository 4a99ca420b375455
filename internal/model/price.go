package model

import (
	"encoding/json"
	"time"
)

// PricePoint represents a single observed price for one symbol.
// Timestamps within a symbol's series are non-decreasing; a redelivered
// point with an equal timestamp replaces the previous one.
type PricePoint struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`  // last traded price, must be > 0
	Volume float64   `json:"volume"` // traded quantity, >= 0
	TS     time.Time `json:"ts"`     // UTC observation time
}

// JSON returns the JSON-encoded point (ignoring errors for hot-path usage).
func (p *PricePoint) JSON() []byte {
	b, _ := json.Marshal(p)
	return b
}

// StreamKey returns the Redis stream key: "price:{symbol}".
func (p *PricePoint) StreamKey() string {
	return "price:" + p.Symbol
}
