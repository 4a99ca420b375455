package model

import (
	"encoding/json"
	"time"
)

// Bands holds one Bollinger Band envelope.
type Bands struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// IndicatorSnapshot is the full indicator state for one symbol, computed
// from a single retrieved price window in one atomic step. Snapshots are
// immutable once produced; a new computation supersedes the previous one.
type IndicatorSnapshot struct {
	Symbol     string    `json:"symbol"`
	RSI        float64   `json:"rsi"`
	MACD       float64   `json:"macd"`
	Bollinger  Bands     `json:"bollinger"`
	SMA20      float64   `json:"sma20"`
	EMA12      float64   `json:"ema12"`
	EMA26      float64   `json:"ema26"`
	ComputedAt time.Time `json:"computed_at"`
}

// StreamKey returns the Redis stream key: "ind:{symbol}".
func (s *IndicatorSnapshot) StreamKey() string {
	return "ind:" + s.Symbol
}

// PubSubChannel returns the Redis pubsub channel: "pub:ind:{symbol}".
func (s *IndicatorSnapshot) PubSubChannel() string {
	return "pub:ind:" + s.Symbol
}

// JSON returns the JSON-encoded snapshot.
func (s *IndicatorSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}

// Regime is a coarse market-state label used to gate risk.
type Regime string

const (
	RegimeTrend   Regime = "trend"
	RegimeRange   Regime = "range"
	RegimeHighVol Regime = "high_volatility"
)

// RegimeState is the classified market regime for one symbol, derived from
// exactly one IndicatorSnapshot. One regime per symbol, last-write-wins.
type RegimeState struct {
	Symbol        string    `json:"symbol"`
	Regime        Regime    `json:"regime"`
	Confidence    float64   `json:"confidence"`     // [0,1]
	TrendStrength float64   `json:"trend_strength"` // [0,1]
	Volatility    float64   `json:"volatility"`     // >= 0
	ComputedAt    time.Time `json:"computed_at"`
}

// StreamKey returns the Redis stream key: "regime:{symbol}".
func (r *RegimeState) StreamKey() string {
	return "regime:" + r.Symbol
}

// PubSubChannel returns the Redis pubsub channel: "pub:regime:{symbol}".
func (r *RegimeState) PubSubChannel() string {
	return "pub:regime:" + r.Symbol
}

// JSON returns the JSON-encoded regime state.
func (r *RegimeState) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
