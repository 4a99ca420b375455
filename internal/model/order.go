package model

import "encoding/json"

// Side represents the direction of a proposed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderProposal is a hypothetical trade submitted for risk evaluation.
// Transient input — the core never persists it.
type OrderProposal struct {
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   float64 `json:"quantity"`
	RiskAmount float64 `json:"risk_amount"` // dollar risk budget for this trade
	Price      float64 `json:"price"`       // intended entry price
}

// RiskConfig holds the account-level risk configuration. Supplied by the
// account/config collaborator; read-only to the analysis core.
type RiskConfig struct {
	RiskPerTradePct  float64 `json:"risk_per_trade_pct"` // max risk per trade, % of capital
	DailyStopLossPct float64 `json:"daily_stop_loss_pct"`
	MaxPositions     int     `json:"max_positions"` // enforced by the execution collaborator
	Capital          float64 `json:"capital"`
}

// DefaultRiskConfig returns conservative default limits.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		RiskPerTradePct:  1.0,
		DailyStopLossPct: 5.0,
		MaxPositions:     5,
		Capital:          10000,
	}
}

// RiskDecision is the outcome of evaluating one OrderProposal. Rejections
// are validation outcomes, not exceptional conditions: Reason tags the rule
// that failed and Message is safe to render to the user verbatim.
type RiskDecision struct {
	Symbol       string  `json:"symbol"`
	Accepted     bool    `json:"accepted"`
	Reason       Kind    `json:"reason,omitempty"`
	Message      string  `json:"message,omitempty"`
	PositionSize float64 `json:"position_size,omitempty"`
}

// StreamKey returns the Redis stream key: "decision:{symbol}".
func (d *RiskDecision) StreamKey() string {
	return "decision:" + d.Symbol
}

// JSON returns the JSON-encoded decision.
func (d *RiskDecision) JSON() []byte {
	b, _ := json.Marshal(d)
	return b
}
