// Package risk validates proposed trades against the account risk
// configuration and the current market regime.
//
// The gate performs no side effects: it neither places orders nor persists
// anything. It hands its decision to the caller, and order execution is an
// external collaborator's responsibility.
package risk

import (
	"math"
	"sync"

	"marketpulse/internal/model"
)

// Rejection messages are user-facing and rendered verbatim by callers.
const (
	msgInvalidQuantity = "Quantity must be greater than 0"
	msgRiskExceeded    = "Risk amount exceeds daily limit"
	msgInvalidPrice    = "Price must be greater than 0"
)

// GateConfig holds instrument/sizing knobs beyond the account RiskConfig.
type GateConfig struct {
	// MinIncrement is the smallest orderable quantity step. Position sizes
	// are rounded DOWN to it, never up. Zero disables rounding.
	MinIncrement float64

	// HighVolHaircut multiplies the position size when the current regime
	// is high_volatility. Zero (unset) passes the size through unchanged.
	HighVolHaircut float64
}

// Gate evaluates OrderProposals. The account config may be swapped at
// runtime by the config collaborator; evaluations read it under a lock.
type Gate struct {
	mu   sync.RWMutex
	cfg  model.RiskConfig
	gcfg GateConfig
}

// NewGate creates a Gate with the given account and sizing configuration.
func NewGate(cfg model.RiskConfig, gcfg GateConfig) *Gate {
	return &Gate{cfg: cfg, gcfg: gcfg}
}

// UpdateConfig replaces the account risk configuration.
func (g *Gate) UpdateConfig(cfg model.RiskConfig) {
	g.mu.Lock()
	g.cfg = cfg
	g.mu.Unlock()
}

// Config returns the current account risk configuration.
func (g *Gate) Config() model.RiskConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// Evaluate validates a proposal against the account config and the current
// regime. Checks run in a fixed order and the first failure short-circuits
// with its reason. On success the decision carries the final position size:
// riskAmount/price (the quantity whose full loss equals the risk budget),
// rounded down to the minimum increment, then reduced by the volatility
// haircut when the regime is high_volatility.
func (g *Gate) Evaluate(p model.OrderProposal, current model.RegimeState) model.RiskDecision {
	g.mu.RLock()
	cfg := g.cfg
	gcfg := g.gcfg
	g.mu.RUnlock()

	if p.Quantity <= 0 {
		return reject(p.Symbol, model.KindInvalidQuantity, msgInvalidQuantity)
	}

	dailyLimit := cfg.Capital * cfg.DailyStopLossPct / 100
	if p.RiskAmount <= 0 || p.RiskAmount > dailyLimit {
		return reject(p.Symbol, model.KindRiskExceeded, msgRiskExceeded)
	}

	if p.Price <= 0 {
		return reject(p.Symbol, model.KindInvalidPrice, msgInvalidPrice)
	}

	size := p.RiskAmount / p.Price
	if gcfg.MinIncrement > 0 {
		size = math.Floor(size/gcfg.MinIncrement) * gcfg.MinIncrement
	}
	if current.Regime == model.RegimeHighVol && gcfg.HighVolHaircut > 0 {
		size *= gcfg.HighVolHaircut
	}

	return model.RiskDecision{
		Symbol:       p.Symbol,
		Accepted:     true,
		PositionSize: size,
	}
}

func reject(symbol string, kind model.Kind, msg string) model.RiskDecision {
	return model.RiskDecision{
		Symbol:   symbol,
		Accepted: false,
		Reason:   kind,
		Message:  msg,
	}
}
