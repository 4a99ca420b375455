package config

import (
	"testing"

	"marketpulse/internal/model"
	"marketpulse/internal/risk"
)

// The shipped defaults must produce a tradeable size for the default
// instrument set. With Capital 10000 and RiskPerTradePct 1 the per-trade
// budget is 100; at a BTC-USD price of 50000 that is 0.002 units, which
// the default minimum increment must not floor to zero.
func TestLoad_DefaultSizingNonZero(t *testing.T) {
	t.Setenv("SIM_MODE", "true")

	cfg := Load()

	gate := risk.NewGate(cfg.RiskConfig(), risk.GateConfig{
		MinIncrement:   cfg.MinIncrement,
		HighVolHaircut: cfg.HighVolHaircut,
	})

	budget := cfg.Capital * cfg.RiskPerTradePct / 100
	d := gate.Evaluate(model.OrderProposal{
		Symbol:     "BTC-USD",
		Side:       model.SideBuy,
		Quantity:   1,
		RiskAmount: budget,
		Price:      50000,
	}, model.RegimeState{Symbol: "BTC-USD", Regime: model.RegimeRange})

	if !d.Accepted {
		t.Fatalf("default-config proposal rejected: %s", d.Message)
	}
	if d.PositionSize <= 0 {
		t.Fatalf("position size: got %v, want > 0", d.PositionSize)
	}
	if d.PositionSize != 0.002 {
		t.Errorf("position size: got %v, want 0.002", d.PositionSize)
	}
}

func TestLoad_EnvOverridesIncrement(t *testing.T) {
	t.Setenv("SIM_MODE", "true")
	t.Setenv("MIN_INCREMENT", "0.5")

	cfg := Load()
	if cfg.MinIncrement != 0.5 {
		t.Errorf("MinIncrement: got %v, want 0.5", cfg.MinIncrement)
	}
}
