package risk

import (
	"math"
	"testing"

	"marketpulse/internal/model"
)

func testGate() *Gate {
	return NewGate(model.RiskConfig{
		RiskPerTradePct:  1.0,
		DailyStopLossPct: 5.0,
		MaxPositions:     5,
		Capital:          10000,
	}, GateConfig{})
}

func proposal(qty, riskAmount, price float64) model.OrderProposal {
	return model.OrderProposal{
		Symbol:     "BTC-USD",
		Side:       model.SideBuy,
		Quantity:   qty,
		RiskAmount: riskAmount,
		Price:      price,
	}
}

func rangeRegime() model.RegimeState {
	return model.RegimeState{Symbol: "BTC-USD", Regime: model.RegimeRange}
}

func highVolRegime() model.RegimeState {
	return model.RegimeState{Symbol: "BTC-USD", Regime: model.RegimeHighVol}
}

func TestEvaluate_InvalidQuantity(t *testing.T) {
	d := testGate().Evaluate(proposal(-1, 100, 50000), rangeRegime())
	if d.Accepted {
		t.Fatal("expected rejection")
	}
	if d.Reason != model.KindInvalidQuantity {
		t.Errorf("reason: got %s, want InvalidQuantity", d.Reason)
	}
	if d.Message != "Quantity must be greater than 0" {
		t.Errorf("message: got %q", d.Message)
	}
}

func TestEvaluate_RiskExceeded(t *testing.T) {
	// capital=10000, dailyStopLossPct=5 → limit = 500
	d := testGate().Evaluate(proposal(1, 10000, 50000), rangeRegime())
	if d.Accepted {
		t.Fatal("expected rejection")
	}
	if d.Reason != model.KindRiskExceeded {
		t.Errorf("reason: got %s, want RiskExceeded", d.Reason)
	}
	if d.Message != "Risk amount exceeds daily limit" {
		t.Errorf("message: got %q", d.Message)
	}

	// Exactly at the limit passes.
	d = testGate().Evaluate(proposal(1, 500, 50000), rangeRegime())
	if !d.Accepted {
		t.Errorf("risk amount at the limit should pass: %+v", d)
	}

	// Non-positive risk amount is also a risk rejection.
	d = testGate().Evaluate(proposal(1, 0, 50000), rangeRegime())
	if d.Accepted || d.Reason != model.KindRiskExceeded {
		t.Errorf("zero risk amount: %+v", d)
	}
}

func TestEvaluate_InvalidPrice(t *testing.T) {
	d := testGate().Evaluate(proposal(1, 100, 0), rangeRegime())
	if d.Accepted || d.Reason != model.KindInvalidPrice {
		t.Errorf("expected InvalidPrice, got %+v", d)
	}
}

func TestEvaluate_ChecksShortCircuitInOrder(t *testing.T) {
	// A proposal failing every rule reports the FIRST failing check.
	d := testGate().Evaluate(proposal(-1, -1, -1), rangeRegime())
	if d.Reason != model.KindInvalidQuantity {
		t.Errorf("expected quantity check first, got %s", d.Reason)
	}

	// Valid quantity, bad risk AND bad price → risk check wins.
	d = testGate().Evaluate(proposal(1, 99999, -1), rangeRegime())
	if d.Reason != model.KindRiskExceeded {
		t.Errorf("expected risk check before price, got %s", d.Reason)
	}
}

func TestEvaluate_PositionSizing(t *testing.T) {
	// riskAmount=100 at price=50000 → 0.002: the quantity whose full loss
	// equals the risk budget.
	d := testGate().Evaluate(proposal(1, 100, 50000), rangeRegime())
	if !d.Accepted {
		t.Fatalf("expected acceptance, got %+v", d)
	}
	if math.Abs(d.PositionSize-0.002) > 1e-12 {
		t.Errorf("position size: got %v, want 0.002", d.PositionSize)
	}
	if d.Reason != "" || d.Message != "" {
		t.Errorf("accepted decision must not carry a rejection reason: %+v", d)
	}
}

func TestEvaluate_RoundsDownToMinIncrement(t *testing.T) {
	g := NewGate(model.DefaultRiskConfig(), GateConfig{MinIncrement: 0.001})

	// 150/50000 = 0.003 exactly; 160/50000 = 0.0032 rounds DOWN to 0.003.
	d := g.Evaluate(proposal(1, 160, 50000), rangeRegime())
	if !d.Accepted {
		t.Fatalf("expected acceptance, got %+v", d)
	}
	if math.Abs(d.PositionSize-0.003) > 1e-9 {
		t.Errorf("rounded size: got %v, want 0.003", d.PositionSize)
	}
}

func TestEvaluate_HighVolHaircut(t *testing.T) {
	g := NewGate(model.DefaultRiskConfig(), GateConfig{HighVolHaircut: 0.5})

	d := g.Evaluate(proposal(1, 100, 50000), highVolRegime())
	if !d.Accepted {
		t.Fatalf("expected acceptance, got %+v", d)
	}
	if math.Abs(d.PositionSize-0.001) > 1e-12 {
		t.Errorf("haircut size: got %v, want 0.001", d.PositionSize)
	}

	// Same proposal outside high_volatility keeps the full size.
	d = g.Evaluate(proposal(1, 100, 50000), rangeRegime())
	if math.Abs(d.PositionSize-0.002) > 1e-12 {
		t.Errorf("non-highvol size: got %v, want 0.002", d.PositionSize)
	}
}

func TestEvaluate_HaircutUnsetPassesThrough(t *testing.T) {
	d := testGate().Evaluate(proposal(1, 100, 50000), highVolRegime())
	if math.Abs(d.PositionSize-0.002) > 1e-12 {
		t.Errorf("unset haircut must pass through: got %v", d.PositionSize)
	}
}

func TestGate_UpdateConfig(t *testing.T) {
	g := testGate()
	g.UpdateConfig(model.RiskConfig{Capital: 100000, DailyStopLossPct: 1})

	// New limit = 1000: a 600 risk that previously failed now passes.
	d := g.Evaluate(proposal(1, 600, 50000), rangeRegime())
	if !d.Accepted {
		t.Errorf("expected acceptance under updated config, got %+v", d)
	}
}
