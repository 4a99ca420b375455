package execution

import (
	"testing"

	"marketpulse/internal/model"
	"marketpulse/internal/portfolio"
	"marketpulse/internal/strategy"
)

// acceptAll sizes every proposal to a fixed quantity.
type acceptAll struct {
	size float64
}

func (a acceptAll) Evaluate(p model.OrderProposal) (model.RiskDecision, error) {
	return model.RiskDecision{
		Symbol:       p.Symbol,
		Accepted:     true,
		PositionSize: a.size,
	}, nil
}

// rejectAll refuses every proposal.
type rejectAll struct{}

func (rejectAll) Evaluate(p model.OrderProposal) (model.RiskDecision, error) {
	return model.RiskDecision{
		Symbol:   p.Symbol,
		Accepted: false,
		Reason:   model.KindRiskExceeded,
		Message:  "risk budget exceeded",
	}, nil
}

func newTestExecutor(cfg PaperExecutorConfig, ev Evaluator) (*PaperExecutor, *portfolio.Portfolio) {
	book := portfolio.New()
	pnl := portfolio.NewPnLTracker()
	return NewPaperExecutor(cfg, ev, book, pnl, nil), book
}

func buySignal(symbol string, price float64) strategy.Signal {
	return strategy.Signal{
		StrategyName: "test",
		Action:       strategy.ActionBuy,
		Symbol:       symbol,
		Price:        price,
		Reason:       "test buy",
	}
}

func TestPaperExecutor_FillAppliesSlippage(t *testing.T) {
	exec, book := newTestExecutor(PaperExecutorConfig{SlippageBps: 10}, acceptAll{size: 2})

	exec.executeSignal(buySignal("BTC-USD", 50000))

	fills := exec.GetFills()
	if len(fills) != 1 {
		t.Fatalf("expected 1 fill, got %d", len(fills))
	}
	// 10 bps on 50000 = 50, buys fill higher
	if fills[0].FillPrice != 50050 {
		t.Errorf("expected fill at 50050, got %g", fills[0].FillPrice)
	}
	if fills[0].FillQty != 2 {
		t.Errorf("expected qty=2, got %g", fills[0].FillQty)
	}
	if !book.Has("BTC-USD") {
		t.Error("expected open position after fill")
	}

	select {
	case res := <-exec.Results():
		if res.Status != "FILLED" {
			t.Errorf("expected FILLED, got %s", res.Status)
		}
		if res.OrderID == "" {
			t.Error("expected non-empty order id")
		}
	default:
		t.Fatal("expected an order result")
	}
}

func TestPaperExecutor_GateRejection(t *testing.T) {
	exec, book := newTestExecutor(PaperExecutorConfig{}, rejectAll{})

	exec.executeSignal(buySignal("BTC-USD", 50000))

	if book.Has("BTC-USD") {
		t.Error("rejected signal must not open a position")
	}
	select {
	case res := <-exec.Results():
		if res.Status != "REJECTED" {
			t.Errorf("expected REJECTED, got %s", res.Status)
		}
		if res.Decision.Reason != model.KindRiskExceeded {
			t.Errorf("expected gate reason carried through, got %q", res.Decision.Reason)
		}
	default:
		t.Fatal("expected an order result")
	}
}

func TestPaperExecutor_MaxPositions(t *testing.T) {
	exec, book := newTestExecutor(PaperExecutorConfig{MaxPositions: 1}, acceptAll{size: 1})

	exec.executeSignal(buySignal("BTC-USD", 50000))
	exec.executeSignal(buySignal("ETH-USD", 3000))

	if book.Has("ETH-USD") {
		t.Error("second new position must be blocked by the limit")
	}
	if book.OpenCount() != 1 {
		t.Errorf("expected 1 open position, got %d", book.OpenCount())
	}

	// Adding to the existing position is still allowed
	exec.executeSignal(buySignal("BTC-USD", 50100))
	if got := len(exec.GetFills()); got != 2 {
		t.Errorf("expected 2 fills (initial + add), got %d", got)
	}
}

func TestPaperExecutor_SellWithoutPosition(t *testing.T) {
	exec, _ := newTestExecutor(PaperExecutorConfig{}, acceptAll{size: 1})

	exec.executeSignal(strategy.Signal{
		StrategyName: "test",
		Action:       strategy.ActionSell,
		Symbol:       "BTC-USD",
		Price:        50000,
	})

	if got := len(exec.GetFills()); got != 0 {
		t.Fatalf("expected no fill, got %d", got)
	}
	select {
	case res := <-exec.Results():
		if res.Status != "REJECTED" {
			t.Errorf("expected REJECTED, got %s", res.Status)
		}
	default:
		t.Fatal("expected an order result")
	}
}
