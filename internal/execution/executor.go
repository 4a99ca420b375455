// Package execution turns strategy signals into simulated (paper) fills.
//
// The PaperExecutor sizes each signal through the risk gate, enforces the
// account's open-position limit, applies simulated slippage, and records
// fills in the portfolio and the trade journal. No real broker is involved.
package execution

import (
	"marketpulse/internal/model"
	"marketpulse/internal/strategy"
)

// Evaluator runs an order proposal through the risk gate.
// *pipeline.Pipeline satisfies this.
type Evaluator interface {
	Evaluate(proposal model.OrderProposal) (model.RiskDecision, error)
}

// OrderResult represents the outcome of processing one signal.
type OrderResult struct {
	OrderID  string             `json:"order_id"`
	Status   string             `json:"status"` // FILLED, REJECTED, ERROR
	Message  string             `json:"message"`
	Signal   strategy.Signal    `json:"signal"`
	Decision model.RiskDecision `json:"decision"`
}
