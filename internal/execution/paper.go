package execution

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"marketpulse/internal/model"
	"marketpulse/internal/portfolio"
	"marketpulse/internal/strategy"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string             `json:"order_id"`
	Signal    strategy.Signal    `json:"signal"`
	Decision  model.RiskDecision `json:"decision"`
	FillPrice float64            `json:"fill_price"`
	FillQty   float64            `json:"fill_qty"`
	FilledAt  time.Time          `json:"filled_at"`
	Slippage  float64            `json:"slippage"` // simulated slippage per unit
}

// PaperExecutorConfig configures the paper executor.
type PaperExecutorConfig struct {
	// SlippageBps controls simulated slippage in basis points (5 = 0.05%).
	SlippageBps float64

	// RiskAmount is the dollar risk budget attached to each proposal. Zero
	// derives it from the gate's per-trade percentage at evaluation time.
	RiskAmount float64

	// MaxPositions caps concurrent open positions; 0 means unlimited.
	MaxPositions int
}

// PaperExecutor simulates order execution without real broker calls.
// Useful for backtesting and paper trading.
type PaperExecutor struct {
	cfg       PaperExecutorConfig
	evaluator Evaluator
	book      *portfolio.Portfolio
	pnl       *portfolio.PnLTracker
	journal   *Journal // optional

	mu       sync.RWMutex
	fills    []Fill
	resultCh chan OrderResult
	orderSeq int64
}

// NewPaperExecutor creates a paper trading executor. journal may be nil.
func NewPaperExecutor(cfg PaperExecutorConfig, evaluator Evaluator,
	book *portfolio.Portfolio, pnl *portfolio.PnLTracker, journal *Journal) *PaperExecutor {
	return &PaperExecutor{
		cfg:       cfg,
		evaluator: evaluator,
		book:      book,
		pnl:       pnl,
		journal:   journal,
		fills:     make([]Fill, 0, 1000),
		resultCh:  make(chan OrderResult, 256),
	}
}

// Results returns the channel of order results.
func (p *PaperExecutor) Results() <-chan OrderResult {
	return p.resultCh
}

// GetFills returns a snapshot of all fills.
func (p *PaperExecutor) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Run consumes strategy signals and simulates execution.
func (p *PaperExecutor) Run(ctx context.Context, signalCh <-chan strategy.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			p.executeSignal(sig)
		}
	}
}

func (p *PaperExecutor) executeSignal(sig strategy.Signal) {
	// Position-count limit: only opening a NEW position counts against it.
	if p.cfg.MaxPositions > 0 && sig.Action == strategy.ActionBuy &&
		!p.book.Has(sig.Symbol) && p.book.OpenCount() >= p.cfg.MaxPositions {
		log.Printf("[paper] %s %s skipped: max open positions (%d) reached",
			sig.Action, sig.Symbol, p.cfg.MaxPositions)
		p.emit(OrderResult{
			Status:  "REJECTED",
			Message: "max open positions reached",
			Signal:  sig,
		})
		return
	}

	// Selling without a position is a no-op in paper mode.
	if sig.Action != strategy.ActionBuy && !p.book.Has(sig.Symbol) {
		p.emit(OrderResult{
			Status:  "REJECTED",
			Message: "no open position to reduce",
			Signal:  sig,
		})
		return
	}

	side := model.SideBuy
	if sig.Action != strategy.ActionBuy {
		side = model.SideSell
	}

	decision, err := p.evaluator.Evaluate(model.OrderProposal{
		Symbol:     sig.Symbol,
		Side:       side,
		Quantity:   1,
		RiskAmount: p.cfg.RiskAmount,
		Price:      sig.Price,
	})
	if err != nil {
		p.emit(OrderResult{Status: "ERROR", Message: err.Error(), Signal: sig})
		return
	}
	if !decision.Accepted {
		log.Printf("[paper] %s %s rejected by gate: %s", sig.Action, sig.Symbol, decision.Message)
		p.emit(OrderResult{
			Status:   "REJECTED",
			Message:  decision.Message,
			Signal:   sig,
			Decision: decision,
		})
		return
	}

	qty := decision.PositionSize
	if qty <= 0 {
		p.emit(OrderResult{
			Status:   "REJECTED",
			Message:  "gate sized position to zero",
			Signal:   sig,
			Decision: decision,
		})
		return
	}

	// Calculate fill price with simulated slippage
	fillPrice := sig.Price
	slippage := 0.0
	if fillPrice > 0 && p.cfg.SlippageBps > 0 {
		slippage = fillPrice * p.cfg.SlippageBps / 10000
		if side == model.SideBuy {
			fillPrice += slippage // buy higher
		} else {
			fillPrice -= slippage // sell lower
		}
	}

	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)
	fill := Fill{
		OrderID:   orderID,
		Signal:    sig,
		Decision:  decision,
		FillPrice: fillPrice,
		FillQty:   qty,
		FilledAt:  time.Now(),
		Slippage:  slippage,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	signedQty := qty
	if side == model.SideSell {
		signedQty = -qty
	}
	p.book.Apply(sig.Symbol, signedQty, fillPrice)
	p.pnl.RecordTrade(portfolio.Trade{
		Symbol:    sig.Symbol,
		Action:    string(side),
		Qty:       qty,
		Price:     fillPrice,
		Timestamp: fill.FilledAt,
	})

	if p.journal != nil {
		if err := p.journal.RecordFill(fill); err != nil {
			log.Printf("[paper] journal write failed: %v", err)
		}
	}

	log.Printf("[paper] %s %s %s qty=%.2f price=%.4f (slip=%.4f) order=%s reason=%s",
		sig.Action, sig.StrategyName, sig.Symbol, qty, fillPrice, slippage, orderID, sig.Reason)

	p.emit(OrderResult{
		OrderID:  orderID,
		Status:   "FILLED",
		Message:  fmt.Sprintf("paper filled at %.4f", fillPrice),
		Signal:   sig,
		Decision: decision,
	})
}

func (p *PaperExecutor) emit(r OrderResult) {
	select {
	case p.resultCh <- r:
	default:
		// result channel full, drop
	}
}
