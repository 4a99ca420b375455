// Package strategy turns indicator snapshots into trading signals.
//
// A Strategy inspects each market update and may emit a Signal; the
// Engine owns strategy registration, update routing, and the shared
// signal channel the executor drains.
package strategy

import (
	"context"

	"marketpulse/internal/model"
)

// MarketUpdate is one per-symbol analysis result delivered to strategies:
// the freshly computed indicator snapshot plus the price that produced it.
type MarketUpdate struct {
	Snapshot model.IndicatorSnapshot
	Price    float64
}

// Action is the side of a trading signal.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// Signal is a trade proposal emitted by a strategy. It still has to pass
// the risk gate before it becomes an order.
type Signal struct {
	StrategyName string  `json:"strategy_name"`
	Action       Action  `json:"action"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"`
	Reason       string  `json:"reason"`
}

// Strategy is implemented by all trading strategies.
type Strategy interface {
	Name() string

	// OnUpdate is called once per market update. Return nil to skip.
	OnUpdate(upd MarketUpdate) *Signal
}

// Engine routes market updates to registered strategies and collects
// their signals.
type Engine struct {
	strategies []Strategy
	signalCh   chan Signal
}

// NewEngine creates an engine whose signal channel buffers up to
// signalBufferSize pending signals.
func NewEngine(signalBufferSize int) *Engine {
	return &Engine{signalCh: make(chan Signal, signalBufferSize)}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Signals returns the channel of signals emitted by strategies.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// Run consumes market updates until ctx is cancelled or updCh is closed.
func (e *Engine) Run(ctx context.Context, updCh <-chan MarketUpdate) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updCh:
			if !ok {
				return
			}
			e.dispatch(upd)
		}
	}
}

// dispatch offers one update to every strategy. A full signal channel
// drops the signal rather than stalling the analysis path.
func (e *Engine) dispatch(upd MarketUpdate) {
	for _, s := range e.strategies {
		sig := s.OnUpdate(upd)
		if sig == nil {
			continue
		}
		select {
		case e.signalCh <- *sig:
		default:
		}
	}
}
