// Package pipeline orchestrates the per-symbol analysis flow: append a
// price, recompute the indicator snapshot, reclassify the regime, and (on
// demand) evaluate a proposed order through the risk gate.
//
// Each symbol's series/snapshot/regime triple is one mutable unit guarded
// by a per-symbol mutex, so "append, then compute" is atomic with respect
// to other updates on the same symbol. Different symbols share no mutable
// state and process in parallel. The pipeline does no logging and no
// retries — tagged errors surface unchanged to the caller, which owns
// policy.
package pipeline

import (
	"context"
	"sync"

	"marketpulse/internal/indicator"
	"marketpulse/internal/model"
	"marketpulse/internal/regime"
	"marketpulse/internal/risk"
	"marketpulse/internal/series"
)

// State is the lifecycle of one symbol's analysis.
type State int

const (
	StateEmpty   State = iota // no prices yet
	StateWarming              // fewer than indicator.MinWindow points
	StateReady                // snapshot/regime available; terminal
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Update is the derived state produced by one accepted price in Ready.
type Update struct {
	Point         model.PricePoint
	Snapshot      model.IndicatorSnapshot
	Regime        model.RegimeState
	RegimeChanged bool // regime label differs from the previous update
}

// Config holds pipeline tuning.
type Config struct {
	// SeriesCapacity bounds each symbol's price window. Zero uses
	// series.DefaultCapacity.
	SeriesCapacity int
}

// symbolState is the single mutable unit for one symbol.
type symbolState struct {
	mu       sync.Mutex
	series   *series.Series
	state    State
	snapshot model.IndicatorSnapshot
	regime   model.RegimeState
}

// Pipeline runs the analysis state machine for any number of symbols.
type Pipeline struct {
	cfg  Config
	gate *risk.Gate

	mu      sync.RWMutex
	symbols map[string]*symbolState

	// OnRegimeChange fires after an update whose regime label differs
	// from the previous one (including the first classification).
	OnRegimeChange func(prev, next model.RegimeState)
}

// New creates a Pipeline backed by the given risk gate.
func New(gate *risk.Gate, cfg Config) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		gate:    gate,
		symbols: make(map[string]*symbolState, 16),
	}
}

// OnPrice appends one price and, once the symbol is Ready, recomputes the
// snapshot and regime from the same retained window in one atomic step.
// Returns nil while warming, the new Update in Ready, and the series'
// tagged error unchanged if the point is rejected.
func (p *Pipeline) OnPrice(pt model.PricePoint) (*Update, error) {
	st := p.symbolState(pt.Symbol)

	st.mu.Lock()
	if err := st.series.Append(pt); err != nil {
		st.mu.Unlock()
		return nil, err
	}

	if st.state != StateReady {
		if st.series.Len() >= indicator.MinWindow {
			// Ready is terminal: eviction only drops old data and the
			// ring retains a full window by construction.
			st.state = StateReady
		} else {
			st.state = StateWarming
			st.mu.Unlock()
			return nil, nil
		}
	}

	snap, err := indicator.Compute(pt.Symbol, st.series.Prices(), pt.TS)
	if err != nil {
		st.mu.Unlock()
		return nil, err
	}
	next := regime.Classify(snap)

	prev := st.regime
	changed := prev.Regime == "" || prev.Regime != next.Regime
	st.snapshot = snap
	st.regime = next
	st.mu.Unlock()

	if changed && p.OnRegimeChange != nil {
		p.OnRegimeChange(prev, next)
	}

	return &Update{
		Point:         pt,
		Snapshot:      snap,
		Regime:        next,
		RegimeChanged: changed,
	}, nil
}

// Evaluate runs a proposal through the risk gate against the symbol's
// current regime. Fails with InsufficientData before the symbol is Ready.
// The gate sees a copy of the RegimeState, so evaluation may run
// concurrently with the next append for the same symbol.
func (p *Pipeline) Evaluate(proposal model.OrderProposal) (model.RiskDecision, error) {
	current, ok := p.Regime(proposal.Symbol)
	if !ok {
		return model.RiskDecision{}, model.NewError(model.KindInsufficientData,
			"symbol has fewer than 20 price points")
	}
	return p.gate.Evaluate(proposal, current), nil
}

// Regime returns the current regime for a symbol. ok is false until the
// symbol reaches Ready.
func (p *Pipeline) Regime(symbol string) (model.RegimeState, bool) {
	st := p.lookup(symbol)
	if st == nil {
		return model.RegimeState{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != StateReady {
		return model.RegimeState{}, false
	}
	return st.regime, true
}

// Snapshot returns the latest indicator snapshot for a symbol.
func (p *Pipeline) Snapshot(symbol string) (model.IndicatorSnapshot, bool) {
	st := p.lookup(symbol)
	if st == nil {
		return model.IndicatorSnapshot{}, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state != StateReady {
		return model.IndicatorSnapshot{}, false
	}
	return st.snapshot, true
}

// StateOf returns the lifecycle state for a symbol.
func (p *Pipeline) StateOf(symbol string) State {
	st := p.lookup(symbol)
	if st == nil {
		return StateEmpty
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}

// Symbols returns all symbols the pipeline has seen.
func (p *Pipeline) Symbols() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.symbols))
	for sym := range p.symbols {
		out = append(out, sym)
	}
	return out
}

// Run consumes prices and emits updates. Rejected points go to onErr (may
// be nil); updates are published non-blocking and dropped if out is full.
// Blocks until ctx is cancelled or in is closed.
func (p *Pipeline) Run(ctx context.Context, in <-chan model.PricePoint, out chan<- Update,
	onErr func(model.PricePoint, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case pt, ok := <-in:
			if !ok {
				return
			}
			upd, err := p.OnPrice(pt)
			if err != nil {
				if onErr != nil {
					onErr(pt, err)
				}
				continue
			}
			if upd == nil || out == nil {
				continue
			}
			select {
			case out <- *upd:
			default:
				// drop if channel full
			}
		}
	}
}

func (p *Pipeline) symbolState(symbol string) *symbolState {
	p.mu.RLock()
	st, ok := p.symbols[symbol]
	p.mu.RUnlock()
	if ok {
		return st
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok = p.symbols[symbol]; ok {
		return st
	}
	st = &symbolState{series: series.New(symbol, p.cfg.SeriesCapacity)}
	p.symbols[symbol] = st
	return st
}

func (p *Pipeline) lookup(symbol string) *symbolState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.symbols[symbol]
}
