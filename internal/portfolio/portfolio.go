// Package portfolio tracks positions, P&L, and portfolio-level limits.
//
// It maintains a real-time view of all open paper positions, calculates
// unrealized P&L from latest prices, and enforces the position-count limit
// that the per-trade risk gate does not cover.
package portfolio

import (
	"sync"

	"marketpulse/internal/model"
)

// Position represents a single symbol position.
type Position struct {
	Symbol    string  `json:"symbol"`
	Qty       float64 `json:"qty"`        // positive = long, negative = short
	AvgPrice  float64 `json:"avg_price"`  // average entry price
	LastPrice float64 `json:"last_price"` // last observed price
}

// UnrealizedPnL returns the unrealized P&L in account currency.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Portfolio tracks all open positions.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*Position // key = symbol
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
	}
}

// UpdatePrice updates the last observed price for a position.
func (pf *Portfolio) UpdatePrice(pt model.PricePoint) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[pt.Symbol]; ok {
		pos.LastPrice = pt.Price
	}
}

// Apply updates the position for symbol by qty at price. Positive qty buys,
// negative sells. A position whose quantity reaches zero is removed.
func (pf *Portfolio) Apply(symbol string, qty, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		if qty == 0 {
			return
		}
		pf.positions[symbol] = &Position{
			Symbol:    symbol,
			Qty:       qty,
			AvgPrice:  price,
			LastPrice: price,
		}
		return
	}

	newQty := pos.Qty + qty
	if newQty == 0 {
		delete(pf.positions, symbol)
		return
	}

	// Re-average only when increasing exposure in the same direction
	if (pos.Qty > 0) == (qty > 0) {
		pos.AvgPrice = (pos.AvgPrice*pos.Qty + price*qty) / newQty
	}
	pos.Qty = newQty
	pos.LastPrice = price
}

// Has reports whether an open position exists for symbol.
func (pf *Portfolio) Has(symbol string) bool {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	_, ok := pf.positions[symbol]
	return ok
}

// OpenCount returns the number of open positions.
func (pf *Portfolio) OpenCount() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.positions)
}

// GetPositions returns a snapshot of all positions.
func (pf *Portfolio) GetPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	return result
}

// TotalUnrealizedPnL returns the total unrealized P&L across all positions.
func (pf *Portfolio) TotalUnrealizedPnL() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		total += p.UnrealizedPnL()
	}
	return total
}
