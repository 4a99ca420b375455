package portfolio

import (
	"sync"
	"time"
)

// Trade is one executed paper fill, recorded for P&L accounting.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Action    string    `json:"action"` // BUY or SELL
	Qty       float64   `json:"qty"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// costEntry is the running cost basis of one symbol.
type costEntry struct {
	Qty      float64
	AvgPrice float64
}

// PnLTracker accumulates realized P&L from closed trades and derives
// unrealized P&L from the remaining cost basis.
type PnLTracker struct {
	mu        sync.RWMutex
	trades    []Trade
	realized  float64
	costBasis map[string]costEntry // key = symbol
}

// NewPnLTracker creates an empty P&L tracker.
func NewPnLTracker() *PnLTracker {
	return &PnLTracker{
		trades:    make([]Trade, 0, 500),
		costBasis: make(map[string]costEntry),
	}
}

// RecordTrade books a trade against the cost basis and returns the P&L
// realized by it (zero for buys).
func (p *PnLTracker) RecordTrade(trade Trade) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.trades = append(p.trades, trade)
	entry := p.costBasis[trade.Symbol]

	var realized float64
	if trade.Action == "BUY" {
		entry = accumulate(entry, trade.Qty, trade.Price)
	} else {
		entry, realized = reduce(entry, trade.Qty, trade.Price)
		p.realized += realized
	}
	p.costBasis[trade.Symbol] = entry

	return realized
}

// accumulate grows a position, re-averaging the entry price.
func accumulate(entry costEntry, qty, price float64) costEntry {
	if entry.Qty == 0 {
		return costEntry{Qty: qty, AvgPrice: price}
	}
	totalCost := entry.AvgPrice*entry.Qty + price*qty
	entry.Qty += qty
	entry.AvgPrice = totalCost / entry.Qty
	return entry
}

// reduce shrinks a position, realizing P&L against the average entry
// price. A sell beyond the held quantity realizes only what is held.
func reduce(entry costEntry, qty, price float64) (costEntry, float64) {
	if qty > entry.Qty {
		qty = entry.Qty
	}
	realized := (price - entry.AvgPrice) * qty
	entry.Qty -= qty
	if entry.Qty <= 0 {
		entry = costEntry{}
	}
	return entry, realized
}

// GetRealizedPnL returns the total realized P&L.
func (p *PnLTracker) GetRealizedPnL() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.realized
}

// GetUnrealizedPnL marks the open cost basis against currentPrices
// (symbol -> latest price). Symbols without a quote contribute zero.
func (p *PnLTracker) GetUnrealizedPnL(currentPrices map[string]float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	unrealized, _ := p.markToMarket(currentPrices)
	return unrealized
}

// GetTrades returns a snapshot of all recorded trades.
func (p *PnLTracker) GetTrades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.trades))
	copy(cp, p.trades)
	return cp
}

// PnLSummary is the aggregate P&L view.
type PnLSummary struct {
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	TotalTrades   int     `json:"total_trades"`
	OpenPositions int     `json:"open_positions"`
}

// GetSummary returns the current P&L summary marked against currentPrices.
func (p *PnLTracker) GetSummary(currentPrices map[string]float64) PnLSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()

	unrealized, open := p.markToMarket(currentPrices)
	return PnLSummary{
		RealizedPnL:   p.realized,
		UnrealizedPnL: unrealized,
		TotalPnL:      p.realized + unrealized,
		TotalTrades:   len(p.trades),
		OpenPositions: open,
	}
}

// markToMarket returns the unrealized P&L and open position count. Caller
// holds at least the read lock.
func (p *PnLTracker) markToMarket(currentPrices map[string]float64) (unrealized float64, open int) {
	for symbol, entry := range p.costBasis {
		if entry.Qty <= 0 {
			continue
		}
		open++
		if price, ok := currentPrices[symbol]; ok {
			unrealized += (price - entry.AvgPrice) * entry.Qty
		}
	}
	return unrealized, open
}
