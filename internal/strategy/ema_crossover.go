package strategy

import (
	"log"
)

// EMACrossover emits signals from the EMA12/EMA26 pair of each snapshot.
//
// Buy signal: EMA12 crosses above EMA26 (golden cross)
// Sell signal: EMA12 crosses below EMA26 (death cross)
//
// Optional RSI filter prevents buying when overbought (>70)
// or selling when oversold (<30).
type EMACrossover struct {
	name       string
	rsiEnabled bool

	// Previous fast-slow spread per symbol for crossover detection
	prevSpread map[string]float64
}

// NewEMACrossover creates an EMA crossover strategy. The EMAs come
// precomputed in each snapshot, so the strategy holds only the previous
// spread per symbol.
func NewEMACrossover(enableRSI bool) *EMACrossover {
	return &EMACrossover{
		name:       "EMA_Crossover",
		rsiEnabled: enableRSI,
		prevSpread: make(map[string]float64),
	}
}

func (s *EMACrossover) Name() string {
	return s.name
}

func (s *EMACrossover) OnUpdate(upd MarketUpdate) *Signal {
	snap := upd.Snapshot
	spread := snap.EMA12 - snap.EMA26

	prev, seen := s.prevSpread[snap.Symbol]
	s.prevSpread[snap.Symbol] = spread
	if !seen {
		return nil
	}

	// Golden cross: fast crosses above slow
	if prev <= 0 && spread > 0 {
		if s.rsiEnabled && snap.RSI > 70 {
			log.Printf("[strategy] %s: %s golden cross filtered by RSI %.1f > 70",
				s.name, snap.Symbol, snap.RSI)
			return nil
		}
		return &Signal{
			StrategyName: s.name,
			Action:       ActionBuy,
			Symbol:       snap.Symbol,
			Price:        upd.Price,
			Reason:       "EMA golden cross (12 > 26)",
		}
	}

	// Death cross: fast crosses below slow
	if prev >= 0 && spread < 0 {
		if s.rsiEnabled && snap.RSI < 30 {
			log.Printf("[strategy] %s: %s death cross filtered by RSI %.1f < 30",
				s.name, snap.Symbol, snap.RSI)
			return nil
		}
		return &Signal{
			StrategyName: s.name,
			Action:       ActionSell,
			Symbol:       snap.Symbol,
			Price:        upd.Price,
			Reason:       "EMA death cross (12 < 26)",
		}
	}

	return nil
}
