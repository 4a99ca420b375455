// Package regime classifies the market state of a symbol from its latest
// indicator snapshot.
//
// Classification is a deterministic rule table — no hidden state, no
// history, no smoothing. The regime is a pure function of one snapshot and
// can flip on every update; that lack of hysteresis is a documented
// limitation of the reference behavior, kept as-is.
package regime

import (
	"marketpulse/internal/model"
)

// Rule thresholds and the fixed outputs each rule assigns.
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0

	trendStrength   = 0.7
	trendConfidence = 0.8

	highVolConfidence = 0.75
	highVolVolatility = 0.05

	rangeConfidence    = 0.5
	baselineVolatility = 0.02
)

// Classify maps one IndicatorSnapshot to a RegimeState. Rules are checked
// in fixed priority order and the first match wins: a snapshot with
// macd > 0 and rsi < 70 is a trend even if rsi < 30 would also qualify it
// as high_volatility.
func Classify(snap model.IndicatorSnapshot) model.RegimeState {
	state := model.RegimeState{
		Symbol:     snap.Symbol,
		ComputedAt: snap.ComputedAt,
	}

	switch {
	case snap.MACD > 0 && snap.RSI < rsiOverbought:
		state.Regime = model.RegimeTrend
		state.TrendStrength = trendStrength
		state.Confidence = trendConfidence
		state.Volatility = baselineVolatility

	case snap.RSI > rsiOverbought || snap.RSI < rsiOversold:
		state.Regime = model.RegimeHighVol
		state.Confidence = highVolConfidence
		state.Volatility = highVolVolatility

	default:
		state.Regime = model.RegimeRange
		state.Confidence = rangeConfidence
		state.Volatility = baselineVolatility
	}

	return state
}
