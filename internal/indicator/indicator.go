// Package indicator provides technical indicator calculations over an
// ordered price sequence (oldest → newest).
//
// All functions are pure and stateless: they read the slice they are given
// and return a value or a tagged InsufficientData error — never NaN, never
// a zero-filled placeholder. Callers are expected to check history length
// before invoking.
package indicator

import (
	"time"

	"marketpulse/internal/model"
)

// Standard periods for the snapshot indicators.
const (
	SMAPeriod       = 20
	EMAFastPeriod   = 12
	EMASlowPeriod   = 26
	RSIPeriod       = 14
	BollingerPeriod = 20
	BollingerK      = 2.0

	// MinWindow is the smallest price window for which a full snapshot is
	// well-defined (RSI and Bollinger both need 20 points of context).
	MinWindow = 20
)

// Compute derives a full IndicatorSnapshot from one retrieved price window.
// Every indicator reads the same slice, so the snapshot is internally
// consistent — no indicator sees a window extended by a later append.
// Fewer than MinWindow points fails with InsufficientData.
func Compute(symbol string, prices []float64, at time.Time) (model.IndicatorSnapshot, error) {
	if len(prices) < MinWindow {
		return model.IndicatorSnapshot{}, model.NewError(model.KindInsufficientData,
			"need at least 20 price points for an indicator snapshot")
	}

	sma20, err := SMA(prices, SMAPeriod)
	if err != nil {
		return model.IndicatorSnapshot{}, err
	}
	ema12, err := EMA(prices, EMAFastPeriod)
	if err != nil {
		return model.IndicatorSnapshot{}, err
	}
	ema26, err := EMA(prices, EMASlowPeriod)
	if err != nil {
		return model.IndicatorSnapshot{}, err
	}
	rsi, err := RSI(prices, RSIPeriod)
	if err != nil {
		return model.IndicatorSnapshot{}, err
	}
	bands, err := BollingerBands(prices, BollingerPeriod, BollingerK)
	if err != nil {
		return model.IndicatorSnapshot{}, err
	}

	return model.IndicatorSnapshot{
		Symbol:     symbol,
		RSI:        rsi,
		MACD:       ema12 - ema26,
		Bollinger:  bands,
		SMA20:      sma20,
		EMA12:      ema12,
		EMA26:      ema26,
		ComputedAt: at,
	}, nil
}

func insufficient(what string) error {
	return model.NewError(model.KindInsufficientData, "not enough data for "+what)
}
