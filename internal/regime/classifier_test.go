package regime

import (
	"testing"
	"time"

	"marketpulse/internal/model"
)

func snap(rsi, macd float64) model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		Symbol:     "BTC-USD",
		RSI:        rsi,
		MACD:       macd,
		ComputedAt: time.Now().UTC(),
	}
}

func TestClassify_Trend(t *testing.T) {
	state := Classify(snap(65, 1))
	if state.Regime != model.RegimeTrend {
		t.Fatalf("expected trend, got %s", state.Regime)
	}
	if state.TrendStrength != 0.7 || state.Confidence != 0.8 || state.Volatility != 0.02 {
		t.Errorf("trend outputs wrong: %+v", state)
	}
}

func TestClassify_HighVolatility(t *testing.T) {
	cases := []struct {
		name string
		rsi  float64
		macd float64
	}{
		{"overbought", 75, -1},
		{"oversold negative macd", 25, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := Classify(snap(tc.rsi, tc.macd))
			if state.Regime != model.RegimeHighVol {
				t.Fatalf("expected high_volatility, got %s", state.Regime)
			}
			if state.Volatility != 0.05 || state.Confidence != 0.75 || state.TrendStrength != 0 {
				t.Errorf("high_volatility outputs wrong: %+v", state)
			}
		})
	}
}

func TestClassify_Range(t *testing.T) {
	state := Classify(snap(50, -1))
	if state.Regime != model.RegimeRange {
		t.Fatalf("expected range, got %s", state.Regime)
	}
	if state.Confidence != 0.5 || state.TrendStrength != 0 || state.Volatility != 0.02 {
		t.Errorf("range outputs wrong: %+v", state)
	}
}

func TestClassify_RulePriority(t *testing.T) {
	// rsi=25 with macd>0 satisfies both the trend rule and the oversold
	// half of the high_volatility rule. The trend rule is checked first
	// and must win.
	state := Classify(snap(25, 2))
	if state.Regime != model.RegimeTrend {
		t.Errorf("rule priority violated: got %s, want trend", state.Regime)
	}

	// Overbought with positive MACD fails rule 1 (rsi >= 70) and falls
	// through to high_volatility.
	state = Classify(snap(75, 2))
	if state.Regime != model.RegimeHighVol {
		t.Errorf("expected high_volatility for rsi=75 macd>0, got %s", state.Regime)
	}
}

func TestClassify_NoHysteresis(t *testing.T) {
	// Back-to-back classifications are independent: the same input always
	// produces the same output regardless of what came before.
	a := Classify(snap(65, 1))
	Classify(snap(75, -1))
	b := Classify(snap(65, 1))
	if a.Regime != b.Regime || a.Confidence != b.Confidence {
		t.Error("classification must be a pure function of the snapshot")
	}
}

func TestClassify_CarriesSymbolAndTime(t *testing.T) {
	s := snap(50, 0)
	state := Classify(s)
	if state.Symbol != s.Symbol {
		t.Errorf("symbol: got %q, want %q", state.Symbol, s.Symbol)
	}
	if !state.ComputedAt.Equal(s.ComputedAt) {
		t.Errorf("computedAt not carried from snapshot")
	}
}
