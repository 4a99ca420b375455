package indicator

import (
	"math"
	"testing"

	"marketpulse/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

func constant(p float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = p
	}
	return out
}

func rising(start, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// ────────────────────────────────────────────────────────────
// SMA Correctness
// ────────────────────────────────────────────────────────────

func TestSMA_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104, 103, 105
	// SMA(3) over the LAST 3 prices: (104+103+105)/3 = 104.0
	got, err := SMA([]float64{100, 102, 104, 103, 105}, 3)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "SMA(3)", got, 104.0, 0.0001)
}

func TestSMA_InsufficientData(t *testing.T) {
	_, err := SMA([]float64{100, 102}, 3)
	if model.KindOf(err) != model.KindInsufficientData {
		t.Errorf("expected InsufficientData, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// EMA Correctness (first-element seed, full-slice recurrence)
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// k = 2/(3+1) = 0.5, seed = first price = 100
	// 102 → 101.0
	// 104 → 102.5
	// 103 → 102.75
	// 105 → 103.875
	got, err := EMA([]float64{100, 102, 104, 103, 105}, 3)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "EMA(3)", got, 103.875, 0.0001)
}

func TestEMA_SeedIsFirstElement(t *testing.T) {
	// A single-element slice returns the seed itself.
	got, err := EMA([]float64{42}, 12)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "EMA single", got, 42.0, 0.0001)
}

func TestEMA_SliceOriginSensitivity(t *testing.T) {
	// The seed makes EMA depend on where the slice starts: the same tail
	// computed from different origins yields different values. This is the
	// documented behavior, not a bug.
	full := []float64{50, 100, 102, 104, 103, 105}
	tail := full[1:]

	a, _ := EMA(full, 3)
	b, _ := EMA(tail, 3)
	if math.Abs(a-b) < 1e-9 {
		t.Error("EMA should be sensitive to slice origin")
	}
}

func TestEMA_EmptySlice(t *testing.T) {
	_, err := EMA(nil, 12)
	if model.KindOf(err) != model.KindInsufficientData {
		t.Errorf("expected InsufficientData, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// RSI Correctness
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period3(t *testing.T) {
	// Prices: 44.00, 44.34, 44.09, 43.61, 44.33, 44.83
	// Deltas:      +0.34, -0.25, -0.48, +0.72, +0.50
	// Last 3 gains:  0,    0.72,  0.50 → avgGain = 1.22/3 = 0.406667
	// Last 3 losses: 0.48, 0,     0    → avgLoss = 0.48/3 = 0.16
	// RS = 2.541667 → RSI = 100 - 100/3.541667 = 71.7647
	got, err := RSI([]float64{44.00, 44.34, 44.09, 43.61, 44.33, 44.83}, 3)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI(3)", got, 71.7647, 0.001)
}

func TestRSI_SaturatesAt100OnZeroLosses(t *testing.T) {
	// Monotonically rising prices have no losses: avgLoss = 0 must
	// saturate RSI at 100, not propagate an infinite RS.
	got, err := RSI(rising(100, 1, 20), RSIPeriod)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI all-up", got, 100.0, 0.0001)
}

func TestRSI_AllDownIsZero(t *testing.T) {
	got, err := RSI(rising(200, -1, 20), RSIPeriod)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI all-down", got, 0.0, 0.0001)
}

func TestRSI_FlatSaturatesAt100(t *testing.T) {
	// Constant prices: zero gains AND zero losses → avgLoss==0 branch.
	got, err := RSI(constant(100, 20), RSIPeriod)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "RSI flat", got, 100.0, 0.0001)
}

func TestRSI_BoundedForAnyInput(t *testing.T) {
	inputs := [][]float64{
		rising(1, 0.01, 15),
		rising(1000, -37, 15),
		{5, 9, 2, 14, 3, 3, 3, 8, 1, 99, 42, 7, 7.5, 6, 100},
		constant(0.0001, 15),
	}
	for i, prices := range inputs {
		got, err := RSI(prices, RSIPeriod)
		if err != nil {
			t.Fatalf("input %d: %v", i, err)
		}
		if got < 0 || got > 100 {
			t.Errorf("input %d: RSI %.4f out of [0,100]", i, got)
		}
	}
}

func TestRSI_InsufficientData(t *testing.T) {
	_, err := RSI(constant(100, 14), RSIPeriod) // 14 points = 13 deltas
	if model.KindOf(err) != model.KindInsufficientData {
		t.Errorf("expected InsufficientData, got %v", err)
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_PositiveInUptrend(t *testing.T) {
	// EMA12 and EMA26 share the slice and the seed; the faster multiplier
	// tracks a monotonic rise more closely, so MACD must be positive.
	got, err := MACD(rising(100, 0.5, 40))
	if err != nil {
		t.Fatal(err)
	}
	if got <= 0 {
		t.Errorf("expected MACD > 0 in uptrend, got %.6f", got)
	}
}

func TestMACD_NegativeInDowntrend(t *testing.T) {
	got, err := MACD(rising(200, -0.5, 40))
	if err != nil {
		t.Fatal(err)
	}
	if got >= 0 {
		t.Errorf("expected MACD < 0 in downtrend, got %.6f", got)
	}
}

func TestMACD_ZeroOnConstantPrices(t *testing.T) {
	got, err := MACD(constant(100, 30))
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "MACD flat", got, 0.0, 1e-9)
}

// ────────────────────────────────────────────────────────────
// Bollinger Bands
// ────────────────────────────────────────────────────────────

func TestBollinger_Correctness_Period3(t *testing.T) {
	// Prices: 100, 102, 104 → middle = 102
	// Population variance = ((-2)² + 0² + 2²)/3 = 8/3
	// band = 2 × √(8/3) = 3.265986
	bands, err := BollingerBands([]float64{100, 102, 104}, 3, 2.0)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "middle", bands.Middle, 102.0, 0.0001)
	assertClose(t, "upper", bands.Upper, 105.265986, 0.0001)
	assertClose(t, "lower", bands.Lower, 98.734014, 0.0001)
}

func TestBollinger_CollapseOnConstantPrices(t *testing.T) {
	bands, err := BollingerBands(constant(87.5, 25), BollingerPeriod, BollingerK)
	if err != nil {
		t.Fatal(err)
	}
	assertClose(t, "upper", bands.Upper, 87.5, 1e-9)
	assertClose(t, "middle", bands.Middle, 87.5, 1e-9)
	assertClose(t, "lower", bands.Lower, 87.5, 1e-9)
}

func TestBollinger_InsufficientData(t *testing.T) {
	_, err := BollingerBands(constant(100, 19), BollingerPeriod, BollingerK)
	if model.KindOf(err) != model.KindInsufficientData {
		t.Errorf("expected InsufficientData, got %v", err)
	}
}
