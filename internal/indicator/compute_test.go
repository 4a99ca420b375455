package indicator

import (
	"testing"
	"time"

	"marketpulse/internal/model"
)

func TestCompute_ConstantPrices(t *testing.T) {
	// For a constant series p: SMA = EMA12 = EMA26 = p, MACD = 0,
	// RSI saturates at 100 (zero losses), and the Bollinger envelope
	// collapses onto p.
	at := time.Now().UTC()
	snap, err := Compute("BTC-USD", constant(250, 20), at)
	if err != nil {
		t.Fatal(err)
	}

	assertClose(t, "SMA20", snap.SMA20, 250, 1e-9)
	assertClose(t, "EMA12", snap.EMA12, 250, 1e-9)
	assertClose(t, "EMA26", snap.EMA26, 250, 1e-9)
	assertClose(t, "MACD", snap.MACD, 0, 1e-9)
	assertClose(t, "RSI", snap.RSI, 100, 1e-9)
	assertClose(t, "boll upper", snap.Bollinger.Upper, 250, 1e-9)
	assertClose(t, "boll middle", snap.Bollinger.Middle, 250, 1e-9)
	assertClose(t, "boll lower", snap.Bollinger.Lower, 250, 1e-9)

	if snap.Symbol != "BTC-USD" {
		t.Errorf("symbol: got %q", snap.Symbol)
	}
	if !snap.ComputedAt.Equal(at) {
		t.Errorf("computedAt: got %v, want %v", snap.ComputedAt, at)
	}
}

func TestCompute_RequiresMinWindow(t *testing.T) {
	_, err := Compute("BTC-USD", constant(100, MinWindow-1), time.Now().UTC())
	if model.KindOf(err) != model.KindInsufficientData {
		t.Fatalf("expected InsufficientData for 19 points, got %v", err)
	}

	if _, err := Compute("BTC-USD", constant(100, MinWindow), time.Now().UTC()); err != nil {
		t.Fatalf("20 points should compute: %v", err)
	}
}

func TestCompute_UptrendSnapshot(t *testing.T) {
	snap, err := Compute("ETH-USD", rising(100, 1, 50), time.Now().UTC())
	if err != nil {
		t.Fatal(err)
	}
	if snap.MACD <= 0 {
		t.Errorf("expected MACD > 0 in uptrend, got %.4f", snap.MACD)
	}
	assertClose(t, "RSI uptrend", snap.RSI, 100, 0.0001)
	if snap.Bollinger.Upper <= snap.Bollinger.Middle || snap.Bollinger.Middle <= snap.Bollinger.Lower {
		t.Errorf("band ordering violated: %+v", snap.Bollinger)
	}
}
