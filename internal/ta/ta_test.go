package ta

import (
	"math"
	"testing"
)

func TestSMA(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	if got := SMA(vals, 5); got != 3 {
		t.Errorf("SMA(5) = %f, want 3", got)
	}
	// Window uses the tail.
	if got := SMA(vals, 2); got != 4.5 {
		t.Errorf("SMA(2) = %f, want 4.5", got)
	}
	if !math.IsNaN(SMA(vals, 6)) {
		t.Error("SMA with short input should be NaN")
	}
	if !math.IsNaN(SMA(vals, 0)) {
		t.Error("SMA with zero window should be NaN")
	}
}

func TestRSI(t *testing.T) {
	// Monotonic rise: no losses, RSI pegs at 100.
	up := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	if got := RSI(up, 14); got != 100 {
		t.Errorf("RSI of monotonic rise = %f, want 100", got)
	}

	// Monotonic fall: no gains, RSI 0.
	down := make([]float64, 15)
	for i := range down {
		down[i] = float64(15 - i)
	}
	if got := RSI(down, 14); got != 0 {
		t.Errorf("RSI of monotonic fall = %f, want 0", got)
	}

	// Exactly period+1 samples is the minimum.
	if math.IsNaN(RSI(up, 14)) {
		t.Error("RSI with period+1 samples should compute")
	}
	if !math.IsNaN(RSI(up[:14], 14)) {
		t.Error("RSI with period samples should be NaN")
	}
}

func TestEMA(t *testing.T) {
	vals := []float64{2, 2, 2, 2, 2}
	if got := EMA(vals, 3); got != 2 {
		t.Errorf("EMA of constant series = %f, want 2", got)
	}
	if !math.IsNaN(EMA(vals[:2], 3)) {
		t.Error("EMA with short input should be NaN")
	}

	// Seed is the simple average of the first n values.
	s := EMASeries([]float64{1, 2, 3, 4}, 3)
	if !math.IsNaN(s[0]) || !math.IsNaN(s[1]) {
		t.Error("Entries before the seed index should be NaN")
	}
	if s[2] != 2 {
		t.Errorf("Seed = %f, want 2", s[2])
	}
	// k = 2/(3+1) = 0.5 so next = 4*0.5 + 2*0.5 = 3.
	if s[3] != 3 {
		t.Errorf("EMA step = %f, want 3", s[3])
	}
}

func TestMACDInsufficientData(t *testing.T) {
	closes := make([]float64, 33)
	for i := range closes {
		closes[i] = float64(i)
	}
	// Needs slow+signal-1 = 34 samples.
	line, sig, hist := MACD(closes, 12, 26, 9)
	if !math.IsNaN(line) || !math.IsNaN(sig) || !math.IsNaN(hist) {
		t.Error("MACD with 33 samples should be NaN")
	}

	closes = append(closes, 33)
	line, sig, hist = MACD(closes, 12, 26, 9)
	if math.IsNaN(line) || math.IsNaN(sig) || math.IsNaN(hist) {
		t.Error("MACD with 34 samples should compute")
	}
	if math.Abs(hist-(line-sig)) > 1e-12 {
		t.Errorf("Histogram %f does not equal line-signal %f", hist, line-sig)
	}
}
