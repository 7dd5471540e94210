package ta

import "math"

// All functions return math.NaN() when the input is too short for the
// requested window.

func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}

func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// EMASeries returns the EMA(n) aligned with vals. Entries before index n-1
// are NaN; index n-1 is seeded with the simple average of the first n values.
func EMASeries(vals []float64, n int) []float64 {
	out := make([]float64, len(vals))
	for i := range out {
		out[i] = math.NaN()
	}
	if len(vals) < n || n <= 0 {
		return out
	}

	seed := 0.0
	for i := 0; i < n; i++ {
		seed += vals[i]
	}
	seed /= float64(n)
	out[n-1] = seed

	k := 2.0 / float64(n+1)
	prev := seed
	for i := n; i < len(vals); i++ {
		prev = vals[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out
}

func EMA(vals []float64, n int) float64 {
	s := EMASeries(vals, n)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// MACD returns the MACD(fast,slow,signal) line, signal, and histogram for the
// last sample. All three are NaN unless len(closes) >= slow+signal-1.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	nan := math.NaN()
	if len(closes) < slow+signal-1 || fast <= 0 || slow <= fast || signal <= 0 {
		return nan, nan, nan
	}

	fastS := EMASeries(closes, fast)
	slowS := EMASeries(closes, slow)

	// MACD line exists from index slow-1 onward.
	macd := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		macd = append(macd, fastS[i]-slowS[i])
	}

	sigS := EMASeries(macd, signal)
	line = macd[len(macd)-1]
	sig = sigS[len(sigS)-1]
	if math.IsNaN(sig) {
		return nan, nan, nan
	}
	return line, sig, line - sig
}
