package indicator

import (
	"math"
	"time"

	"llm-autotrader/internal/ta"
	"llm-autotrader/internal/types"
)

// Compute derives the indicator view from the two cached candle series. It is
// a pure function: identical inputs yield identical outputs. Fields whose
// window exceeds the available samples stay nil.
func Compute(series15m, series1h *types.CandleSeries, now time.Time) types.Indicators {
	ind := types.Indicators{ComputedAt: now, LongTerm: types.LongTermIndicators{Trend: types.TrendFlat}}

	if series15m != nil {
		closes := closesOf(series15m.Candles)
		vols := volumesOf(series15m.Candles)

		ind.ShortTerm.RSI14 = nonNaN(ta.RSI(closes, 14))
		ind.ShortTerm.SMA20 = nonNaN(ta.SMA(closes, 20))
		ind.ShortTerm.EMA12 = nonNaN(ta.EMA(closes, 12))
		ind.ShortTerm.EMA26 = nonNaN(ta.EMA(closes, 26))
		ind.ShortTerm.VolAvg20 = nonNaN(ta.SMA(vols, 20))

		line, sig, hist := ta.MACD(closes, 12, 26, 9)
		if !math.IsNaN(line) && !math.IsNaN(sig) {
			ind.ShortTerm.MACD = &types.MACD{Line: line, Signal: sig, Hist: hist}
		}
	}

	if series1h != nil {
		closes := closesOf(series1h.Candles)
		sma50 := ta.SMA(closes, 50)
		sma100 := ta.SMA(closes, 100)
		ind.LongTerm.SMA50 = nonNaN(sma50)
		ind.LongTerm.SMA100 = nonNaN(sma100)
		ind.LongTerm.Trend = classifyTrend(closes, sma50, sma100)
	}

	return ind
}

// classifyTrend is up when SMA50 > SMA100 with last close above SMA50, down
// in the mirrored case, flat otherwise (including insufficient data).
func classifyTrend(closes []float64, sma50, sma100 float64) types.Trend {
	if len(closes) == 0 || math.IsNaN(sma50) || math.IsNaN(sma100) {
		return types.TrendFlat
	}
	last := closes[len(closes)-1]
	switch {
	case sma50 > sma100 && last > sma50:
		return types.TrendUp
	case sma50 < sma100 && last < sma50:
		return types.TrendDown
	}
	return types.TrendFlat
}

func closesOf(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Close
	}
	return out
}

func volumesOf(cs []types.Candle) []float64 {
	out := make([]float64, len(cs))
	for i, c := range cs {
		out[i] = c.Volume
	}
	return out
}

func nonNaN(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
