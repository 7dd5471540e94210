package indicator

import (
	"testing"
	"time"

	"llm-autotrader/internal/types"
)

func series(tf types.Timeframe, closes []float64) *types.CandleSeries {
	candles := make([]types.Candle, len(closes))
	for i, c := range closes {
		candles[i] = types.Candle{
			OpenTime: time.Unix(int64(i)*900, 0),
			Open:     c,
			High:     c + 1,
			Low:      c - 1,
			Close:    c,
			Volume:   1000,
		}
	}
	return &types.CandleSeries{Symbol: "RELIANCE", Timeframe: tf, Candles: candles}
}

func ramp(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func TestComputeWithTwentyCandles(t *testing.T) {
	now := time.Now()
	ind := Compute(series(types.Timeframe15m, ramp(20)), nil, now)

	if ind.ShortTerm.RSI14 == nil {
		t.Fatal("Expected RSI14 with 20 candles")
	}
	if *ind.ShortTerm.RSI14 != 100 {
		t.Errorf("RSI14 of rising closes = %f, want 100", *ind.ShortTerm.RSI14)
	}
	if ind.ShortTerm.SMA20 == nil {
		t.Error("Expected SMA20 with 20 candles")
	}
	if ind.ShortTerm.EMA12 == nil {
		t.Error("Expected EMA12 with 20 candles")
	}
	// EMA26 and MACD need more history.
	if ind.ShortTerm.EMA26 != nil {
		t.Error("EMA26 should be nil with 20 candles")
	}
	if ind.ShortTerm.MACD != nil {
		t.Error("MACD should be nil with 20 candles")
	}
	if !ind.ComputedAt.Equal(now) {
		t.Error("ComputedAt should carry the supplied timestamp")
	}
}

func TestComputeWithTenCandles(t *testing.T) {
	ind := Compute(series(types.Timeframe15m, ramp(10)), nil, time.Now())

	if ind.ShortTerm.RSI14 != nil {
		t.Error("RSI14 should be nil with 10 candles")
	}
	if ind.ShortTerm.SMA20 != nil {
		t.Error("SMA20 should be nil with 10 candles")
	}
}

func TestComputeNilSeries(t *testing.T) {
	ind := Compute(nil, nil, time.Now())
	if ind.ShortTerm.RSI14 != nil || ind.LongTerm.SMA50 != nil {
		t.Error("All indicators should be nil without candles")
	}
	if ind.LongTerm.Trend != types.TrendFlat {
		t.Errorf("Trend without data = %s, want flat", ind.LongTerm.Trend)
	}
}

func TestTrendClassification(t *testing.T) {
	// 120 rising hourly closes: SMA50 > SMA100, last close above both.
	up := Compute(nil, series(types.Timeframe1h, ramp(120)), time.Now())
	if up.LongTerm.Trend != types.TrendUp {
		t.Errorf("Rising series trend = %s, want up", up.LongTerm.Trend)
	}

	falling := make([]float64, 120)
	for i := range falling {
		falling[i] = 500 - float64(i)
	}
	down := Compute(nil, series(types.Timeframe1h, falling), time.Now())
	if down.LongTerm.Trend != types.TrendDown {
		t.Errorf("Falling series trend = %s, want down", down.LongTerm.Trend)
	}

	flat := make([]float64, 120)
	for i := range flat {
		flat[i] = 250
	}
	sideways := Compute(nil, series(types.Timeframe1h, flat), time.Now())
	if sideways.LongTerm.Trend != types.TrendFlat {
		t.Errorf("Constant series trend = %s, want flat", sideways.LongTerm.Trend)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	now := time.Now()
	s15 := series(types.Timeframe15m, ramp(60))
	s1h := series(types.Timeframe1h, ramp(120))

	a := Compute(s15, s1h, now)
	b := Compute(s15, s1h, now)
	if *a.ShortTerm.RSI14 != *b.ShortTerm.RSI14 || *a.LongTerm.SMA50 != *b.LongTerm.SMA50 {
		t.Error("Identical inputs must produce identical indicators")
	}
}
