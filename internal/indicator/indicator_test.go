package indicator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSISeriesWarmup(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	rsi := RSISeries(closes, DefaultRSIPeriod)
	require.Len(t, rsi, len(closes))
	for i := 0; i < DefaultRSIPeriod; i++ {
		assert.True(t, math.IsNaN(rsi[i]), "index %d should be warm-up", i)
	}
	for i := DefaultRSIPeriod; i < len(closes); i++ {
		assert.False(t, math.IsNaN(rsi[i]), "index %d should be defined", i)
	}
}

func TestRSISeriesStrictlyIncreasing(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rsi := RSISeries(closes, DefaultRSIPeriod)
	assert.InDelta(t, 100, rsi[len(rsi)-1], 1e-9)
}

func TestRSISeriesStrictlyDecreasing(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 100 - float64(i)
	}
	rsi := RSISeries(closes, DefaultRSIPeriod)
	assert.InDelta(t, 0, rsi[len(rsi)-1], 1e-9)
}

func TestRSISeriesFlat(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 42
	}
	rsi := RSISeries(closes, DefaultRSIPeriod)
	for i := 0; i < DefaultRSIPeriod; i++ {
		assert.True(t, math.IsNaN(rsi[i]))
	}
	for i := DefaultRSIPeriod; i < len(closes); i++ {
		assert.Equal(t, 50.0, rsi[i])
	}
}

func TestRSISeriesTooShort(t *testing.T) {
	rsi := RSISeries([]float64{1, 2, 3}, DefaultRSIPeriod)
	for _, v := range rsi {
		assert.True(t, math.IsNaN(v))
	}
}

func TestComputeWarmupAbsent(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	snap := Compute(closes)
	assert.Equal(t, 5.0, snap.Price)
	assert.Nil(t, snap.RSI)
	assert.Nil(t, snap.MACD)
	assert.Nil(t, snap.Bollinger)
}

func TestComputeFullSeries(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		// Gentle oscillation around a rising trend.
		closes[i] = 100 + float64(i)*0.5 + 3*math.Sin(float64(i)/4)
	}
	snap := Compute(closes)
	require.NotNil(t, snap.RSI)
	require.NotNil(t, snap.MACD)
	require.NotNil(t, snap.Bollinger)
	assert.Greater(t, *snap.RSI, 0.0)
	assert.Less(t, *snap.RSI, 100.0)
	assert.Greater(t, snap.Bollinger.Upper, snap.Bollinger.Middle)
	assert.Greater(t, snap.Bollinger.Middle, snap.Bollinger.Lower)
	assert.InDelta(t, snap.MACD.Value-snap.MACD.Signal, snap.MACD.Histogram, 1e-9)
}
