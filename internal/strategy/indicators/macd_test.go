package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACD_HistogramIdentity(t *testing.T) {
	closes := make([]float64, 200)
	for i := range closes {
		closes[i] = 30000 + 400*math.Sin(float64(i)/7) + float64(i)
	}

	m := MACD(closes, 12, 26, 9)
	require.Len(t, m.Line, len(closes))
	require.Len(t, m.Signal, len(closes))
	require.Len(t, m.Hist, len(closes))

	for i := range closes {
		assert.Equal(t, m.Line[i]-m.Signal[i], m.Hist[i], "index %d", i)
	}
}

func TestMACD_ConstantPricesAreZero(t *testing.T) {
	closes := []float64{50, 50, 50, 50, 50}
	m := MACD(closes, 12, 26, 9)
	for i := range closes {
		assert.Zero(t, m.Line[i])
		assert.Zero(t, m.Signal[i])
		assert.Zero(t, m.Hist[i])
	}
}

func TestBollinger(t *testing.T) {
	closes := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	bands := Bollinger(closes, 8, 2)

	for i := 0; i < 7; i++ {
		_, ok := bands.Basis.At(i)
		assert.False(t, ok)
		_, ok = bands.Upper.At(i)
		assert.False(t, ok)
	}
	// Population stddev of this classic sample is exactly 2.
	basis, _ := bands.Basis.Last()
	upper, _ := bands.Upper.Last()
	lower, _ := bands.Lower.Last()
	assert.InDelta(t, 5.0, basis, 1e-9)
	assert.InDelta(t, 9.0, upper, 1e-9)
	assert.InDelta(t, 1.0, lower, 1e-9)
}

func TestStdDev_Population(t *testing.T) {
	series := StdDev([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)
	v, ok := series.Last()
	require.True(t, ok)
	assert.InDelta(t, 2.0, v, 1e-9)
}
