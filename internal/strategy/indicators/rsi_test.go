package indicators

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		period int
		want   float64
	}{
		{
			name:   "mixed moves",
			closes: []float64{100, 102, 101, 103, 102, 104}, // +2 -1 +2 -1 +2
			period: 3,
			want:   78.571429,
		},
		{
			name:   "all gains",
			closes: []float64{100, 102, 104, 106, 108},
			period: 3,
			want:   100,
		},
		{
			name:   "all losses",
			closes: []float64{108, 106, 104, 102, 100},
			period: 3,
			want:   0,
		},
		{
			name:   "flat prices",
			closes: []float64{100, 100, 100, 100, 100},
			period: 3,
			want:   100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series := RSI(tt.closes, tt.period)
			require.Len(t, series, len(tt.closes))

			got, ok := series.Last()
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestRSI_SeedWindowUndefined(t *testing.T) {
	closes := []float64{100, 102, 101, 103, 102, 104}
	series := RSI(closes, 3)

	for i := 0; i <= 3; i++ {
		_, ok := series.At(i)
		assert.False(t, ok, "index %d should be undefined", i)
	}
	v, ok := series.At(4)
	require.True(t, ok)
	assert.InDelta(t, 72.727273, v, 1e-4)
}

func TestRSI_Bounded(t *testing.T) {
	inputs := map[string][]float64{}

	rising := make([]float64, 120)
	falling := make([]float64, 120)
	wave := make([]float64, 120)
	for i := range rising {
		rising[i] = 100 + float64(i)
		falling[i] = 500 - 3*float64(i)
		wave[i] = 100 + 15*math.Sin(float64(i)/4) + 3*math.Cos(float64(i))
	}
	inputs["rising"] = rising
	inputs["falling"] = falling
	inputs["oscillating"] = wave

	for name, closes := range inputs {
		t.Run(name, func(t *testing.T) {
			series := RSI(closes, 14)
			require.Len(t, series, len(closes))
			for i := range series {
				v, ok := series.At(i)
				if i <= 14 {
					assert.False(t, ok, "index %d should be undefined", i)
					continue
				}
				require.True(t, ok)
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 100.0)
			}
		})
	}
}

func TestRSIThresholds(t *testing.T) {
	th := NewRSIThresholds(RSIConfig{
		IndicatorConfig: IndicatorConfig{Period: 14},
		Overbought:      70,
		Oversold:        30,
	})

	tests := []struct {
		name         string
		value        float64
		isOverbought bool
		isOversold   bool
	}{
		{name: "Overbought condition", value: 75.0, isOverbought: true},
		{name: "Oversold condition", value: 25.0, isOversold: true},
		{name: "Neutral condition", value: 50.0},
		{name: "Exact overbought threshold", value: 70.0},
		{name: "Exact oversold threshold", value: 30.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isOverbought, th.IsOverbought(tt.value))
			assert.Equal(t, tt.isOversold, th.IsOversold(tt.value))
		})
	}
}
