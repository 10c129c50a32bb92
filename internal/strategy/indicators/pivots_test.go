package indicators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/internal/domain"
)

func hourly(start time.Time, n int, fn func(i int) domain.Candle) []domain.Candle {
	out := make([]domain.Candle, n)
	for i := 0; i < n; i++ {
		c := fn(i)
		c.Time = start.Add(time.Duration(i) * time.Hour).Unix()
		out[i] = c
	}
	return out
}

func TestPivotsClassic_PriorDay(t *testing.T) {
	day1 := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	// One full UTC day: high 110, low 90, final close 100.
	prior := hourly(day1, 24, func(i int) domain.Candle {
		c := domain.Candle{Open: 100, High: 105, Low: 95, Close: 101}
		switch i {
		case 5:
			c.High = 110
		case 17:
			c.Low = 90
		case 23:
			c.Close = 100
		}
		return c
	})
	today := hourly(day1.Add(24*time.Hour), 3, func(i int) domain.Candle {
		return domain.Candle{Open: 100, High: 130, Low: 70, Close: 120}
	})

	piv, ok := PivotsClassic(append(prior, today...))
	require.True(t, ok)
	assert.InDelta(t, 100.0, piv.P, 1e-9)
	assert.InDelta(t, 110.0, piv.R1, 1e-9)
	assert.InDelta(t, 90.0, piv.S1, 1e-9)
}

func TestPivotsClassic_UsesMostRecentPriorDayOnly(t *testing.T) {
	start := time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)
	candles := hourly(start, 12+24+2, func(i int) domain.Candle {
		if i < 12 {
			// Older day with extreme range that must be ignored.
			return domain.Candle{High: 1000, Low: 1, Close: 500}
		}
		return domain.Candle{High: 110, Low: 90, Close: 100}
	})

	piv, ok := PivotsClassic(candles)
	require.True(t, ok)
	assert.InDelta(t, 100.0, piv.P, 1e-9)
}

func TestPivotsClassic_NoPriorDay(t *testing.T) {
	start := time.Date(2024, 3, 4, 1, 0, 0, 0, time.UTC)
	candles := hourly(start, 10, func(i int) domain.Candle {
		return domain.Candle{High: 110, Low: 90, Close: 100}
	})

	_, ok := PivotsClassic(candles)
	assert.False(t, ok)

	_, ok = PivotsClassic(nil)
	assert.False(t, ok)
}

func TestCompute_AlignedLengths(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	candles := hourly(start, 50, func(i int) domain.Candle {
		p := 100 + float64(i%7)
		return domain.Candle{Open: p, High: p + 1, Low: p - 1, Close: p}
	})

	set := Compute(candles, DefaultParams())
	for name, s := range map[string]Series{
		"emaFast": set.EMAFast, "emaSlow": set.EMASlow, "rsi": set.RSI,
		"macd": set.MACD.Line, "signal": set.MACD.Signal, "hist": set.MACD.Hist,
		"upper": set.Bollinger.Upper, "basis": set.Bollinger.Basis, "lower": set.Bollinger.Lower,
	} {
		assert.Len(t, s, len(candles), name)
	}
	assert.True(t, set.HasPivots)
}

func TestParams_Validate(t *testing.T) {
	assert.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.EMAFast = 30
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.RSIPeriod = 0
	assert.Error(t, p.Validate())
}
