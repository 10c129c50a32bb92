package indicators

import (
	"math"

	"paperdesk/internal/domain"
)

const secondsPerDay = 24 * 60 * 60

// Pivots are classic floor-trader levels derived from the prior UTC day.
type Pivots struct {
	P  float64
	R1 float64
	S1 float64
}

// utcDay returns the number of whole UTC days since the epoch for t.
func utcDay(t int64) int64 {
	d := t / secondsPerDay
	if t%secondsPerDay < 0 {
		d--
	}
	return d
}

// PivotsClassic derives P/R1/S1 from the most recent UTC day strictly before
// the day of the last candle. It reports false when the window holds no
// candle from an earlier day.
func PivotsClassic(candles []domain.Candle) (Pivots, bool) {
	if len(candles) < 2 {
		return Pivots{}, false
	}
	lastDay := utcDay(candles[len(candles)-1].Time)

	// Walk back to the last candle of an earlier day; that day is the prior session.
	end := -1
	for i := len(candles) - 2; i >= 0; i-- {
		if utcDay(candles[i].Time) < lastDay {
			end = i
			break
		}
	}
	if end < 0 {
		return Pivots{}, false
	}
	prevDay := utcDay(candles[end].Time)

	high := math.Inf(-1)
	low := math.Inf(1)
	for i := end; i >= 0 && utcDay(candles[i].Time) == prevDay; i-- {
		high = math.Max(high, candles[i].High)
		low = math.Min(low, candles[i].Low)
	}
	closePrice := candles[end].Close

	p := (high + low + closePrice) / 3
	return Pivots{
		P:  p,
		R1: 2*p - low,
		S1: 2*p - high,
	}, true
}
