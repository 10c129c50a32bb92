package domain

import "time"

// Candle represents a single OHLCV bar.
type Candle struct {
	Time   int64 // Bar open time, epoch seconds (UTC)
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// OpenTime returns the bar open time as a UTC time.Time.
func (c Candle) OpenTime() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// Closes extracts the close prices of a candle sequence.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
