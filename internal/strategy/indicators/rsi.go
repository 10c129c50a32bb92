package indicators

import "math"

// RSIConfig holds configuration for the RSI indicator
type RSIConfig struct {
	IndicatorConfig
	Overbought float64
	Oversold   float64
}

// RSIThresholds implements the Relative Strength Index zone checks.
type RSIThresholds struct {
	config RSIConfig
}

// NewRSIThresholds creates the overbought/oversold classifier.
func NewRSIThresholds(config RSIConfig) *RSIThresholds {
	return &RSIThresholds{config: config}
}

// IsOverbought reports whether value is strictly above the overbought level.
func (r *RSIThresholds) IsOverbought(value float64) bool {
	return value > r.config.Overbought
}

// IsOversold reports whether value is strictly below the oversold level.
func (r *RSIThresholds) IsOversold(value float64) bool {
	return value < r.config.Oversold
}

// RSI computes the Relative Strength Index with Wilder smoothing.
//
// Index 0 has no change and is undefined. For 1 <= i <= length the raw gains
// and losses are accumulated as the seed and the output stays undefined. After
// that up = (up*(length-1)+gain)/length, likewise for down. When down is zero
// the RSI is 100.
func RSI(closes []float64, length int) Series {
	out := undefinedSeries(len(closes))
	if length <= 0 {
		return out
	}
	var up, down float64
	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		gain := math.Max(change, 0)
		loss := math.Max(-change, 0)

		if i <= length {
			up += gain
			down += loss
			continue
		}

		up = (up*float64(length-1) + gain) / float64(length)
		down = (down*float64(length-1) + loss) / float64(length)
		if down == 0 {
			out[i] = 100
			continue
		}
		rs := up / down
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
