package indicators

import (
	"fmt"
	"math"
)

// Series is an indicator output aligned index-for-index with its input candles.
// Positions inside an indicator's warm-up window hold NaN.
type Series []float64

// undefinedSeries returns a series of n undefined values.
func undefinedSeries(n int) Series {
	s := make(Series, n)
	for i := range s {
		s[i] = math.NaN()
	}
	return s
}

// At returns the value at index i and whether it is defined.
// Out-of-range indices are reported as undefined.
func (s Series) At(i int) (float64, bool) {
	if i < 0 || i >= len(s) || math.IsNaN(s[i]) {
		return 0, false
	}
	return s[i], true
}

// Last returns the final value of the series and whether it is defined.
func (s Series) Last() (float64, bool) {
	return s.At(len(s) - 1)
}

// IndicatorConfig holds common configuration for indicators
type IndicatorConfig struct {
	Period int
}

// Params groups the lengths used to build an indicator Set.
type Params struct {
	EMAFast       int     // e.g., 12
	EMASlow       int     // e.g., 26
	RSIPeriod     int     // e.g., 14
	MACDFast      int     // e.g., 12
	MACDSlow      int     // e.g., 26
	MACDSignal    int     // e.g., 9
	BollingerLen  int     // e.g., 20
	BollingerMult float64 // e.g., 2.0
}

// DefaultParams returns the standard chart settings.
func DefaultParams() Params {
	return Params{
		EMAFast:       12,
		EMASlow:       26,
		RSIPeriod:     14,
		MACDFast:      12,
		MACDSlow:      26,
		MACDSignal:    9,
		BollingerLen:  20,
		BollingerMult: 2,
	}
}

// Validate checks that every length is positive and fast periods are shorter than slow ones.
func (p Params) Validate() error {
	if p.EMAFast <= 0 || p.EMASlow <= 0 || p.RSIPeriod <= 0 || p.MACDFast <= 0 ||
		p.MACDSlow <= 0 || p.MACDSignal <= 0 || p.BollingerLen <= 0 {
		return fmt.Errorf("indicator periods must be positive")
	}
	if p.EMAFast >= p.EMASlow {
		return fmt.Errorf("fast EMA period (%d) must be less than slow EMA period (%d)", p.EMAFast, p.EMASlow)
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("MACD fast period (%d) must be less than slow period (%d)", p.MACDFast, p.MACDSlow)
	}
	if p.BollingerMult <= 0 {
		return fmt.Errorf("bollinger multiplier must be positive")
	}
	return nil
}
