package indicators

import "paperdesk/internal/domain"

// Set bundles every indicator the signal engine and chart overlays consume,
// computed once over the same candle window.
type Set struct {
	Closes    []float64
	EMAFast   Series
	EMASlow   Series
	RSI       Series
	MACD      MACDResult
	Bollinger Bands
	Pivots    Pivots
	HasPivots bool
}

// Compute builds an indicator Set over candles. The input is not modified.
func Compute(candles []domain.Candle, p Params) *Set {
	closes := domain.Closes(candles)
	pivots, ok := PivotsClassic(candles)
	return &Set{
		Closes:    closes,
		EMAFast:   EMA(closes, p.EMAFast),
		EMASlow:   EMA(closes, p.EMASlow),
		RSI:       RSI(closes, p.RSIPeriod),
		MACD:      MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal),
		Bollinger: Bollinger(closes, p.BollingerLen, p.BollingerMult),
		Pivots:    pivots,
		HasPivots: ok,
	}
}
