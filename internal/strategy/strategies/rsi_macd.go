package strategies

import (
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// RSIMACD requires an RSI extreme together with a MACD histogram sign flip.
// Long: RSI oversold and the histogram turns positive (prev <= 0, last > 0).
// Short: RSI overbought and the histogram turns negative (prev >= 0, last < 0).
type RSIMACD struct {
	thresholds *indicators.RSIThresholds
}

// NewRSIMACD creates the strategy with the given RSI zones (e.g. 30/70).
func NewRSIMACD(oversold, overbought float64) *RSIMACD {
	return &RSIMACD{
		thresholds: indicators.NewRSIThresholds(indicators.RSIConfig{
			Overbought: overbought,
			Oversold:   oversold,
		}),
	}
}

// ID returns the configuration name of the strategy.
func (s *RSIMACD) ID() domain.StrategyID { return domain.StrategyRSIMACD }

// Evaluate implements Strategy.
func (s *RSIMACD) Evaluate(_ []domain.Candle, set *indicators.Set, i int) domain.Signal {
	rsi, ok := set.RSI.At(i)
	if !ok {
		return domain.SignalNone
	}
	prev, ok1 := set.MACD.Hist.At(i - 1)
	last, ok2 := set.MACD.Hist.At(i)
	if !ok1 || !ok2 {
		return domain.SignalNone
	}

	if s.thresholds.IsOversold(rsi) && last > 0 && prev <= 0 {
		return domain.SignalLong
	}
	if s.thresholds.IsOverbought(rsi) && last < 0 && prev >= 0 {
		return domain.SignalShort
	}
	return domain.SignalNone
}
