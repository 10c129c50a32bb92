package strategies

import (
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// BBBounce fades closes outside the Bollinger envelope:
// long below the lower band, short above the upper band.
type BBBounce struct{}

// ID returns the configuration name of the strategy.
func (BBBounce) ID() domain.StrategyID { return domain.StrategyBBBounce }

// Evaluate implements Strategy. Undefined bands yield no signal.
func (BBBounce) Evaluate(candles []domain.Candle, set *indicators.Set, i int) domain.Signal {
	upper, ok1 := set.Bollinger.Upper.At(i)
	lower, ok2 := set.Bollinger.Lower.At(i)
	if !ok1 || !ok2 {
		return domain.SignalNone
	}
	closePrice := candles[i].Close
	switch {
	case closePrice < lower:
		return domain.SignalLong
	case closePrice > upper:
		return domain.SignalShort
	}
	return domain.SignalNone
}
