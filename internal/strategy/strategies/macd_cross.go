package strategies

import (
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// MACDCross trades the MACD line crossing its signal line.
type MACDCross struct{}

// ID returns the configuration name of the strategy.
func (MACDCross) ID() domain.StrategyID { return domain.StrategyMACDCross }

// Evaluate implements Strategy.
func (MACDCross) Evaluate(_ []domain.Candle, set *indicators.Set, i int) domain.Signal {
	switch {
	case crossedAbove(set.MACD.Line, set.MACD.Signal, i):
		return domain.SignalLong
	case crossedBelow(set.MACD.Line, set.MACD.Signal, i):
		return domain.SignalShort
	}
	return domain.SignalNone
}
