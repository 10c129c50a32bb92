package strategies

import (
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// EMACross goes long when the fast EMA crosses above the slow EMA and short on the reverse.
type EMACross struct{}

// ID returns the configuration name of the strategy.
func (EMACross) ID() domain.StrategyID { return domain.StrategyEMACross }

// Evaluate implements Strategy.
func (EMACross) Evaluate(_ []domain.Candle, set *indicators.Set, i int) domain.Signal {
	switch {
	case crossedAbove(set.EMAFast, set.EMASlow, i):
		return domain.SignalLong
	case crossedBelow(set.EMAFast, set.EMASlow, i):
		return domain.SignalShort
	}
	return domain.SignalNone
}
