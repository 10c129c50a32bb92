package strategies

import (
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// PivotBreak trades a close through the prior-day R1 (long) or S1 (short).
type PivotBreak struct{}

// ID returns the configuration name of the strategy.
func (PivotBreak) ID() domain.StrategyID { return domain.StrategyPivotBreak }

// Evaluate implements Strategy. Without a prior trading day there is no signal.
func (PivotBreak) Evaluate(candles []domain.Candle, set *indicators.Set, i int) domain.Signal {
	if !set.HasPivots {
		return domain.SignalNone
	}
	prev, last := candles[i-1].Close, candles[i].Close
	switch {
	case prev <= set.Pivots.R1 && last > set.Pivots.R1:
		return domain.SignalLong
	case prev >= set.Pivots.S1 && last < set.Pivots.S1:
		return domain.SignalShort
	}
	return domain.SignalNone
}
