package strategies

import (
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// Strategy is one of the closed set of signal rules.
type Strategy interface {
	// ID returns the configuration name of the strategy.
	ID() domain.StrategyID

	// Evaluate inspects bar i (the last closed bar) and bar i-1 of candles.
	// set must have been computed over the same candles. i is at least 1.
	Evaluate(candles []domain.Candle, set *indicators.Set, i int) domain.Signal
}

// crossedAbove reports whether a moved from at-or-below b on bar i-1 to above b on bar i.
func crossedAbove(a, b indicators.Series, i int) bool {
	a0, ok1 := a.At(i - 1)
	b0, ok2 := b.At(i - 1)
	a1, ok3 := a.At(i)
	b1, ok4 := b.At(i)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	return a1 > b1 && a0 <= b0
}

// crossedBelow reports whether a moved from at-or-above b on bar i-1 to below b on bar i.
func crossedBelow(a, b indicators.Series, i int) bool {
	a0, ok1 := a.At(i - 1)
	b0, ok2 := b.At(i - 1)
	a1, ok3 := a.At(i)
	b1, ok4 := b.At(i)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return false
	}
	return a1 < b1 && a0 >= b0
}
