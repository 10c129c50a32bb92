package ports

import (
	"context"

	"paperdesk/internal/domain"
)

// SignalEvaluator turns a candle window into a directional signal.
type SignalEvaluator interface {
	// MinCandles returns the minimum window length the evaluator needs.
	MinCandles() int

	// Evaluate inspects the last closed bar of candles using the selected strategy.
	Evaluate(ctx context.Context, candles []domain.Candle, id domain.StrategyID) domain.Signal
}
