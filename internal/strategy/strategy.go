package strategy

import (
	"context"
	"fmt"

	"paperdesk/internal/domain"
	"paperdesk/internal/ports"
	"paperdesk/internal/strategy/indicators"
	"paperdesk/internal/strategy/strategies"
)

// MinCandles is the smallest window the engine evaluates.
const MinCandles = 30

// Config holds parameters for the signal engine.
type Config struct {
	Indicators    indicators.Params
	RSIOverbought float64 // e.g., 70.0
	RSIOversold   float64 // e.g., 30.0
}

// DefaultConfig returns the standard engine settings.
func DefaultConfig() Config {
	return Config{
		Indicators:    indicators.DefaultParams(),
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}

// Engine evaluates the configured strategies against candle windows.
type Engine struct {
	cfg        Config
	logger     ports.Logger
	strategies map[domain.StrategyID]strategies.Strategy
}

// New creates a new Engine instance.
func New(cfg Config, logger ports.Logger) (*Engine, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for strategy engine")
	}
	if err := cfg.Indicators.Validate(); err != nil {
		return nil, fmt.Errorf("invalid indicator parameters: %w", err)
	}
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		return nil, fmt.Errorf("invalid RSI thresholds (overbought must be > oversold, between 0-100)")
	}

	registry := make(map[domain.StrategyID]strategies.Strategy, len(domain.StrategyIDs))
	for _, s := range []strategies.Strategy{
		strategies.EMACross{},
		strategies.NewRSIMACD(cfg.RSIOversold, cfg.RSIOverbought),
		strategies.BBBounce{},
		strategies.PivotBreak{},
		strategies.MACDCross{},
	} {
		registry[s.ID()] = s
	}

	return &Engine{cfg: cfg, logger: logger, strategies: registry}, nil
}

// MinCandles returns the minimum number of candles needed for evaluation.
func (e *Engine) MinCandles() int {
	return MinCandles
}

// Indicators computes the full indicator set over candles with the engine parameters.
func (e *Engine) Indicators(candles []domain.Candle) *indicators.Set {
	return indicators.Compute(candles, e.cfg.Indicators)
}

// Evaluate returns the signal of strategy id on the last closed bar of candles.
// The final candle is treated as still forming, so bar n-2 is inspected
// against bar n-3. Windows shorter than MinCandles yield SignalNone.
func (e *Engine) Evaluate(ctx context.Context, candles []domain.Candle, id domain.StrategyID) domain.Signal {
	if len(candles) < MinCandles {
		e.logger.Debug(ctx, "Not enough candles for strategy evaluation",
			map[string]interface{}{"available": len(candles), "required": MinCandles})
		return domain.SignalNone
	}

	strat, ok := e.strategies[id]
	if !ok {
		e.logger.Warn(ctx, "Unknown strategy requested", map[string]interface{}{"strategy": string(id)})
		return domain.SignalNone
	}

	i := len(candles) - 2
	set := e.Indicators(candles)
	sig := strat.Evaluate(candles, set, i)

	fields := map[string]interface{}{
		"strategy": string(id),
		"barTime":  candles[i].Time,
		"close":    candles[i].Close,
		"signal":   sig.String(),
	}
	if sig != domain.SignalNone {
		e.logger.Info(ctx, "Strategy signal fired", fields)
	} else {
		e.logger.Debug(ctx, "No strategy signal", fields)
	}
	return sig
}
