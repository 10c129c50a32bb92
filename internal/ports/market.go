package ports

import (
	"context"
	"time"

	"paperdesk/internal/domain"
)

// CandleSource supplies candle windows to the trading service.
// The core never fetches data itself; it is handed the result of GetCandles.
type CandleSource interface {
	// GetCandles returns up to limit of the most recent candles for pair on timeframe,
	// oldest first. The last candle may still be forming.
	GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]domain.Candle, error)

	// Ping checks connectivity to the data provider.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the provider's clock.
	GetServerTime(ctx context.Context) (time.Time, error)
}
