package domain

import "time"

// ClosedTrade is an immutable ledger record created when a position closes.
type ClosedTrade struct {
	ID          int64     // Store-assigned identifier (0 until persisted)
	OpenedAt    time.Time // When the position was opened
	ClosedAt    time.Time // When the position was closed
	Pair        string    // Trading pair, e.g. "BTCUSDT"
	Side        Side      // Side of the closed position
	Quantity    float64   // Base-asset quantity
	EntryPrice  float64   // Price at open
	ExitPrice   float64   // Price at close
	RealizedPnL float64   // Profit and loss realized to capital
}
