package domain

import "time"

// Visibility holds the indicator overlay toggles of a session.
type Visibility struct {
	EMA    bool
	BB     bool
	RSI    bool
	Pivots bool
	MACD   bool
}

// DefaultVisibility matches a freshly created session.
func DefaultVisibility() Visibility {
	return Visibility{EMA: true, BB: true, RSI: true, Pivots: true, MACD: false}
}

// Session is the persisted state of a paper-trading session.
type Session struct {
	ID         string
	Capital    float64
	Leverage   int
	Sizing     Sizing
	Pair       string
	Timeframe  string
	Running    bool
	Strategy   StrategyID
	Visibility Visibility
	Position   *Position     // nil when flat
	Closed     []ClosedTrade // most recent first
	UpdatedAt  time.Time
}
