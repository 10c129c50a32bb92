package domain

import "time"

// Position is the single open paper position of a session.
type Position struct {
	Side       Side      // LONG or SHORT
	Quantity   float64   // Base-asset quantity, always positive
	EntryPrice float64   // Fill price at open
	Leverage   int       // Leverage applied when opened, within [1, 2000]
	Margin     float64   // Notional / leverage
	OpenedAt   time.Time // When the position was opened
}

// Notional returns the entry notional in quote currency.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

// PnLAt returns the profit or loss of the position marked at price.
func (p *Position) PnLAt(price float64) float64 {
	if p.Side == Short {
		return (p.EntryPrice - price) * p.Quantity
	}
	return (price - p.EntryPrice) * p.Quantity
}
