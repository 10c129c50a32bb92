package risk

import (
	"fmt"
	"math"

	"paperdesk/internal/domain"
)

const (
	// MinLeverage and MaxLeverage bound the leverage applied to a position.
	MinLeverage = 1
	MaxLeverage = 2000
	// MinQuantity is the smallest quantity a position is opened with.
	MinQuantity = 0.0001
	// MinNotional is the smallest notional size accepted from settings.
	MinNotional = 5.0
)

// Settings are the user adjustable sizing parameters of a session.
type Settings struct {
	Leverage int
	Sizing   domain.Sizing
}

// Sizer derives quantity and margin for new positions.
type Sizer struct {
	settings Settings
}

// NewSizer creates a sizer with the given settings, clamped to their valid ranges.
func NewSizer(s Settings) *Sizer {
	return &Sizer{settings: Normalize(s)}
}

// Normalize applies the leverage and size clamps. An unknown size mode falls
// back to notional sizing.
func Normalize(s Settings) Settings {
	s.Leverage = ClampLeverage(s.Leverage)
	switch s.Sizing.Mode {
	case domain.SizeFixedLot:
		if s.Sizing.Value < MinQuantity || math.IsNaN(s.Sizing.Value) {
			s.Sizing.Value = MinQuantity
		}
	default:
		s.Sizing.Mode = domain.SizeNotional
		if s.Sizing.Value < MinNotional || math.IsNaN(s.Sizing.Value) {
			s.Sizing.Value = MinNotional
		}
	}
	return s
}

// ClampLeverage bounds leverage to [MinLeverage, MaxLeverage].
func ClampLeverage(lev int) int {
	if lev < MinLeverage {
		return MinLeverage
	}
	if lev > MaxLeverage {
		return MaxLeverage
	}
	return lev
}

// Settings returns the normalized settings.
func (s *Sizer) Settings() Settings {
	return s.settings
}

// Leverage returns the clamped leverage.
func (s *Sizer) Leverage() int {
	return s.settings.Leverage
}

// Quantity returns the position quantity for an entry at price.
func (s *Sizer) Quantity(price float64) (float64, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("invalid entry price %v", price)
	}
	qty := s.settings.Sizing.Value
	if s.settings.Sizing.Mode == domain.SizeNotional {
		qty = s.settings.Sizing.Value / price
	}
	return math.Max(MinQuantity, qty), nil
}

// Margin returns the margin locked by a position of qty at price.
func (s *Sizer) Margin(price, qty float64) float64 {
	return price * qty / float64(s.settings.Leverage)
}
