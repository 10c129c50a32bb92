package domain

import (
	"fmt"
	"strings"
)

// Side represents the direction of a position (LONG or SHORT).
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Signal is the directional output of the signal engine.
type Signal string

const (
	SignalNone  Signal = ""
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
)

// Side converts a directional signal into a position side.
// The second return is false for SignalNone.
func (s Signal) Side() (Side, bool) {
	switch s {
	case SignalLong:
		return Long, true
	case SignalShort:
		return Short, true
	default:
		return "", false
	}
}

// String returns the signal name, "NONE" for no signal.
func (s Signal) String() string {
	if s == SignalNone {
		return "NONE"
	}
	return string(s)
}

// StrategyID identifies one of the built-in signal rules.
type StrategyID string

const (
	StrategyEMACross   StrategyID = "ema_cross"
	StrategyRSIMACD    StrategyID = "rsi_macd"
	StrategyBBBounce   StrategyID = "bb_bounce"
	StrategyPivotBreak StrategyID = "pivot_break"
	StrategyMACDCross  StrategyID = "macd_cross"
)

// StrategyIDs lists every supported strategy in display order.
var StrategyIDs = []StrategyID{
	StrategyEMACross,
	StrategyRSIMACD,
	StrategyBBBounce,
	StrategyPivotBreak,
	StrategyMACDCross,
}

// ParseStrategyID validates a strategy name from configuration.
func ParseStrategyID(s string) (StrategyID, error) {
	id := StrategyID(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range StrategyIDs {
		if id == known {
			return id, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// SizeMode selects how the quantity of a new position is derived.
type SizeMode string

const (
	// SizeNotional sizes by a fixed amount of quote currency (e.g. 100 USDT).
	SizeNotional SizeMode = "notional"
	// SizeFixedLot sizes by a fixed base-asset quantity (e.g. 0.1 BTC).
	SizeFixedLot SizeMode = "fixed_lot"
)

// ParseSizeMode validates a size mode from configuration.
func ParseSizeMode(s string) (SizeMode, error) {
	switch SizeMode(strings.ToLower(strings.TrimSpace(s))) {
	case SizeNotional:
		return SizeNotional, nil
	case SizeFixedLot:
		return SizeFixedLot, nil
	default:
		return "", fmt.Errorf("unknown size mode %q", s)
	}
}

// Sizing couples a size mode with its magnitude.
type Sizing struct {
	Mode  SizeMode
	Value float64
}
