// Package account implements the single-position paper account: capital,
// the open position and the ledger of closed trades.
package account

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"paperdesk/internal/domain"
	"paperdesk/internal/risk"
)

var (
	// ErrPositionOpen is returned by Open when a position is already held.
	ErrPositionOpen = errors.New("position already open")
	// ErrNoPosition is returned by Close when the account is flat.
	ErrNoPosition = errors.New("no open position")
)

// Config holds the initial state of an account.
type Config struct {
	Capital  float64
	Pair     string
	Settings risk.Settings
}

// Account is a paper account holding at most one position.
// All methods are safe for concurrent use.
type Account struct {
	mu       sync.RWMutex
	capital  float64
	pair     string
	sizer    *risk.Sizer
	position *domain.Position
	closed   []domain.ClosedTrade // most recent first
}

// New creates a flat account.
func New(cfg Config) *Account {
	return &Account{
		capital: cfg.Capital,
		pair:    cfg.Pair,
		sizer:   risk.NewSizer(cfg.Settings),
	}
}

// Open opens a position on side at price. The account state is left untouched
// and ErrPositionOpen returned if a position is already held.
func (a *Account) Open(side domain.Side, price float64, at time.Time) (domain.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.position != nil {
		return domain.Position{}, ErrPositionOpen
	}
	qty, err := a.sizer.Quantity(price)
	if err != nil {
		return domain.Position{}, fmt.Errorf("sizing position: %w", err)
	}
	a.position = &domain.Position{
		Side:       side,
		Quantity:   qty,
		EntryPrice: price,
		Leverage:   a.sizer.Leverage(),
		Margin:     a.sizer.Margin(price, qty),
		OpenedAt:   at,
	}
	return *a.position, nil
}

// Close closes the open position at price, realizes its PnL into capital and
// prepends the trade to the ledger. ErrNoPosition is returned when flat.
func (a *Account) Close(price float64, at time.Time) (domain.ClosedTrade, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.position == nil {
		return domain.ClosedTrade{}, ErrNoPosition
	}
	p := a.position
	trade := domain.ClosedTrade{
		OpenedAt:    p.OpenedAt,
		ClosedAt:    at,
		Pair:        a.pair,
		Side:        p.Side,
		Quantity:    p.Quantity,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   price,
		RealizedPnL: p.PnLAt(price),
	}
	a.capital += trade.RealizedPnL
	a.closed = append([]domain.ClosedTrade{trade}, a.closed...)
	a.position = nil
	return trade, nil
}

// RecordTradeIDs copies store-assigned IDs from a saved ledger snapshot.
// The snapshot may be older than the account's ledger: entries closed after
// it was taken sit in front and keep ID zero.
func (a *Account) RecordTradeIDs(saved []domain.ClosedTrade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	offset := len(a.closed) - len(saved)
	if offset < 0 {
		return
	}
	for i, t := range saved {
		if t.ID != 0 && a.closed[i+offset].ID == 0 {
			a.closed[i+offset].ID = t.ID
		}
	}
}

// UnrealizedPnL marks the open position at price. Zero when flat.
func (a *Account) UnrealizedPnL(mark float64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.position == nil {
		return 0
	}
	return a.position.PnLAt(mark)
}

// Capital returns the realized capital.
func (a *Account) Capital() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.capital
}

// Margin returns the margin locked by the open position, or zero.
func (a *Account) Margin() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.position == nil {
		return 0
	}
	return a.position.Margin
}

// Position returns a copy of the open position.
func (a *Account) Position() (domain.Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.position == nil {
		return domain.Position{}, false
	}
	return *a.position, true
}

// Closed returns a copy of the ledger, most recent first.
func (a *Account) Closed() []domain.ClosedTrade {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.ClosedTrade, len(a.closed))
	copy(out, a.closed)
	return out
}

// Pair returns the traded pair.
func (a *Account) Pair() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pair
}

// Settings returns the normalized sizing settings.
func (a *Account) Settings() risk.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sizer.Settings()
}

// Configure replaces the sizing settings and pair. An open position keeps the
// leverage and margin it was opened with.
func (a *Account) Configure(pair string, s risk.Settings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if pair != "" {
		a.pair = pair
	}
	a.sizer = risk.NewSizer(s)
}

// Reset discards the position and ledger and sets capital.
func (a *Account) Reset(capital float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.capital = capital
	a.position = nil
	a.closed = nil
}

// Snapshot writes the account state into s.
func (a *Account) Snapshot(s *domain.Session) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	settings := a.sizer.Settings()
	s.Capital = a.capital
	s.Pair = a.pair
	s.Leverage = settings.Leverage
	s.Sizing = settings.Sizing
	s.Position = nil
	if a.position != nil {
		p := *a.position
		s.Position = &p
	}
	s.Closed = make([]domain.ClosedTrade, len(a.closed))
	copy(s.Closed, a.closed)
}

// Restore rebuilds an account from a stored session.
func Restore(s *domain.Session) *Account {
	a := New(Config{
		Capital:  s.Capital,
		Pair:     s.Pair,
		Settings: risk.Settings{Leverage: s.Leverage, Sizing: s.Sizing},
	})
	if s.Position != nil {
		p := *s.Position
		a.position = &p
	}
	a.closed = make([]domain.ClosedTrade, len(s.Closed))
	copy(a.closed, s.Closed)
	return a
}
