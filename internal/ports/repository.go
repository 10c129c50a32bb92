package ports

import (
	"context"

	"paperdesk/internal/domain"
)

// SessionRepository persists session state between process runs.
type SessionRepository interface {
	// Load returns the stored session with the given ID.
	// Returns nil, nil if no session has been saved yet.
	Load(ctx context.Context, id string) (*domain.Session, error)
	// Save atomically upserts the session settings, capital and open position
	// and appends closed trades whose ID is zero, setting their IDs.
	// Closed trades that already have an ID are not rewritten.
	Save(ctx context.Context, s *domain.Session) error
	// Delete removes a session together with its position and ledger.
	Delete(ctx context.Context, id string) error
}
