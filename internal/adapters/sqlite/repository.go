package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"paperdesk/internal/domain"
	"paperdesk/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.SessionRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/paperdesk.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Data directory checked/created", map[string]interface{}{"path": filepath.Dir(dbPath)})

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w: %w", dbPath, ports.ErrDBConnection, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		capital REAL NOT NULL,
		leverage INTEGER NOT NULL,
		size_mode TEXT NOT NULL,
		size_value REAL NOT NULL,
		pair TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		running BOOLEAN NOT NULL,
		strategy TEXT NOT NULL,
		show_ema BOOLEAN NOT NULL,
		show_bb BOOLEAN NOT NULL,
		show_rsi BOOLEAN NOT NULL,
		show_pivots BOOLEAN NOT NULL,
		show_macd BOOLEAN NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS open_positions (
		session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		leverage INTEGER NOT NULL,
		margin REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS closed_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		pair TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_closed_trades_session ON closed_trades (session_id, id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// Load retrieves a session with its open position and ledger, most recent
// trade first. Returns nil, nil if the session does not exist.
func (r *Repository) Load(ctx context.Context, id string) (*domain.Session, error) {
	const sessionQuery = `
	SELECT id, capital, leverage, size_mode, size_value, pair, timeframe, running, strategy,
	       show_ema, show_bb, show_rsi, show_pivots, show_macd, updated_at
	FROM sessions
	WHERE id = ?`

	s, err := scanSession(r.db.QueryRowContext(ctx, sessionQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "Session not found", map[string]interface{}{"sessionID": id})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query session %s: %w: %w", id, ports.ErrQueryFailed, err)
	}

	const positionQuery = `
	SELECT side, quantity, entry_price, leverage, margin, opened_at
	FROM open_positions
	WHERE session_id = ?`

	pos, err := scanPosition(r.db.QueryRowContext(ctx, positionQuery, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("failed to query open position for session %s: %w: %w", id, ports.ErrQueryFailed, err)
	default:
		s.Position = pos
	}

	trades, err := r.findTrades(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Closed = trades
	return s, nil
}

func (r *Repository) findTrades(ctx context.Context, sessionID string) ([]domain.ClosedTrade, error) {
	const query = `
	SELECT id, pair, side, quantity, entry_price, exit_price, realized_pnl, opened_at, closed_at
	FROM closed_trades
	WHERE session_id = ? ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger for session %s: %w: %w", sessionID, ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]domain.ClosedTrade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closed trade: %w: %w", ports.ErrQueryFailed, err)
		}
		trades = append(trades, *t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating closed trade rows: %w", err)
	}
	return trades, nil
}

// Save upserts the session settings and capital, replaces its open position
// and appends ledger entries that have no ID yet, all in one transaction.
// Appended entries get their store-assigned IDs once the transaction commits.
// Stored ledger entries are never rewritten.
func (r *Repository) Save(ctx context.Context, s *domain.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("session id is required: %w", ports.ErrInvalidRequest)
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w: %w", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	const upsert = `
	INSERT INTO sessions (id, capital, leverage, size_mode, size_value, pair, timeframe, running, strategy,
	                      show_ema, show_bb, show_rsi, show_pivots, show_macd, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		capital = excluded.capital, leverage = excluded.leverage,
		size_mode = excluded.size_mode, size_value = excluded.size_value,
		pair = excluded.pair, timeframe = excluded.timeframe,
		running = excluded.running, strategy = excluded.strategy,
		show_ema = excluded.show_ema, show_bb = excluded.show_bb, show_rsi = excluded.show_rsi,
		show_pivots = excluded.show_pivots, show_macd = excluded.show_macd,
		updated_at = excluded.updated_at`

	v := s.Visibility
	if _, err := tx.ExecContext(ctx, upsert,
		s.ID, s.Capital, s.Leverage, string(s.Sizing.Mode), s.Sizing.Value, s.Pair, s.Timeframe,
		s.Running, string(s.Strategy), v.EMA, v.BB, v.RSI, v.Pivots, v.MACD, s.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to upsert session %s: %w: %w", s.ID, ports.ErrUpdateFailed, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM open_positions WHERE session_id = ?`, s.ID); err != nil {
		return fmt.Errorf("failed to clear open position of session %s: %w: %w", s.ID, ports.ErrUpdateFailed, err)
	}
	if p := s.Position; p != nil {
		const insertPos = `
		INSERT INTO open_positions (session_id, side, quantity, entry_price, leverage, margin, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, insertPos,
			s.ID, string(p.Side), p.Quantity, p.EntryPrice, p.Leverage, p.Margin, p.OpenedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert open position of session %s: %w: %w", s.ID, ports.ErrUpdateFailed, err)
		}
	}

	// The ledger is most recent first; insert pending entries oldest first.
	assigned := make(map[int]int64)
	for i := len(s.Closed) - 1; i >= 0; i-- {
		if s.Closed[i].ID != 0 {
			continue
		}
		id, err := insertTrade(ctx, tx, s.ID, &s.Closed[i])
		if err != nil {
			return err
		}
		assigned[i] = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session %s: %w: %w", s.ID, ports.ErrUpdateFailed, err)
	}
	for i, id := range assigned {
		s.Closed[i].ID = id
	}
	r.logger.Debug(ctx, "Session saved", map[string]interface{}{
		"sessionID": s.ID, "capital": s.Capital, "inPosition": s.Position != nil, "tradesAppended": len(assigned),
	})
	return nil
}

func insertTrade(ctx context.Context, tx *sql.Tx, sessionID string, t *domain.ClosedTrade) (int64, error) {
	const query = `
	INSERT INTO closed_trades (session_id, pair, side, quantity, entry_price, exit_price, realized_pnl, opened_at, closed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := tx.ExecContext(ctx, query,
		sessionID, t.Pair, string(t.Side), t.Quantity, t.EntryPrice, t.ExitPrice, t.RealizedPnL,
		t.OpenedAt.UTC(), t.ClosedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert closed trade for session %s: %w: %w", sessionID, ports.ErrUpdateFailed, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for closed trade: %w: %w", ports.ErrUpdateFailed, err)
	}
	return id, nil
}

// Delete removes a session together with its position and ledger.
func (r *Repository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w: %w", id, ports.ErrUpdateFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete session %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session %s not found for delete: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Session deleted", map[string]interface{}{"sessionID": id})
	return nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(s scanner) (*domain.Session, error) {
	sess := &domain.Session{}
	var mode, strategy string
	v := &sess.Visibility
	err := s.Scan(
		&sess.ID, &sess.Capital, &sess.Leverage, &mode, &sess.Sizing.Value, &sess.Pair, &sess.Timeframe,
		&sess.Running, &strategy, &v.EMA, &v.BB, &v.RSI, &v.Pivots, &v.MACD, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.Sizing.Mode = domain.SizeMode(mode)
	sess.Strategy = domain.StrategyID(strategy)
	return sess, nil
}

func scanPosition(s scanner) (*domain.Position, error) {
	p := &domain.Position{}
	var side string
	if err := s.Scan(&side, &p.Quantity, &p.EntryPrice, &p.Leverage, &p.Margin, &p.OpenedAt); err != nil {
		return nil, err
	}
	p.Side = domain.Side(side)
	return p, nil
}

func scanTrade(s scanner) (*domain.ClosedTrade, error) {
	t := &domain.ClosedTrade{}
	var side string
	err := s.Scan(&t.ID, &t.Pair, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice, &t.RealizedPnL,
		&t.OpenedAt, &t.ClosedAt)
	if err != nil {
		return nil, err
	}
	t.Side = domain.Side(side)
	return t, nil
}
