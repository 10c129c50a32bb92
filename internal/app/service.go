package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"

	"paperdesk/config"
	"paperdesk/internal/account"
	"paperdesk/internal/domain"
	"paperdesk/internal/metrics"
	"paperdesk/internal/ports"
	"paperdesk/internal/risk"
	"paperdesk/internal/strategy/indicators"
)

// Settings are the session parameters that can be changed while running.
type Settings struct {
	Pair       string
	Timeframe  string
	Strategy   domain.StrategyID
	Leverage   int
	Sizing     domain.Sizing
	Visibility domain.Visibility
}

// TradingService runs the paper-trading loop of one session: on every tick it
// fetches a candle window, evaluates the active strategy and opens or closes
// the single paper position.
type TradingService struct {
	cfg     *config.Config
	logger  ports.Logger
	candles ports.CandleSource
	repo    ports.SessionRepository
	engine  ports.SignalEvaluator
	metrics *metrics.Metrics
	now     func() time.Time

	tickMu sync.Mutex // held for the duration of a tick
	saveMu sync.Mutex // serializes snapshot, store write and ID assignment
	dirty  bool       // last save failed; guarded by saveMu

	// State fields
	mu       sync.RWMutex // Protects access to state fields below
	account  *account.Account
	settings Settings
	running  bool
}

// NewTradingService creates a new application service instance.
func NewTradingService(
	cfg *config.Config,
	logger ports.Logger,
	candles ports.CandleSource,
	repo ports.SessionRepository,
	engine ports.SignalEvaluator,
	m *metrics.Metrics,
) (*TradingService, error) {
	if cfg == nil || logger == nil || candles == nil || repo == nil || engine == nil || m == nil {
		return nil, fmt.Errorf("missing required dependencies for TradingService")
	}
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("configuration SessionID must be set")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("configuration PollInterval must be positive")
	}
	if cfg.CandleWindow < engine.MinCandles() {
		return nil, fmt.Errorf("configuration CandleWindow (%d) is below the strategy minimum (%d)", cfg.CandleWindow, engine.MinCandles())
	}

	return &TradingService{
		cfg:      cfg,
		logger:   logger,
		candles:  candles,
		repo:     repo,
		engine:   engine,
		metrics:  m,
		now:      time.Now,
		settings: settingsFromConfig(cfg),
		running:  cfg.Running,
		account: account.New(account.Config{
			Capital:  cfg.Capital,
			Pair:     cfg.Pair,
			Settings: risk.Settings{Leverage: cfg.Leverage, Sizing: cfg.Sizing},
		}),
	}, nil
}

func settingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		Pair:       cfg.Pair,
		Timeframe:  cfg.Timeframe,
		Strategy:   cfg.Strategy,
		Leverage:   cfg.Leverage,
		Sizing:     cfg.Sizing,
		Visibility: cfg.Visibility,
	}
}

// LoadSession restores the stored session: capital, open position, ledger,
// settings and running state. Configuration seeds a session that does not
// exist yet and replaces the stored settings when cfg.Override is set.
func (s *TradingService) LoadSession(ctx context.Context) error {
	stored, err := s.repo.Load(ctx, s.cfg.SessionID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to load session", map[string]interface{}{"sessionID": s.cfg.SessionID})
		return fmt.Errorf("failed to load session %s: %w", s.cfg.SessionID, err)
	}

	if stored == nil {
		s.logger.Info(ctx, "No stored session found, starting fresh", map[string]interface{}{
			"sessionID": s.cfg.SessionID, "capital": s.cfg.Capital,
		})
		return s.save(ctx)
	}

	acct := account.Restore(stored)
	running := stored.Running
	if s.cfg.Override {
		running = s.cfg.Running
	}
	s.mu.Lock()
	s.account = acct
	s.running = running
	s.mu.Unlock()

	pos, inPosition := acct.Position()
	s.logger.Info(ctx, "Session restored", map[string]interface{}{
		"sessionID":    stored.ID,
		"capital":      stored.Capital,
		"closedTrades": len(stored.Closed),
		"inPosition":   inPosition,
		"running":      running,
	})
	if inPosition {
		s.logger.Info(ctx, "Found existing open position", map[string]interface{}{
			"side": string(pos.Side), "entryPrice": pos.EntryPrice, "quantity": pos.Quantity,
		})
	}

	if s.cfg.Override {
		s.logger.Info(ctx, "Replacing stored session settings with configuration")
		return s.Apply(ctx, settingsFromConfig(s.cfg))
	}
	return s.Apply(ctx, s.storedSettings(ctx, stored))
}

// storedSettings reads the settings of a stored session. Values that are no
// longer valid fall back to configuration.
func (s *TradingService) storedSettings(ctx context.Context, stored *domain.Session) Settings {
	next := Settings{
		Pair:       stored.Pair,
		Timeframe:  stored.Timeframe,
		Strategy:   stored.Strategy,
		Leverage:   stored.Leverage,
		Sizing:     stored.Sizing,
		Visibility: stored.Visibility,
	}
	if next.Pair == "" {
		next.Pair = s.cfg.Pair
	}
	if !config.ValidTimeframe(next.Timeframe) {
		s.logger.Warn(ctx, "Stored timeframe invalid, using configuration", map[string]interface{}{
			"stored": next.Timeframe, "configured": s.cfg.Timeframe,
		})
		next.Timeframe = s.cfg.Timeframe
	}
	if id, err := domain.ParseStrategyID(string(next.Strategy)); err != nil {
		s.logger.Warn(ctx, "Stored strategy invalid, using configuration", map[string]interface{}{
			"stored": string(next.Strategy), "configured": string(s.cfg.Strategy),
		})
		next.Strategy = s.cfg.Strategy
	} else {
		next.Strategy = id
	}
	if mode, err := domain.ParseSizeMode(string(next.Sizing.Mode)); err != nil {
		s.logger.Warn(ctx, "Stored size mode invalid, using configuration", map[string]interface{}{
			"stored": string(next.Sizing.Mode), "configured": string(s.cfg.Sizing.Mode),
		})
		next.Sizing = s.cfg.Sizing
	} else {
		next.Sizing.Mode = mode
	}
	return next
}

// Apply changes the session settings. Leverage and size are clamped by the
// sizing policy. The pair is kept while a position is open.
func (s *TradingService) Apply(ctx context.Context, next Settings) error {
	s.mu.Lock()
	if _, open := s.account.Position(); open && next.Pair != s.account.Pair() {
		s.logger.Warn(ctx, "Pair change ignored while a position is open", map[string]interface{}{
			"current": s.account.Pair(), "requested": next.Pair,
		})
		next.Pair = s.account.Pair()
	}
	s.account.Configure(next.Pair, risk.Settings{Leverage: next.Leverage, Sizing: next.Sizing})
	applied := s.account.Settings()
	next.Leverage = applied.Leverage
	next.Sizing = applied.Sizing
	s.settings = next
	s.mu.Unlock()

	s.logger.Info(ctx, "Session settings applied", map[string]interface{}{
		"pair":      next.Pair,
		"timeframe": next.Timeframe,
		"strategy":  string(next.Strategy),
		"leverage":  next.Leverage,
		"sizeMode":  string(next.Sizing.Mode),
		"sizeValue": next.Sizing.Value,
	})
	return s.save(ctx)
}

// SetRunning starts or pauses signal evaluation. Candles are still fetched while paused.
func (s *TradingService) SetRunning(ctx context.Context, running bool) error {
	s.mu.Lock()
	s.running = running
	s.mu.Unlock()
	s.logger.Info(ctx, "Session running state changed", map[string]interface{}{"running": running})
	return s.save(ctx)
}

// Reset discards position and ledger, restores the configured capital and
// settings and stops the session.
func (s *TradingService) Reset(ctx context.Context) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	if err := s.repo.Delete(ctx, s.cfg.SessionID); err != nil && !errors.Is(err, ports.ErrNotFound) {
		s.logger.Error(ctx, err, "Failed to delete session during reset")
		return fmt.Errorf("failed to reset session: %w", err)
	}

	s.mu.Lock()
	s.account = account.New(account.Config{
		Capital:  s.cfg.Capital,
		Pair:     s.cfg.Pair,
		Settings: risk.Settings{Leverage: s.cfg.Leverage, Sizing: s.cfg.Sizing},
	})
	s.settings = settingsFromConfig(s.cfg)
	s.running = false
	s.mu.Unlock()

	s.metrics.Capital.Set(s.cfg.Capital)
	s.metrics.UnrealizedPnL.Set(0)
	s.metrics.PositionOpen.Set(0)
	s.logger.Info(ctx, "Session reset", map[string]interface{}{"sessionID": s.cfg.SessionID, "capital": s.cfg.Capital})
	return s.persist(ctx)
}

// Snapshot returns the current session state.
func (s *TradingService) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess := domain.Session{
		ID:         s.cfg.SessionID,
		Timeframe:  s.settings.Timeframe,
		Running:    s.running,
		Strategy:   s.settings.Strategy,
		Visibility: s.settings.Visibility,
		UpdatedAt:  s.now().UTC(),
	}
	s.account.Snapshot(&sess)
	return sess
}

func (s *TradingService) save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.persist(ctx)
}

// persist writes the current session, including ledger entries not stored
// yet, and records the IDs the store assigned to them. Callers hold saveMu.
func (s *TradingService) persist(ctx context.Context) error {
	sess := s.Snapshot()
	if err := s.repo.Save(ctx, &sess); err != nil {
		s.dirty = true
		s.logger.Error(ctx, err, "Failed to save session", map[string]interface{}{"sessionID": sess.ID})
		return fmt.Errorf("failed to save session: %w", err)
	}
	s.dirty = false

	s.mu.RLock()
	acct := s.account
	s.mu.RUnlock()
	acct.RecordTradeIDs(sess.Closed)
	return nil
}

func (s *TradingService) savePending() bool {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.dirty
}

// Start loads the session and runs the tick loop until ctx is canceled or
// SIGINT/SIGTERM is received.
func (s *TradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Trading Service...")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := s.candles.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "Candle source not reachable at startup, ticks will retry", map[string]interface{}{"error": err.Error()})
	} else if serverTime, err := s.candles.GetServerTime(ctx); err == nil {
		s.logger.Info(ctx, "Candle source reachable", map[string]interface{}{
			"serverTime": serverTime.UTC().Format(time.RFC3339), "clockSkew": s.now().Sub(serverTime).String(),
		})
	}

	if err := s.LoadSession(ctx); err != nil {
		return err
	}

	scheduler := gocron.NewScheduler(time.UTC)
	_, err := scheduler.Every(s.cfg.PollInterval).SingletonMode().Do(func() {
		s.Tick(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule tick job: %w", err)
	}
	scheduler.StartAsync()
	s.logger.Info(ctx, "Tick scheduler started", map[string]interface{}{
		"interval": s.cfg.PollInterval.String(), "window": s.cfg.CandleWindow,
	})

	<-ctx.Done()
	s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
	scheduler.Stop()

	// Wait for an in-flight tick, then persist the final state.
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	if err := s.save(context.Background()); err != nil {
		return err
	}

	s.logger.Info(ctx, "Trading Service stopped.")
	return nil
}

// Tick performs one polling step. A tick that starts while another is still
// running is skipped.
func (s *TradingService) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.metrics.TicksSkipped.Inc()
		s.logger.Debug(ctx, "Previous tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	started := s.now()
	s.metrics.TicksTotal.Inc()
	defer func() { s.metrics.TickDuration.Observe(s.now().Sub(started).Seconds()) }()

	if s.savePending() {
		if err := s.save(ctx); err == nil {
			s.logger.Info(ctx, "Pending session state saved")
		}
	}

	s.mu.RLock()
	settings := s.settings
	running := s.running
	s.mu.RUnlock()

	candles, err := s.candles.GetCandles(ctx, settings.Pair, settings.Timeframe, s.cfg.CandleWindow)
	s.metrics.Health().RecordTick(started, err)
	if err != nil {
		s.metrics.FetchErrors.Inc()
		s.logger.Error(ctx, err, "Failed to fetch candles", map[string]interface{}{
			"pair": settings.Pair, "timeframe": settings.Timeframe,
		})
		return
	}
	if len(candles) == 0 {
		s.logger.Warn(ctx, "Candle source returned no candles", map[string]interface{}{"pair": settings.Pair})
		return
	}

	last := candles[len(candles)-1]
	s.metrics.LastClose.Set(last.Close)
	s.logMarket(ctx, candles, settings)
	defer s.publishAccount(last.Close)

	if !running {
		return
	}
	if len(candles) < s.engine.MinCandles() {
		s.logger.Debug(ctx, "Waiting for more candles", map[string]interface{}{
			"available": len(candles), "required": s.engine.MinCandles(),
		})
		return
	}

	sig := s.engine.Evaluate(ctx, candles, settings.Strategy)
	side, ok := sig.Side()
	if !ok {
		return
	}
	s.metrics.SignalsTotal.WithLabelValues(string(settings.Strategy), string(side)).Inc()

	// Fill at the last closed bar.
	price := candles[len(candles)-2].Close
	pos, inPosition := s.account.Position()
	switch {
	case !inPosition:
		s.openPosition(ctx, side, price)
	case side == pos.Side.Opposite():
		s.closePosition(ctx, price)
	}
}

func (s *TradingService) openPosition(ctx context.Context, side domain.Side, price float64) {
	pos, err := s.account.Open(side, price, s.now().UTC())
	if err != nil {
		s.logger.Warn(ctx, "Position not opened", map[string]interface{}{"side": string(side), "error": err.Error()})
		return
	}
	s.metrics.PositionsOpened.WithLabelValues(string(side)).Inc()
	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"side":       string(pos.Side),
		"entryPrice": pos.EntryPrice,
		"quantity":   pos.Quantity,
		"leverage":   pos.Leverage,
		"margin":     pos.Margin,
	})
	if err := s.save(ctx); err != nil {
		s.logger.Warn(ctx, "Open position kept in memory until the next successful save", map[string]interface{}{
			"side": string(pos.Side), "entryPrice": pos.EntryPrice,
		})
	}
}

func (s *TradingService) closePosition(ctx context.Context, price float64) {
	trade, err := s.account.Close(price, s.now().UTC())
	if err != nil {
		s.logger.Warn(ctx, "Position not closed", map[string]interface{}{"error": err.Error()})
		return
	}
	s.metrics.ObserveRealized(trade.RealizedPnL)
	s.logger.Info(ctx, "Position closed", map[string]interface{}{
		"side":       string(trade.Side),
		"entryPrice": trade.EntryPrice,
		"exitPrice":  trade.ExitPrice,
		"pnl":        trade.RealizedPnL,
		"capital":    s.account.Capital(),
	})

	// Capital and the ledger entry are stored together.
	if err := s.save(ctx); err != nil {
		s.logger.Warn(ctx, "Closed trade kept in memory until the next successful save", map[string]interface{}{
			"pnl": trade.RealizedPnL, "closedAt": trade.ClosedAt.Format(time.RFC3339),
		})
	}
}

func (s *TradingService) publishAccount(mark float64) {
	s.metrics.Capital.Set(s.account.Capital())
	s.metrics.UnrealizedPnL.Set(s.account.UnrealizedPnL(mark))
	pos, ok := s.account.Position()
	switch {
	case !ok:
		s.metrics.PositionOpen.Set(0)
	case pos.Side == domain.Short:
		s.metrics.PositionOpen.Set(-1)
	default:
		s.metrics.PositionOpen.Set(1)
	}
}

// logMarket logs the last close together with the visible indicator overlays.
func (s *TradingService) logMarket(ctx context.Context, candles []domain.Candle, settings Settings) {
	set := indicators.Compute(candles, s.cfg.Indicators)
	fields := overlayFields(set, settings.Visibility)
	fields["pair"] = settings.Pair
	fields["close"] = candles[len(candles)-1].Close
	s.logger.Debug(ctx, "Market snapshot", fields)
}

func overlayFields(set *indicators.Set, vis domain.Visibility) map[string]interface{} {
	fields := make(map[string]interface{})
	put := func(key string, series indicators.Series) {
		if v, ok := series.Last(); ok {
			fields[key] = v
		}
	}
	if vis.EMA {
		put("emaFast", set.EMAFast)
		put("emaSlow", set.EMASlow)
	}
	if vis.BB {
		put("bbUpper", set.Bollinger.Upper)
		put("bbBasis", set.Bollinger.Basis)
		put("bbLower", set.Bollinger.Lower)
	}
	if vis.RSI {
		put("rsi", set.RSI)
	}
	if vis.MACD {
		put("macd", set.MACD.Line)
		put("macdSignal", set.MACD.Signal)
		put("macdHist", set.MACD.Hist)
	}
	if vis.Pivots && set.HasPivots {
		fields["pivotP"] = set.Pivots.P
		fields["pivotR1"] = set.Pivots.R1
		fields["pivotS1"] = set.Pivots.S1
	}
	return fields
}
