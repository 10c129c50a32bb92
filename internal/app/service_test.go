package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paperdesk/config"
	"paperdesk/internal/domain"
	"paperdesk/internal/metrics"
	"paperdesk/internal/ports"
	"paperdesk/internal/strategy/indicators"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockCandleSource struct {
	candles []domain.Candle
	err     error
	calls   int
	entered chan struct{} // signalled when GetCandles is entered, if set
	release chan struct{} // GetCandles blocks until closed, if set
}

func (m *mockCandleSource) GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]domain.Candle, error) {
	m.calls++
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.release != nil {
		<-m.release
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.candles, nil
}

func (m *mockCandleSource) Ping(ctx context.Context) error { return nil }

func (m *mockCandleSource) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Now(), nil
}

type mockEngine struct {
	signals []domain.Signal // consumed one per Evaluate call
	calls   int
}

func (m *mockEngine) MinCandles() int { return 30 }

func (m *mockEngine) Evaluate(ctx context.Context, candles []domain.Candle, id domain.StrategyID) domain.Signal {
	m.calls++
	if len(m.signals) == 0 {
		return domain.SignalNone
	}
	sig := m.signals[0]
	m.signals = m.signals[1:]
	return sig
}

type mockRepo struct {
	sessions map[string]*domain.Session
	trades   map[string][]domain.ClosedTrade
	saves    int
	nextID   int64
	saveErr  error
}

func newMockRepo() *mockRepo {
	return &mockRepo{sessions: map[string]*domain.Session{}, trades: map[string][]domain.ClosedTrade{}}
}

func (m *mockRepo) Load(ctx context.Context, id string) (*domain.Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	cp.Closed = append([]domain.ClosedTrade(nil), m.trades[id]...)
	return &cp, nil
}

func (m *mockRepo) Save(ctx context.Context, s *domain.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	for i := len(s.Closed) - 1; i >= 0; i-- {
		if s.Closed[i].ID != 0 {
			continue
		}
		m.nextID++
		s.Closed[i].ID = m.nextID
		m.trades[s.ID] = append([]domain.ClosedTrade{s.Closed[i]}, m.trades[s.ID]...)
	}
	cp := *s
	cp.Closed = nil
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.sessions[id]; !ok {
		return ports.ErrNotFound
	}
	delete(m.sessions, id)
	delete(m.trades, id)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		SessionID:     "default",
		Pair:          "BTCUSDT",
		Timeframe:     "5m",
		Strategy:      domain.StrategyEMACross,
		Leverage:      100,
		Sizing:        domain.Sizing{Mode: domain.SizeFixedLot, Value: 1},
		Capital:       1000,
		Running:       true,
		Visibility:    domain.DefaultVisibility(),
		PollInterval:  7 * time.Second,
		CandleWindow:  120,
		Indicators:    indicators.DefaultParams(),
		RSIOverbought: 70,
		RSIOversold:   30,
	}
}

// generateTestCandles returns count candles with closes 100, 101, ...
func generateTestCandles(count int) []domain.Candle {
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
	out := make([]domain.Candle, count)
	for i := range out {
		c := 100 + float64(i)
		out[i] = domain.Candle{Time: start + int64(i)*300, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1}
	}
	return out
}

type fixture struct {
	svc     *TradingService
	logger  *mockLogger
	source  *mockCandleSource
	engine  *mockEngine
	repo    *mockRepo
	metrics *metrics.Metrics
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		logger:  &mockLogger{},
		source:  &mockCandleSource{candles: generateTestCandles(40)},
		engine:  &mockEngine{},
		repo:    newMockRepo(),
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
	}
	svc, err := NewTradingService(cfg, f.logger, f.source, f.repo, f.engine, f.metrics)
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	f.svc = svc
	require.NoError(t, svc.LoadSession(context.Background()))
	return f
}

func TestNewTradingService(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	small := testConfig()
	small.CandleWindow = 10
	noSession := testConfig()
	noSession.SessionID = ""

	tests := []struct {
		name    string
		cfg     *config.Config
		engine  ports.SignalEvaluator
		wantErr bool
	}{
		{name: "valid", cfg: testConfig(), engine: &mockEngine{}},
		{name: "nil config", cfg: nil, engine: &mockEngine{}, wantErr: true},
		{name: "nil engine", cfg: testConfig(), engine: nil, wantErr: true},
		{name: "window below minimum", cfg: small, engine: &mockEngine{}, wantErr: true},
		{name: "missing session id", cfg: noSession, engine: &mockEngine{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewTradingService(tt.cfg, &mockLogger{}, &mockCandleSource{}, newMockRepo(), tt.engine, m)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, svc)
			}
		})
	}
}

func TestLoadSessionFresh(t *testing.T) {
	f := newFixture(t, testConfig())

	stored := f.repo.sessions["default"]
	require.NotNil(t, stored)
	assert.Equal(t, 1000.0, stored.Capital)
	assert.Equal(t, "BTCUSDT", stored.Pair)
	assert.Equal(t, domain.StrategyEMACross, stored.Strategy)
	assert.True(t, stored.Running)
	assert.Nil(t, stored.Position)
}

func storedSession() *domain.Session {
	return &domain.Session{
		ID:         "default",
		Capital:    1200,
		Leverage:   10,
		Sizing:     domain.Sizing{Mode: domain.SizeNotional, Value: 50},
		Pair:       "BTCUSDT",
		Timeframe:  "15m",
		Running:    false,
		Strategy:   domain.StrategyBBBounce,
		Visibility: domain.Visibility{MACD: true},
		Position:   &domain.Position{Side: domain.Long, Quantity: 1, EntryPrice: 90, Leverage: 10, Margin: 9},
	}
}

func loadService(t *testing.T, cfg *config.Config, repo *mockRepo) (*TradingService, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	svc, err := NewTradingService(cfg, logger, &mockCandleSource{}, repo, &mockEngine{},
		metrics.NewMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	require.NoError(t, svc.LoadSession(context.Background()))
	return svc, logger
}

func TestLoadSessionRestoresStoredSession(t *testing.T) {
	repo := newMockRepo()
	repo.sessions["default"] = storedSession()
	repo.trades["default"] = []domain.ClosedTrade{{ID: 1, RealizedPnL: 200}}

	cfg := testConfig()
	cfg.Pair = "ETHUSDT"
	svc, logger := loadService(t, cfg, repo)

	snap := svc.Snapshot()
	assert.Equal(t, 1200.0, snap.Capital)
	require.NotNil(t, snap.Position)
	assert.Equal(t, 90.0, snap.Position.EntryPrice)
	assert.Len(t, snap.Closed, 1)

	assert.Equal(t, "BTCUSDT", snap.Pair)
	assert.Equal(t, "15m", snap.Timeframe)
	assert.Equal(t, domain.StrategyBBBounce, snap.Strategy)
	assert.Equal(t, 10, snap.Leverage)
	assert.Equal(t, domain.Sizing{Mode: domain.SizeNotional, Value: 50}, snap.Sizing)
	assert.Equal(t, domain.Visibility{MACD: true}, snap.Visibility)
	assert.False(t, snap.Running, "running state is restored, not taken from configuration")
	assert.Empty(t, logger.warnMsgs)
	assert.Len(t, repo.trades["default"], 1, "stored ledger is not appended again")
}

func TestLoadSessionOverrideAppliesConfiguration(t *testing.T) {
	repo := newMockRepo()
	repo.sessions["default"] = storedSession()

	cfg := testConfig()
	cfg.Pair = "ETHUSDT"
	cfg.Override = true
	svc, logger := loadService(t, cfg, repo)

	snap := svc.Snapshot()
	assert.Equal(t, 1200.0, snap.Capital, "capital is never overridden")
	assert.Equal(t, 100, snap.Leverage)
	assert.Equal(t, "5m", snap.Timeframe)
	assert.Equal(t, domain.StrategyEMACross, snap.Strategy)
	assert.True(t, snap.Running)
	assert.Equal(t, "BTCUSDT", snap.Pair, "pair is kept while a position is open")
	assert.Contains(t, logger.warnMsgs, "Pair change ignored while a position is open")
	assert.True(t, repo.sessions["default"].Running)
}

func TestLoadSessionInvalidStoredSettingsFallBack(t *testing.T) {
	repo := newMockRepo()
	stored := storedSession()
	stored.Timeframe = "3m"
	stored.Strategy = "martingale"
	stored.Sizing.Mode = "percent"
	repo.sessions["default"] = stored

	svc, logger := loadService(t, testConfig(), repo)

	snap := svc.Snapshot()
	assert.Equal(t, "5m", snap.Timeframe)
	assert.Equal(t, domain.StrategyEMACross, snap.Strategy)
	assert.Equal(t, domain.Sizing{Mode: domain.SizeFixedLot, Value: 1}, snap.Sizing)
	assert.Equal(t, 10, snap.Leverage)
	assert.Contains(t, logger.warnMsgs, "Stored timeframe invalid, using configuration")
	assert.Contains(t, logger.warnMsgs, "Stored strategy invalid, using configuration")
	assert.Contains(t, logger.warnMsgs, "Stored size mode invalid, using configuration")
}

func TestTickOpensOnSignal(t *testing.T) {
	f := newFixture(t, testConfig())
	f.engine.signals = []domain.Signal{domain.SignalLong}

	f.svc.Tick(context.Background())

	snap := f.svc.Snapshot()
	require.NotNil(t, snap.Position)
	assert.Equal(t, domain.Long, snap.Position.Side)
	assert.Equal(t, 138.0, snap.Position.EntryPrice, "fills at the last closed bar")
	assert.Equal(t, 1.0, snap.Position.Quantity)
	assert.NotNil(t, f.repo.sessions["default"].Position, "open position is persisted")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PositionsOpened.WithLabelValues("LONG")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PositionOpen))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.UnrealizedPnL), "marked at the forming bar close 139")
}

func TestTickClosesOnOppositeSignal(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	f.engine.signals = []domain.Signal{domain.SignalShort, domain.SignalShort, domain.SignalLong}
	f.svc.Tick(ctx) // opens SHORT at 138

	f.source.candles = generateTestCandles(50)
	f.svc.Tick(ctx) // same direction, ignored
	snap := f.svc.Snapshot()
	require.NotNil(t, snap.Position)
	assert.Equal(t, 138.0, snap.Position.EntryPrice)

	f.svc.Tick(ctx) // LONG closes the SHORT at 148
	snap = f.svc.Snapshot()
	assert.Nil(t, snap.Position)
	require.Len(t, snap.Closed, 1)
	assert.Equal(t, -10.0, snap.Closed[0].RealizedPnL)
	assert.Equal(t, int64(1), snap.Closed[0].ID)
	assert.Equal(t, 990.0, snap.Capital)

	require.Len(t, f.repo.trades["default"], 1)
	assert.Equal(t, 990.0, f.repo.sessions["default"].Capital)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TradesClosed))
	assert.Equal(t, 10.0, testutil.ToFloat64(f.metrics.RealizedLossTotal))
	assert.Equal(t, 990.0, testutil.ToFloat64(f.metrics.Capital))
}

func TestOpenPositionSaveFailureIsRetried(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	f.engine.signals = []domain.Signal{domain.SignalLong}
	f.repo.saveErr = ports.ErrUpdateFailed

	f.svc.Tick(ctx)
	assert.NotNil(t, f.svc.Snapshot().Position)
	assert.Nil(t, f.repo.sessions["default"].Position)
	assert.Contains(t, f.logger.warnMsgs, "Open position kept in memory until the next successful save")
	assert.Contains(t, f.logger.errorMsgs, "Failed to save session")

	f.repo.saveErr = nil
	f.svc.Tick(ctx)
	require.NotNil(t, f.repo.sessions["default"].Position)
	assert.Equal(t, 138.0, f.repo.sessions["default"].Position.EntryPrice)
}

func TestClosedTradeStoredAfterFailedSave(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()

	f.engine.signals = []domain.Signal{domain.SignalShort, domain.SignalLong}
	f.svc.Tick(ctx) // opens SHORT at 138

	f.source.candles = generateTestCandles(50)
	f.repo.saveErr = ports.ErrUpdateFailed
	f.svc.Tick(ctx) // LONG closes the SHORT at 148, store unavailable
	assert.Empty(t, f.repo.trades["default"])
	assert.NotNil(t, f.repo.sessions["default"].Position, "store still holds the pre-close state")
	assert.Contains(t, f.logger.warnMsgs, "Closed trade kept in memory until the next successful save")

	f.repo.saveErr = nil
	f.svc.Tick(ctx) // no signal, pending state is saved

	stored := f.repo.sessions["default"]
	assert.Equal(t, 990.0, stored.Capital)
	assert.Nil(t, stored.Position)
	require.Len(t, f.repo.trades["default"], 1, "capital and ledger stay consistent")
	assert.Equal(t, -10.0, f.repo.trades["default"][0].RealizedPnL)
	assert.Equal(t, int64(1), f.svc.Snapshot().Closed[0].ID)
	assert.Contains(t, f.logger.infoMsgs, "Pending session state saved")

	saves := f.repo.saves
	f.svc.Tick(ctx)
	assert.Equal(t, saves, f.repo.saves, "nothing pending after a successful save")
	assert.Len(t, f.repo.trades["default"], 1)
}

func TestTickPausedDoesNotEvaluate(t *testing.T) {
	cfg := testConfig()
	cfg.Running = false
	f := newFixture(t, cfg)
	f.engine.signals = []domain.Signal{domain.SignalLong}

	f.svc.Tick(context.Background())

	assert.Equal(t, 1, f.source.calls, "candles are still fetched while paused")
	assert.Zero(t, f.engine.calls)
	assert.Nil(t, f.svc.Snapshot().Position)

	require.NoError(t, f.svc.SetRunning(context.Background(), true))
	f.svc.Tick(context.Background())
	assert.NotNil(t, f.svc.Snapshot().Position)
	assert.True(t, f.repo.sessions["default"].Running)
}

func TestTickShortWindowDoesNotEvaluate(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.candles = generateTestCandles(29)

	f.svc.Tick(context.Background())
	assert.Zero(t, f.engine.calls)
}

func TestTickFetchErrorLeavesStateUntouched(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.err = errors.New("connection refused")
	saves := f.repo.saves

	f.svc.Tick(context.Background())

	assert.Zero(t, f.engine.calls)
	assert.Equal(t, saves, f.repo.saves)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.FetchErrors))
	assert.Contains(t, f.logger.errorMsgs, "Failed to fetch candles")
}

func TestTickSkipsWhileRunning(t *testing.T) {
	f := newFixture(t, testConfig())
	f.source.entered = make(chan struct{}, 1)
	f.source.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		f.svc.Tick(context.Background())
		close(done)
	}()
	<-f.source.entered

	f.svc.Tick(context.Background())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TicksSkipped))

	close(f.source.release)
	<-done
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.TicksTotal))
}

func TestReset(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx := context.Background()
	f.engine.signals = []domain.Signal{domain.SignalLong, domain.SignalShort, domain.SignalLong}
	f.svc.Tick(ctx)
	f.svc.Tick(ctx)
	f.svc.Tick(ctx)
	require.NotEmpty(t, f.svc.Snapshot().Closed)

	require.NoError(t, f.svc.Reset(ctx))

	snap := f.svc.Snapshot()
	assert.Equal(t, 1000.0, snap.Capital)
	assert.Nil(t, snap.Position)
	assert.Empty(t, snap.Closed)
	assert.False(t, snap.Running)
	assert.Empty(t, f.repo.trades["default"])
	assert.NotNil(t, f.repo.sessions["default"])
}

func TestApplyClampsSettings(t *testing.T) {
	f := newFixture(t, testConfig())

	err := f.svc.Apply(context.Background(), Settings{
		Pair:      "ETHUSDT",
		Timeframe: "1m",
		Strategy:  domain.StrategyMACDCross,
		Leverage:  0,
		Sizing:    domain.Sizing{Mode: domain.SizeNotional, Value: 2},
	})
	require.NoError(t, err)

	snap := f.svc.Snapshot()
	assert.Equal(t, "ETHUSDT", snap.Pair)
	assert.Equal(t, "1m", snap.Timeframe)
	assert.Equal(t, domain.StrategyMACDCross, snap.Strategy)
	assert.Equal(t, 1, snap.Leverage)
	assert.Equal(t, 5.0, snap.Sizing.Value)
}

func TestSaveErrorIsReported(t *testing.T) {
	f := newFixture(t, testConfig())
	f.repo.saveErr = ports.ErrUpdateFailed

	err := f.svc.SetRunning(context.Background(), false)
	assert.ErrorIs(t, err, ports.ErrUpdateFailed)
}

func TestOverlayFieldsFollowVisibility(t *testing.T) {
	set := indicators.Compute(generateTestCandles(40), indicators.DefaultParams())

	fields := overlayFields(set, domain.Visibility{EMA: true})
	assert.Contains(t, fields, "emaFast")
	assert.NotContains(t, fields, "rsi")
	assert.NotContains(t, fields, "macd")

	fields = overlayFields(set, domain.Visibility{RSI: true, MACD: true, BB: true})
	assert.Contains(t, fields, "rsi")
	assert.Contains(t, fields, "macdHist")
	assert.Contains(t, fields, "bbUpper")
	assert.NotContains(t, fields, "emaFast")
}
