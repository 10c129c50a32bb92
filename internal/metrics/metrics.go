// Package metrics exposes Prometheus metrics and a health endpoint for the trading service.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the trading service.
type Metrics struct {
	TicksTotal        prometheus.Counter
	TicksSkipped      prometheus.Counter
	FetchErrors       prometheus.Counter
	TickDuration      prometheus.Histogram
	SignalsTotal      *prometheus.CounterVec // labels: strategy, side
	PositionsOpened   *prometheus.CounterVec // labels: side
	TradesClosed      prometheus.Counter
	RealizedPnLTotal  prometheus.Counter
	RealizedLossTotal prometheus.Counter
	Capital           prometheus.Gauge
	UnrealizedPnL     prometheus.Gauge
	PositionOpen      prometheus.Gauge // 0=flat, 1=long, -1=short
	LastClose         prometheus.Gauge
	HealthWriteErrors prometheus.Counter

	health *HealthStatus
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_ticks_total",
			Help: "Total strategy ticks executed",
		}),
		TicksSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_ticks_skipped_total",
			Help: "Ticks skipped because the previous tick was still running",
		}),
		FetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_candle_fetch_errors_total",
			Help: "Candle fetches that failed",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "paperdesk_tick_duration_seconds",
			Help:    "Time spent in one tick including the candle fetch",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_signals_total",
			Help: "Signals emitted by the active strategy",
		}, []string{"strategy", "side"}),
		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "paperdesk_positions_opened_total",
			Help: "Paper positions opened",
		}, []string{"side"}),
		TradesClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_trades_closed_total",
			Help: "Paper positions closed into the ledger",
		}),
		RealizedPnLTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_realized_profit_total",
			Help: "Sum of positive realized PnL",
		}),
		RealizedLossTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_realized_loss_total",
			Help: "Sum of absolute negative realized PnL",
		}),
		Capital: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperdesk_capital",
			Help: "Realized capital of the session",
		}),
		UnrealizedPnL: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperdesk_unrealized_pnl",
			Help: "Unrealized PnL of the open position at the last close",
		}),
		PositionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperdesk_position_side",
			Help: "Open position side: 0 flat, 1 long, -1 short",
		}),
		LastClose: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "paperdesk_last_close",
			Help: "Close of the last candle seen",
		}),
		HealthWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "paperdesk_healthz_write_errors_total",
			Help: "Health responses that could not be encoded or written",
		}),
		health: NewHealthStatus(),
	}
	m.health.writeErrors = m.HealthWriteErrors

	reg.MustRegister(
		m.TicksTotal,
		m.TicksSkipped,
		m.FetchErrors,
		m.TickDuration,
		m.SignalsTotal,
		m.PositionsOpened,
		m.TradesClosed,
		m.RealizedPnLTotal,
		m.RealizedLossTotal,
		m.Capital,
		m.UnrealizedPnL,
		m.PositionOpen,
		m.LastClose,
		m.HealthWriteErrors,
	)
	return m
}

// ObserveRealized records the PnL of a closed trade.
func (m *Metrics) ObserveRealized(pnl float64) {
	m.TradesClosed.Inc()
	if pnl >= 0 {
		m.RealizedPnLTotal.Add(pnl)
	} else {
		m.RealizedLossTotal.Add(-pnl)
	}
}

// Health returns the health status tracker.
func (m *Metrics) Health() *HealthStatus {
	return m.health
}

// HealthStatus tracks liveness of the tick loop.
type HealthStatus struct {
	mu           sync.RWMutex
	StartedAt    time.Time
	LastTickAt   time.Time
	LastFetchOK  bool
	LastFetchErr string
	StaleAfter   time.Duration
	nowFn        func() time.Time
	writeErrors  prometheus.Counter // optional
}

// NewHealthStatus creates a tracker that reports stale after one minute without ticks.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now(), StaleAfter: time.Minute, nowFn: time.Now}
}

// RecordTick stores the outcome of a tick.
func (h *HealthStatus) RecordTick(at time.Time, fetchErr error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.LastTickAt = at
	h.LastFetchOK = fetchErr == nil
	h.LastFetchErr = ""
	if fetchErr != nil {
		h.LastFetchErr = fetchErr.Error()
	}
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.nowFn()
	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case h.LastTickAt.IsZero():
		overallStatus = "starting"
	case now.Sub(h.LastTickAt) > h.StaleAfter:
		overallStatus = "stale"
		httpCode = http.StatusServiceUnavailable
	case !h.LastFetchOK:
		overallStatus = "degraded"
	}

	lastTick := ""
	if !h.LastTickAt.IsZero() {
		lastTick = h.LastTickAt.Format(time.RFC3339)
	}

	status := struct {
		Status       string `json:"status"`
		Uptime       string `json:"uptime"`
		LastTickTime string `json:"last_tick_time"`
		LastFetchOK  bool   `json:"last_fetch_ok"`
		LastFetchErr string `json:"last_fetch_error,omitempty"`
	}{
		Status:       overallStatus,
		Uptime:       now.Sub(h.StartedAt).Round(time.Second).String(),
		LastTickTime: lastTick,
		LastFetchOK:  h.LastFetchOK,
		LastFetchErr: h.LastFetchErr,
	}

	body, err := json.Marshal(status)
	if err != nil {
		h.countWriteError()
		http.Error(w, "failed to encode health status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.countWriteError()
	}
}

func (h *HealthStatus) countWriteError() {
	if h.writeErrors != nil {
		h.writeErrors.Inc()
	}
}

// Handler returns a mux exposing /metrics from g and /healthz.
func (m *Metrics) Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", m.health)
	return mux
}

// NewServer returns an HTTP server for the metrics handler on addr.
func (m *Metrics) NewServer(addr string, g prometheus.Gatherer) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           m.Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}
}
