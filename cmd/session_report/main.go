package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"paperdesk/config"
	"paperdesk/internal/adapters/binanceclient"
	"paperdesk/internal/adapters/logger"
	"paperdesk/internal/adapters/sqlite"
	"paperdesk/internal/app"
	"paperdesk/internal/domain"
	"paperdesk/internal/metrics"
	"paperdesk/internal/strategy"
	"paperdesk/internal/strategy/analytics"
	"paperdesk/internal/strategy/indicators"
	"paperdesk/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	sessionID := flag.String("session", cfg.SessionID, "session id to report on")
	dbPath := flag.String("db", cfg.DBPath, "path to the session database")
	candlesPath := flag.String("candles", "", "CSV of candles (from fetch_klines) used for marks, overlays and signals")
	live := flag.Bool("live", false, "fetch the latest candles from Binance instead of -candles")
	reset := flag.Bool("reset", false, "discard position and ledger, restore configured capital and settings, stop the session")
	apply := flag.Bool("apply", false, "replace the stored settings and running state with the configured ones")
	start := flag.Bool("start", false, "resume signal evaluation")
	stop := flag.Bool("stop", false, "pause signal evaluation")
	flag.Parse()

	if *start && *stop {
		log.Fatalf("-start and -stop are mutually exclusive")
	}
	cfg.SessionID = *sessionID

	ctx := context.Background()
	appLogger := logger.New(cfg.LogFormat, logger.LevelWarn)

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to open session database: %v", err)
	}
	defer repo.Close()

	engine, err := strategy.New(strategy.Config{
		Indicators:    cfg.Indicators,
		RSIOverbought: cfg.RSIOverbought,
		RSIOversold:   cfg.RSIOversold,
	}, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize strategy engine: %v", err)
	}

	client, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	// Session changes go through the trading service. A service already
	// running this session overwrites them on its next save.
	if *reset || *apply || *start || *stop {
		cfg.Override = *apply
		svc, err := app.NewTradingService(cfg, appLogger, client, repo, engine, metrics.NewMetrics(prometheus.NewRegistry()))
		if err != nil {
			log.Fatalf("FATAL: Failed to initialize trading service: %v", err)
		}
		if err := svc.LoadSession(ctx); err != nil {
			log.Fatalf("Failed to load session %s: %v", *sessionID, err)
		}
		if *reset {
			if err := svc.Reset(ctx); err != nil {
				log.Fatalf("Failed to reset session %s: %v", *sessionID, err)
			}
			fmt.Printf("Session %s reset\n", *sessionID)
		}
		if *start || *stop {
			if err := svc.SetRunning(ctx, *start); err != nil {
				log.Fatalf("Failed to update session %s: %v", *sessionID, err)
			}
			fmt.Printf("Session %s running: %t\n", *sessionID, *start)
		}
	}

	sess, err := repo.Load(ctx, *sessionID)
	if err != nil {
		log.Fatalf("Failed to load session %s: %v", *sessionID, err)
	}
	if sess == nil {
		fmt.Printf("Session %s not found in %s\n", *sessionID, *dbPath)
		os.Exit(1)
	}

	var candles []domain.Candle
	switch {
	case *live:
		candles, err = client.GetCandles(ctx, sess.Pair, sess.Timeframe, cfg.CandleWindow)
		if err != nil {
			log.Fatalf("Failed to fetch candles: %v", err)
		}
	case *candlesPath != "":
		candles, err = utils.ReadCandlesFromCSV(*candlesPath)
		if err != nil {
			log.Fatalf("Failed to read candles: %v", err)
		}
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	printSession(w, sess, candles)
	printPerformance(w, sess)
	printLedger(w, sess.Closed)
	if len(candles) > 0 {
		printMarket(ctx, w, sess, candles, engine)
	}
	w.Flush()
}

func printSession(w *tabwriter.Writer, s *domain.Session, candles []domain.Candle) {
	fmt.Fprintf(w, "Session\t%s\n", s.ID)
	fmt.Fprintf(w, "Pair\t%s %s\n", s.Pair, s.Timeframe)
	fmt.Fprintf(w, "Strategy\t%s (running: %t)\n", s.Strategy, s.Running)
	fmt.Fprintf(w, "Sizing\t%s %g, leverage x%d\n", s.Sizing.Mode, s.Sizing.Value, s.Leverage)
	fmt.Fprintf(w, "Capital\t%.2f\n", s.Capital)
	fmt.Fprintf(w, "Updated\t%s\n", s.UpdatedAt.UTC().Format(time.RFC3339))

	if p := s.Position; p != nil {
		fmt.Fprintf(w, "Position\t%s %g @ %.2f (margin %.2f, x%d)\n", p.Side, p.Quantity, p.EntryPrice, p.Margin, p.Leverage)
		if len(candles) > 0 {
			mark := candles[len(candles)-1].Close
			fmt.Fprintf(w, "Unrealized\t%.2f @ %.2f\n", p.PnLAt(mark), mark)
		}
	} else {
		fmt.Fprintf(w, "Position\tflat\n")
	}
	fmt.Fprintln(w)
}

func printPerformance(w *tabwriter.Writer, s *domain.Session) {
	m := analytics.AnalyzePerformance(s.Closed, analytics.InitialBalance(s.Capital, s.Closed))
	fmt.Fprintf(w, "Trades\t%d (long %d, short %d)\n", m.TotalTrades, m.LongTrades, m.ShortTrades)
	if m.TotalTrades == 0 {
		fmt.Fprintln(w)
		return
	}
	fmt.Fprintf(w, "Win rate\t%.1f%%\n", m.WinRate*100)
	fmt.Fprintf(w, "Total PnL\t%.2f (ROI %.2f%%)\n", m.TotalProfit, m.ReturnOnInvestment*100)
	fmt.Fprintf(w, "Profit factor\t%.2f\n", m.ProfitFactor)
	fmt.Fprintf(w, "Avg win / loss\t%.2f / %.2f\n", m.AverageWin, m.AverageLoss)
	fmt.Fprintf(w, "Max drawdown\t%.2f%%\n", m.MaxDrawdown*100)
	fmt.Fprintf(w, "Avg duration\t%s\n", m.AverageTradeDuration.Round(time.Second))
	for _, mr := range m.GetMonthlyReturns() {
		fmt.Fprintf(w, "  %s\t%.2f\n", mr.Month.Format("2006-01"), mr.Return)
	}
	fmt.Fprintln(w)
}

func printLedger(w *tabwriter.Writer, trades []domain.ClosedTrade) {
	if len(trades) == 0 {
		return
	}
	fmt.Fprintln(w, "Closed\tSide\tQty\tEntry\tExit\tPnL")
	for _, t := range trades {
		fmt.Fprintf(w, "%s\t%s\t%g\t%.2f\t%.2f\t%.2f\n",
			t.ClosedAt.UTC().Format("2006-01-02 15:04"), t.Side, t.Quantity, t.EntryPrice, t.ExitPrice, t.RealizedPnL)
	}
	fmt.Fprintln(w)
}

func printMarket(ctx context.Context, w *tabwriter.Writer, s *domain.Session, candles []domain.Candle, engine *strategy.Engine) {
	set := engine.Indicators(candles)
	last := func(series indicators.Series) string {
		if v, ok := series.Last(); ok {
			return fmt.Sprintf("%.2f", v)
		}
		return "-"
	}

	fmt.Fprintf(w, "Last close\t%.2f\n", candles[len(candles)-1].Close)
	v := s.Visibility
	if v.EMA {
		fmt.Fprintf(w, "EMA fast/slow\t%s / %s\n", last(set.EMAFast), last(set.EMASlow))
	}
	if v.BB {
		fmt.Fprintf(w, "Bollinger\t%s / %s / %s\n", last(set.Bollinger.Upper), last(set.Bollinger.Basis), last(set.Bollinger.Lower))
	}
	if v.RSI {
		fmt.Fprintf(w, "RSI\t%s\n", last(set.RSI))
	}
	if v.MACD {
		fmt.Fprintf(w, "MACD\t%s / %s / %s\n", last(set.MACD.Line), last(set.MACD.Signal), last(set.MACD.Hist))
	}
	if v.Pivots && set.HasPivots {
		fmt.Fprintf(w, "Pivots P/R1/S1\t%.2f / %.2f / %.2f\n", set.Pivots.P, set.Pivots.R1, set.Pivots.S1)
	}

	fmt.Fprintln(w, "Strategy\tSignal")
	for _, id := range domain.StrategyIDs {
		marker := ""
		if id == s.Strategy {
			marker = " *"
		}
		fmt.Fprintf(w, "%s%s\t%s\n", id, marker, engine.Evaluate(ctx, candles, id))
	}
}
