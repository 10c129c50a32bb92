package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"paperdesk/config"
	"paperdesk/internal/adapters/binanceclient"
	"paperdesk/internal/adapters/logger"
	"paperdesk/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	pair := flag.String("pair", cfg.Pair, "trading pair")
	interval := flag.String("tf", cfg.Timeframe, "candle timeframe (1m, 5m, 15m, 1h)")
	days := flag.Int("days", 0, "fetch this many days of history; 0 fetches the latest -limit candles")
	limit := flag.Int("limit", 500, "number of recent candles when -days is 0")
	out := flag.String("out", "", "output CSV path (default data/<pair>_<tf>_<range>.csv)")
	flag.Parse()

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogFormat, cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Candle Source (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}

	end := time.Now().UTC()
	filename := *out
	var fetch func() (int, error)

	if *days > 0 {
		start := end.AddDate(0, 0, -*days)
		if filename == "" {
			filename = fmt.Sprintf("data/%s_%s_%s_to_%s.csv", *pair, *interval, start.Format("20060102"), end.Format("20060102"))
		}
		fetch = func() (int, error) {
			fmt.Printf("Fetching candles for %s %s from %s to %s...\n", *pair, *interval, start.Format(time.RFC3339), end.Format(time.RFC3339))
			candles, err := binanceClient.GetCandlesRange(ctx, *pair, *interval, start, end)
			if err != nil {
				return 0, err
			}
			return len(candles), utils.WriteCandlesToCSV(candles, filename)
		}
	} else {
		if filename == "" {
			filename = fmt.Sprintf("data/%s_%s_latest_%d.csv", *pair, *interval, *limit)
		}
		fetch = func() (int, error) {
			fmt.Printf("Fetching latest %d candles for %s %s...\n", *limit, *pair, *interval)
			candles, err := binanceClient.GetCandles(ctx, *pair, *interval, *limit)
			if err != nil {
				return 0, err
			}
			return len(candles), utils.WriteCandlesToCSV(candles, filename)
		}
	}

	count, err := fetch()
	if err != nil {
		appLogger.Error(ctx, err, "Error fetching candles")
		log.Fatalf("Error fetching candles: %v", err)
	}
	appLogger.Info(ctx, "Saved candles", map[string]interface{}{"count": count, "filename": filename})
}
