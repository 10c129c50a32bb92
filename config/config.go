package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"paperdesk/internal/adapters/logger"
	"paperdesk/internal/domain"
	"paperdesk/internal/strategy/indicators"
)

// Timeframes lists the candle intervals a session can run on.
var Timeframes = []string{"1m", "5m", "15m", "1h"}

// NewSessionID is the SESSION_ID value that requests a freshly generated id.
const NewSessionID = "new"

// Config holds all application configuration.
type Config struct {
	// Binance API (optional, market data endpoints are public)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Session
	SessionID  string
	Pair       string
	Timeframe  string
	Strategy   domain.StrategyID
	Leverage   int
	Sizing     domain.Sizing
	Capital    float64
	Running    bool
	Visibility domain.Visibility
	Override   bool // apply the settings above to a stored session instead of restoring its own

	// Polling
	PollInterval time.Duration
	CandleWindow int

	// Strategy Parameters
	Indicators    indicators.Params
	RSIOverbought float64 // e.g., 70.0
	RSIOversold   float64 // e.g., 30.0

	// Database
	DBPath string

	// Logging
	LogLevel  logger.LogLevel
	LogFormat string // "text" or "json"

	// Metrics listen address, empty disables the endpoint
	MetricsAddr string

	// Connection Settings
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// A missing .env file is fine; plain environment variables still apply.
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet, err = getEnvAsBoolRequired("IS_TESTNET", false)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid IS_TESTNET: %v", err))
	}

	// Session
	cfg.SessionID = strings.TrimSpace(getEnv("SESSION_ID", "default"))
	if strings.EqualFold(cfg.SessionID, NewSessionID) {
		cfg.SessionID = uuid.NewString()
	}

	cfg.Pair = strings.ToUpper(strings.TrimSpace(getEnv("PAIR", "BTCUSDT")))
	if cfg.Pair == "" {
		errs = append(errs, "PAIR must be set")
	}

	cfg.Timeframe = getEnv("TIMEFRAME", "5m")
	if !ValidTimeframe(cfg.Timeframe) {
		errs = append(errs, fmt.Sprintf("TIMEFRAME must be one of %s", strings.Join(Timeframes, ", ")))
	}

	cfg.Strategy, err = domain.ParseStrategyID(getEnv("STRATEGY", string(domain.StrategyEMACross)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STRATEGY: %v", err))
	}

	// Out-of-range leverage and size are clamped by the sizing policy.
	cfg.Leverage, err = getEnvAsIntRequired("LEVERAGE", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LEVERAGE: %v", err))
	}

	cfg.Sizing.Mode, err = domain.ParseSizeMode(getEnv("SIZE_MODE", string(domain.SizeNotional)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIZE_MODE: %v", err))
	}
	cfg.Sizing.Value, err = getEnvAsFloatRequired("SIZE_VALUE", 100)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SIZE_VALUE: %v", err))
	}

	cfg.Capital, err = getEnvAsFloatRequired("CAPITAL", 1000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CAPITAL: %v", err))
	} else if cfg.Capital <= 0 {
		errs = append(errs, "CAPITAL must be positive")
	}

	cfg.Running, err = getEnvAsBoolRequired("RUNNING", false)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RUNNING: %v", err))
	}

	cfg.Override, err = getEnvAsBoolRequired("SESSION_OVERRIDE", false)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SESSION_OVERRIDE: %v", err))
	}

	defVis := domain.DefaultVisibility()
	cfg.Visibility = domain.Visibility{
		EMA:    getEnvAsBool("SHOW_EMA", defVis.EMA),
		BB:     getEnvAsBool("SHOW_BB", defVis.BB),
		RSI:    getEnvAsBool("SHOW_RSI", defVis.RSI),
		Pivots: getEnvAsBool("SHOW_PIVOTS", defVis.Pivots),
		MACD:   getEnvAsBool("SHOW_MACD", defVis.MACD),
	}

	// Polling
	pollSeconds, err := getEnvAsIntRequired("POLL_INTERVAL_SECONDS", 7)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid POLL_INTERVAL_SECONDS: %v", err))
	} else if pollSeconds <= 0 {
		errs = append(errs, "POLL_INTERVAL_SECONDS must be positive")
	}
	cfg.PollInterval = time.Duration(pollSeconds) * time.Second

	cfg.CandleWindow, err = getEnvAsIntRequired("CANDLE_WINDOW", 120)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CANDLE_WINDOW: %v", err))
	} else if cfg.CandleWindow < 30 || cfg.CandleWindow > 1000 {
		errs = append(errs, "CANDLE_WINDOW must be between 30 and 1000")
	}

	// Strategy Parameters (using defaults if not set)
	def := indicators.DefaultParams()
	cfg.Indicators = indicators.Params{
		EMAFast:       getEnvAsInt("STRATEGY_EMA_FAST", def.EMAFast),
		EMASlow:       getEnvAsInt("STRATEGY_EMA_SLOW", def.EMASlow),
		RSIPeriod:     getEnvAsInt("STRATEGY_RSI_PERIOD", def.RSIPeriod),
		MACDFast:      getEnvAsInt("STRATEGY_MACD_FAST", def.MACDFast),
		MACDSlow:      getEnvAsInt("STRATEGY_MACD_SLOW", def.MACDSlow),
		MACDSignal:    getEnvAsInt("STRATEGY_MACD_SIGNAL", def.MACDSignal),
		BollingerLen:  getEnvAsInt("STRATEGY_BB_LENGTH", def.BollingerLen),
		BollingerMult: getEnvAsFloat("STRATEGY_BB_MULT", def.BollingerMult),
	}
	if err := cfg.Indicators.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("invalid strategy parameters: %v", err))
	}
	cfg.RSIOverbought = getEnvAsFloat("STRATEGY_RSI_OVERBOUGHT", 70.0)
	cfg.RSIOversold = getEnvAsFloat("STRATEGY_RSI_OVERSOLD", 30.0)
	if cfg.RSIOverbought <= cfg.RSIOversold || cfg.RSIOverbought > 100 || cfg.RSIOversold < 0 {
		errs = append(errs, "invalid RSI thresholds (Overbought must be > Oversold, between 0-100)")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/paperdesk.db")

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be text or json")
	}

	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9100")

	// Connection Settings
	reconnectDelaySeconds := getEnvAsInt("RECONNECT_DELAY_SECONDS", 1)
	if reconnectDelaySeconds <= 0 {
		errs = append(errs, "RECONNECT_DELAY_SECONDS must be positive")
	}
	cfg.ReconnectDelay = time.Duration(reconnectDelaySeconds) * time.Second

	cfg.MaxReconnectAttempts = getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 3)
	if cfg.MaxReconnectAttempts < 0 {
		errs = append(errs, "MAX_RECONNECT_ATTEMPTS cannot be negative")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// ValidTimeframe reports whether tf is one of Timeframes.
func ValidTimeframe(tf string) bool {
	for _, v := range Timeframes {
		if v == tf {
			return true
		}
	}
	return false
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBoolRequired(key string, defaultValue bool) (bool, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("invalid boolean value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
