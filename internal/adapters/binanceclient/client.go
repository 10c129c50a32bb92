package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"paperdesk/internal/domain"
	"paperdesk/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"

	// maxKlinesLimit is the largest page the spot klines endpoint returns.
	maxKlinesLimit = 1000
)

// Client implements ports.CandleSource using the go-binance spot API.
type Client struct {
	spotClient           *binance.Client
	logger               ports.Logger
	reconnectDelay       time.Duration
	maxReconnectAttempts int
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey               string
	SecretKey            string
	UseTestnet           bool
	BaseURL              string // Overrides the production/testnet URL when set
	Logger               ports.Logger
	ReconnectDelay       time.Duration // Delay before the first retry, doubled per attempt
	MaxReconnectAttempts int           // Max attempts for a single request
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		cfg.Logger.Debug(context.Background(), "Binance API keys not set, using public market data endpoints only")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	switch {
	case cfg.BaseURL != "":
		client.BaseURL = cfg.BaseURL
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance spot client configured", map[string]interface{}{
		"baseURL": client.BaseURL, "testnet": cfg.UseTestnet,
	})

	reconnectDelay := cfg.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = 1 * time.Second
	}
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &Client{
		spotClient:           client,
		logger:               cfg.Logger,
		reconnectDelay:       reconnectDelay,
		maxReconnectAttempts: maxAttempts,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1000, -1001, -1006, -1007, -1008: // Unknown/disconnected/unexpected response/timeout/overloaded
			mappedErr = ports.ErrExchangeUnavailable
		case -1003, -1015: // Too many requests or orders
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1121: // Invalid symbol
			mappedErr = ports.ErrUnknownSymbol
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1120, -1125, -1127, -1128, -1130:
			mappedErr = ports.ErrInvalidRequest
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if errors.Is(err, ports.ErrMalformedData) {
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") ||
		strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "EOF") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// retryable reports whether a translated error may succeed on a later attempt.
func retryable(err error) bool {
	return errors.Is(err, ports.ErrConnectionFailed) ||
		errors.Is(err, ports.ErrExchangeUnavailable) ||
		errors.Is(err, ports.ErrRateLimited)
}

// withRetry runs fn until it succeeds, fails permanently or attempts run out.
// The delay doubles after each failed attempt.
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		err = fn()
		if err == nil || !retryable(err) || attempt == c.maxReconnectAttempts {
			return err
		}
		delay := c.reconnectDelay * time.Duration(1<<uint(attempt-1))
		c.logger.Warn(ctx, op+": retrying after transient error", map[string]interface{}{
			"attempt": attempt, "maxAttempts": c.maxReconnectAttempts, "delay": delay.String(),
		})
		select {
		case <-ctx.Done():
			return c.handleError(ctx, ctx.Err(), op)
		case <-time.After(delay):
		}
	}
	return err
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.spotClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.spotClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// GetCandles retrieves the most recent limit candles for pair, oldest first.
// The last candle is usually still forming.
func (c *Client) GetCandles(ctx context.Context, pair, timeframe string, limit int) ([]domain.Candle, error) {
	op := "GetCandles"
	if limit <= 0 || limit > maxKlinesLimit {
		return nil, fmt.Errorf("%s: limit %d outside 1..%d: %w", op, limit, maxKlinesLimit, ports.ErrInvalidRequest)
	}

	var candles []domain.Candle
	err := c.withRetry(ctx, op, func() error {
		klines, err := c.spotClient.NewKlinesService().Symbol(pair).Interval(timeframe).Limit(limit).Do(ctx)
		if err != nil {
			return c.handleError(ctx, err, op)
		}
		candles, err = translateKlines(klines)
		if err != nil {
			return c.handleError(ctx, err, op)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"pair": pair, "timeframe": timeframe, "count": len(candles)})
	return candles, nil
}

// GetCandlesRange fetches all candles for pair and timeframe between start and end.
func (c *Client) GetCandlesRange(ctx context.Context, pair, timeframe string, start, end time.Time) ([]domain.Candle, error) {
	op := "GetCandlesRange"
	var all []domain.Candle
	from := start

	for {
		var klines []*binance.Kline
		err := c.withRetry(ctx, op, func() error {
			var err error
			klines, err = c.spotClient.NewKlinesService().
				Symbol(pair).
				Interval(timeframe).
				StartTime(from.UnixMilli()).
				EndTime(end.UnixMilli()).
				Limit(maxKlinesLimit).
				Do(ctx)
			return c.handleError(ctx, err, op)
		})
		if err != nil {
			return nil, err
		}
		if len(klines) == 0 {
			break
		}
		page, err := translateKlines(klines)
		if err != nil {
			return nil, c.handleError(ctx, err, op)
		}
		all = append(all, page...)

		last := klines[len(klines)-1]
		from = time.UnixMilli(last.CloseTime + 1)
		if from.After(end) || len(klines) < maxKlinesLimit {
			break
		}
	}

	return all, nil
}

func translateKlines(klines []*binance.Kline) ([]domain.Candle, error) {
	out := make([]domain.Candle, 0, len(klines))
	for _, bk := range klines {
		c, err := translateKline(bk)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func translateKline(bk *binance.Kline) (domain.Candle, error) {
	if bk == nil {
		return domain.Candle{}, fmt.Errorf("received nil kline: %w", ports.ErrMalformedData)
	}
	fields := [...]struct {
		name string
		raw  string
	}{
		{"open", bk.Open}, {"high", bk.High}, {"low", bk.Low}, {"close", bk.Close}, {"volume", bk.Volume},
	}
	parsed := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f.raw, 64)
		if err != nil {
			return domain.Candle{}, fmt.Errorf("parsing %s '%s': %w: %w", f.name, f.raw, ports.ErrMalformedData, err)
		}
		parsed[i] = v
	}

	return domain.Candle{
		Time:   bk.OpenTime / 1000,
		Open:   parsed[0],
		High:   parsed[1],
		Low:    parsed[2],
		Close:  parsed[3],
		Volume: parsed[4],
	}, nil
}
