package rates

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"forex-trading-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://www.alphavantage.co"

// ClientInterface defines the interface for the exchange-rate API client.
type ClientInterface interface {
	GetExchangeRate(base, quote string) (decimal.Decimal, error)
}

// Client fetches realtime currency exchange rates from an
// Alpha-Vantage-style API.
// It implements the ClientInterface.
type Client struct {
	client  *resty.Client
	apiKey  string
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure Client implements the interface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new exchange-rate API client.
func NewClient(cfg *config.Feed, logger *zap.Logger) *Client {
	baseURL := cfg.ApiURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New().SetBaseURL(baseURL)

	// rate.Limit is requests per second.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &Client{
		client:  client,
		apiKey:  cfg.ApiKey,
		logger:  logger.Named("rates"),
		limiter: limiter,
	}
}

// exchangeRateResponse mirrors the CURRENCY_EXCHANGE_RATE payload.
type exchangeRateResponse struct {
	RealtimeCurrencyExchangeRate struct {
		FromCurrencyCode string `json:"1. From_Currency Code"`
		ToCurrencyCode   string `json:"3. To_Currency Code"`
		ExchangeRate     string `json:"5. Exchange Rate"`
		LastRefreshed    string `json:"6. Last Refreshed"`
	} `json:"Realtime Currency Exchange Rate"`
}

// GetExchangeRate fetches the latest rate for one currency pair.
func (c *Client) GetExchangeRate(base, quote string) (decimal.Decimal, error) {
	var result exchangeRateResponse

	req := c.client.R().
		SetQueryParams(map[string]string{
			"function":      "CURRENCY_EXCHANGE_RATE",
			"from_currency": base,
			"to_currency":   quote,
			"apikey":        c.apiKey,
		}).
		SetResult(&result).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	if _, err := c.doRequest(ctx, "GET", "/query", req); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get exchange rate for %s/%s: %w", base, quote, err)
	}

	raw := result.RealtimeCurrencyExchangeRate.ExchangeRate
	if raw == "" {
		return decimal.Zero, fmt.Errorf("empty exchange rate in response for %s/%s", base, quote)
	}

	rateValue, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse exchange rate %q for %s/%s: %w", raw, base, quote, err)
	}

	return rateValue, nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 { // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
