package rates

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"forex-trading-bot-go/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Source supplies the latest known price for a currency pair plus a
// freshness timestamp. The scheduler depends only on this contract.
type Source interface {
	LatestPrice(base, quote string) (decimal.Decimal, time.Time, error)
}

type quote struct {
	rate decimal.Decimal
	asOf time.Time
}

// Feed caches exchange rates for a fixed set of pairs and refreshes them on
// a timer. LatestPrice never blocks on the network: it serves the cache and
// reports unavailable or stale data as errors so the caller can skip the
// pair this tick.
type Feed struct {
	client    ClientInterface
	logger    *zap.Logger
	pairs     []string // "EUR/USD"
	staleness time.Duration

	mu     sync.RWMutex
	quotes map[string]quote
}

var _ Source = (*Feed)(nil)

// NewFeed creates a feed for the given pairs.
func NewFeed(client ClientInterface, pairs []string, staleness time.Duration, logger *zap.Logger) *Feed {
	return &Feed{
		client:    client,
		logger:    logger.Named("feed"),
		pairs:     pairs,
		staleness: staleness,
		quotes:    make(map[string]quote),
	}
}

// Poll refreshes all pairs immediately and then on every interval until the
// context is cancelled.
func (f *Feed) Poll(ctx context.Context, interval time.Duration) {
	f.logger.Info("Starting rate polling",
		zap.Duration("interval", interval),
		zap.Int("pairs", len(f.pairs)))

	f.Refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("Stopping rate polling")
			return
		case <-ticker.C:
			f.Refresh()
		}
	}
}

// Refresh fetches every configured pair once. A failure on one pair is
// logged and does not block the others; its cached value simply ages out.
func (f *Feed) Refresh() {
	for _, pair := range f.pairs {
		base, quoteCcy, err := SplitPair(pair)
		if err != nil {
			f.logger.Error("Skipping malformed pair", zap.String("pair", pair), zap.Error(err))
			continue
		}

		rate, err := f.client.GetExchangeRate(base, quoteCcy)
		if err != nil {
			f.logger.Warn("Failed to refresh rate",
				zap.String("pair", pair),
				zap.Error(err))
			continue
		}

		f.mu.Lock()
		f.quotes[pair] = quote{rate: rate, asOf: time.Now()}
		f.mu.Unlock()

		f.logger.Debug("Rate refreshed",
			zap.String("pair", pair),
			zap.String("rate", rate.String()))
	}
}

// LatestPrice returns the cached rate for base/quote and when it was
// fetched. Fails with RateUnavailable if the pair was never fetched and
// StaleRate if the cached value is older than the freshness threshold.
func (f *Feed) LatestPrice(base, quoteCcy string) (decimal.Decimal, time.Time, error) {
	pair := base + "/" + quoteCcy

	f.mu.RLock()
	q, ok := f.quotes[pair]
	f.mu.RUnlock()

	if !ok {
		return decimal.Zero, time.Time{}, fmt.Errorf("pair %s: %w", pair, models.ErrRateUnavailable)
	}
	if time.Since(q.asOf) > f.staleness {
		return decimal.Zero, time.Time{}, fmt.Errorf("pair %s as of %s: %w",
			pair, q.asOf.Format(time.RFC3339), models.ErrStaleRate)
	}

	return q.rate, q.asOf, nil
}

// SplitPair parses "EUR/USD" into base and quote currencies.
func SplitPair(pair string) (string, string, error) {
	parts := strings.Split(pair, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed currency pair %q", pair)
	}
	return parts[0], parts[1], nil
}
