package pricecache

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
)

// Provider fetches quotes for a batch of symbols. Implementations are
// expected to be rate-limited upstream; the cache paces batches itself.
type Provider interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error)
}

// L2 is an optional shared quote cache (redis) written through on refresh
// and consulted when the in-process map misses.
type L2 interface {
	GetQuote(ctx context.Context, symbol string) (models.Quote, error)
	SetQuote(ctx context.Context, quote models.Quote, ttl time.Duration) error
}

type Config struct {
	BatchSize  int
	BatchDelay time.Duration
	Timeout    time.Duration
	Staleness  time.Duration
}

// Cache deduplicates outbound price lookups and serves the freshest known
// quote per symbol. Quotes older than the staleness bound are treated as
// absent: they never drive a fill or a trigger.
type Cache struct {
	mu     sync.RWMutex
	quotes map[string]models.Quote

	provider Provider
	l2       L2
	cfg      Config
	pacer    *rate.Limiter
	metrics  *obs.Metrics

	now func() time.Time
}

func New(provider Provider, l2 L2, cfg Config, metrics *obs.Metrics) *Cache {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = 100 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = time.Minute
	}

	return &Cache{
		quotes:   make(map[string]models.Quote),
		provider: provider,
		l2:       l2,
		cfg:      cfg,
		pacer:    rate.NewLimiter(rate.Every(cfg.BatchDelay), 1),
		metrics:  metrics,
		now:      time.Now,
	}
}

// Get returns the freshest usable quote for symbol. A stale quote is
// reported as absent.
func (c *Cache) Get(ctx context.Context, symbol string) (models.Quote, bool) {
	key := normalize(symbol)
	now := c.now()

	c.mu.RLock()
	quote, found := c.quotes[key]
	c.mu.RUnlock()

	if found && !quote.Stale(now, c.cfg.Staleness) {
		return quote, true
	}

	if c.l2 == nil {
		return models.Quote{}, false
	}

	shared, err := c.l2.GetQuote(ctx, key)
	if err != nil {
		if !errors.Is(err, repositoryErrors.ErrQuoteCacheMiss) {
			logger.Warn(ctx, "quote cache read failed", zap.String("symbol", key), zap.Error(err))
		}
		return models.Quote{}, false
	}
	if shared.Stale(now, c.cfg.Staleness) {
		return models.Quote{}, false
	}

	c.mu.Lock()
	c.quotes[key] = shared
	c.mu.Unlock()

	return shared, true
}

// Price is a convenience view over Get for valuation callbacks.
func (c *Cache) Price(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	quote, found := c.Get(ctx, symbol)
	if !found {
		return decimal.Decimal{}, false
	}
	return quote.Price, true
}

// Refresh fetches quotes for symbols in paced batches. Partial success is
// the expected steady state: per-symbol failures are counted and logged,
// previous quotes are retained, and the call itself never fails.
func (c *Cache) Refresh(ctx context.Context, symbols []string) int {
	universe := dedupe(symbols)
	if len(universe) == 0 {
		return 0
	}

	refreshed := 0
	for start := 0; start < len(universe); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(universe) {
			end = len(universe)
		}
		batch := universe[start:end]

		if err := c.pacer.Wait(ctx); err != nil {
			// Context gone; whatever is already refreshed stands.
			return refreshed
		}

		refreshed += c.refreshBatch(ctx, batch)
	}
	return refreshed
}

func (c *Cache) refreshBatch(ctx context.Context, batch []string) int {
	fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	quotes, err := c.provider.FetchQuotes(fetchCtx, batch)
	if err != nil {
		logger.Warn(ctx, "feed batch failed",
			zap.Int("symbols", len(batch)),
			zap.Error(err),
		)
		c.metrics.FeedFailures.Add(float64(len(batch)))
		return 0
	}

	updated := 0
	seen := make(map[string]bool, len(quotes))
	for _, quote := range quotes {
		key := normalize(quote.Symbol)
		if key == "" || !quote.Price.IsPositive() {
			continue
		}
		quote.Symbol = key
		if quote.FetchedAt.IsZero() {
			quote.FetchedAt = c.now()
		}
		seen[key] = true

		c.mu.Lock()
		c.quotes[key] = quote
		c.mu.Unlock()

		if c.l2 != nil {
			if err := c.l2.SetQuote(ctx, quote, c.cfg.Staleness); err != nil {
				logger.Warn(ctx, "quote cache write failed", zap.String("symbol", key), zap.Error(err))
			}
		}
		updated++
	}

	missed := 0
	for _, symbol := range batch {
		if !seen[normalize(symbol)] {
			missed++
		}
	}
	if missed > 0 {
		logger.Warn(ctx, "feed returned no usable quote for some symbols", zap.Int("missed", missed))
		c.metrics.FeedFailures.Add(float64(missed))
	}

	c.metrics.QuotesRefreshed.Add(float64(updated))
	return updated
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		key := normalize(symbol)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
