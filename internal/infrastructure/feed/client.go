package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/amarcoder01/market-engine/internal/config"
	"github.com/amarcoder01/market-engine/internal/domain/models"
	zapLogger "github.com/amarcoder01/market-engine/internal/logger"
)

// Client fetches quotes from a Yahoo-compatible chart endpoint. A circuit
// breaker fronts the whole batch so a dead upstream fails fast instead of
// burning the refresh budget on timeouts.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	circuitBreaker *gobreaker.CircuitBreaker[[]models.Quote]
}

func NewClient(cfg config.FeedConfig, breakerCfg config.CircuitBreakerConfig) *Client {
	circuitBreaker := gobreaker.NewCircuitBreaker[[]models.Quote](gobreaker.Settings{
		Name:        "quoteFeed",
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerCfg.MaxFailures
		},
	})

	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		baseURL:        cfg.BaseURL,
		circuitBreaker: circuitBreaker,
	}
}

func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	const op = "feed.Client.FetchQuotes"

	quotes, err := c.circuitBreaker.Execute(func() ([]models.Quote, error) {
		out := make([]models.Quote, 0, len(symbols))
		for _, symbol := range symbols {
			quote, err := c.fetchOne(ctx, symbol)
			if err != nil {
				zapLogger.Warn(ctx, "quote fetch failed",
					zap.String("symbol", symbol),
					zap.Error(err),
				)
				continue
			}
			out = append(out, quote)
		}

		if len(out) == 0 && len(symbols) > 0 {
			return nil, fmt.Errorf("no quotes for %d symbols", len(symbols))
		}

		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return quotes, nil
}

func (c *Client) fetchOne(ctx context.Context, symbol string) (models.Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.Quote{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Quote{}, fmt.Errorf("status %d", resp.StatusCode)
	}

	var payload struct {
		Chart struct {
			Result []struct {
				Meta struct {
					Symbol             string  `json:"symbol"`
					RegularMarketPrice float64 `json:"regularMarketPrice"`
					PreviousClose      float64 `json:"chartPreviousClose"`
					RegularMarketVol   int64   `json:"regularMarketVolume"`
				} `json:"meta"`
			} `json:"result"`
		} `json:"chart"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return models.Quote{}, fmt.Errorf("decode response: %w", err)
	}

	if len(payload.Chart.Result) == 0 {
		return models.Quote{}, fmt.Errorf("empty chart result")
	}

	meta := payload.Chart.Result[0].Meta
	price := decimal.NewFromFloat(meta.RegularMarketPrice)

	change := decimal.Zero
	changePercent := decimal.Zero
	if meta.PreviousClose > 0 {
		previousClose := decimal.NewFromFloat(meta.PreviousClose)
		change = price.Sub(previousClose)
		changePercent = change.Div(previousClose).Mul(decimal.NewFromInt(100))
	}

	return models.Quote{
		Symbol:        symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        meta.RegularMarketVol,
		FetchedAt:     time.Now().UTC(),
	}, nil
}
