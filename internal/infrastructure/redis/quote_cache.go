package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
)

const quoteKeyPrefix = "quote:cache:"

// quoteRedisView keeps decimals as strings so cached payloads survive
// round-trips without float drift.
type quoteRedisView struct {
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Change        string `json:"change"`
	ChangePercent string `json:"change_percent"`
	Volume        int64  `json:"volume"`
	FetchedAt     int64  `json:"fetched_at"`
}

func quoteFromDomain(quote models.Quote) quoteRedisView {
	return quoteRedisView{
		Symbol:        quote.Symbol,
		Price:         quote.Price.String(),
		Change:        quote.Change.String(),
		ChangePercent: quote.ChangePercent.String(),
		Volume:        quote.Volume,
		FetchedAt:     quote.FetchedAt.UnixMilli(),
	}
}

func (v quoteRedisView) toDomain() (models.Quote, error) {
	price, err := decimal.NewFromString(v.Price)
	if err != nil {
		return models.Quote{}, fmt.Errorf("parse price: %w", err)
	}

	change, err := decimal.NewFromString(v.Change)
	if err != nil {
		return models.Quote{}, fmt.Errorf("parse change: %w", err)
	}

	changePercent, err := decimal.NewFromString(v.ChangePercent)
	if err != nil {
		return models.Quote{}, fmt.Errorf("parse change percent: %w", err)
	}

	return models.Quote{
		Symbol:        v.Symbol,
		Price:         price,
		Change:        change,
		ChangePercent: changePercent,
		Volume:        v.Volume,
		FetchedAt:     time.UnixMilli(v.FetchedAt).UTC(),
	}, nil
}

// QuoteCache is the shared second-level quote cache backing the in-process
// one. Entries expire on their own, so a cold process never reads quotes
// older than the staleness window.
type QuoteCache struct {
	client *redis.Client
}

func NewQuoteCache(client *redis.Client) *QuoteCache {
	return &QuoteCache{
		client: client,
	}
}

func (q *QuoteCache) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	const op = "QuoteCache.GetQuote"

	data, err := q.client.Get(ctx, quoteKeyPrefix+symbol).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.Quote{}, repositoryErrors.ErrQuoteCacheMiss
		}

		return models.Quote{}, fmt.Errorf("%s: %w", op, err)
	}

	var view quoteRedisView
	if err = json.Unmarshal(data, &view); err != nil {
		return models.Quote{}, fmt.Errorf("%s: %w", op, err)
	}

	quote, err := view.toDomain()
	if err != nil {
		return models.Quote{}, fmt.Errorf("%s: %w", op, err)
	}

	return quote, nil
}

func (q *QuoteCache) SetQuote(ctx context.Context, quote models.Quote, ttl time.Duration) error {
	const op = "QuoteCache.SetQuote"

	data, err := json.Marshal(quoteFromDomain(quote))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err = q.client.Set(ctx, quoteKeyPrefix+quote.Symbol, data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
