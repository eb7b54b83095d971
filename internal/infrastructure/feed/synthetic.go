package feed

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
)

// Synthetic is a self-contained quote source for local runs. Each symbol
// follows a random walk seeded from its name, so prices are stable across
// restarts and never depend on the network.
type Synthetic struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	rng    *rand.Rand
}

func NewSynthetic() *Synthetic {
	return &Synthetic{
		prices: make(map[string]decimal.Decimal),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func basePrice(symbol string) decimal.Decimal {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	// Anything from $10 to $510.
	return decimal.NewFromInt(int64(h.Sum32()%500 + 10))
}

func (s *Synthetic) FetchQuotes(ctx context.Context, symbols []string) ([]models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	out := make([]models.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		previous, found := s.prices[symbol]
		if !found {
			previous = basePrice(symbol)
		}

		// Step within +/-0.5% of the previous price.
		step := decimal.NewFromFloat((s.rng.Float64() - 0.5) / 100)
		price := previous.Add(previous.Mul(step)).Round(2)
		if price.LessThanOrEqual(decimal.Zero) {
			price = previous
		}
		s.prices[symbol] = price

		change := price.Sub(previous)
		changePercent := decimal.Zero
		if previous.IsPositive() {
			changePercent = change.Div(previous).Mul(decimal.NewFromInt(100))
		}

		out = append(out, models.Quote{
			Symbol:        symbol,
			Price:         price,
			Change:        change,
			ChangePercent: changePercent,
			Volume:        s.rng.Int63n(1_000_000),
			FetchedAt:     now,
		})
	}

	return out, nil
}
