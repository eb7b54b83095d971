package orderbook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
	"github.com/amarcoder01/market-engine/internal/storage/memory"
)

func TestMain(m *testing.M) {
	logger.SetNopLogger()
	m.Run()
}

func dec(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func decPtr(value string) *decimal.Decimal {
	parsed := dec(value)
	return &parsed
}

type fakeQuotes struct {
	prices map[string]decimal.Decimal
}

func (f *fakeQuotes) Get(_ context.Context, symbol string) (models.Quote, bool) {
	price, found := f.prices[symbol]
	if !found {
		return models.Quote{}, false
	}
	return models.Quote{Symbol: symbol, Price: price, FetchedAt: time.Now().UTC()}, true
}

type fixture struct {
	store   *memory.Store
	quotes  *fakeQuotes
	service *Service
	account models.Account
}

func newFixture(t *testing.T, cash string) *fixture {
	t.Helper()

	store := memory.NewStore()
	quotes := &fakeQuotes{prices: map[string]decimal.Decimal{}}
	service := NewService(store, store, store, store, quotes, dec("1"), obs.NewMetrics())

	account := models.Account{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		CashBalance:    dec(cash),
		TotalValue:     dec(cash),
		RealizedPnL:    decimal.Zero,
		InitialBalance: dec(cash),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveAccount(context.Background(), account))

	return &fixture{store: store, quotes: quotes, service: service, account: account}
}

func (f *fixture) place(t *testing.T, request PlaceRequest) models.Order {
	t.Helper()
	order, err := f.service.Place(context.Background(), request)
	require.NoError(t, err)
	return order
}

func marketBuy(accountID uuid.UUID, symbol string, quantity int64) PlaceRequest {
	return PlaceRequest{
		AccountID: accountID,
		Symbol:    symbol,
		Side:      models.OrderSideBuy,
		Kind:      models.OrderKindMarket,
		Quantity:  quantity,
	}
}

func TestPlaceMarketBuy(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	order := f.place(t, marketBuy(f.account.ID, "aapl", 10))

	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, "AAPL", order.Symbol)

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}

func TestPlaceValidation(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	tests := []struct {
		name     string
		request  PlaceRequest
		expected error
	}{
		{
			name:     "zero quantity",
			request:  PlaceRequest{AccountID: f.account.ID, Symbol: "AAPL", Side: models.OrderSideBuy, Kind: models.OrderKindMarket},
			expected: serviceErrors.ErrInvalidQuantity,
		},
		{
			name:     "blank symbol",
			request:  PlaceRequest{AccountID: f.account.ID, Symbol: "  ", Side: models.OrderSideBuy, Kind: models.OrderKindMarket, Quantity: 1},
			expected: serviceErrors.ErrUnknownSymbol,
		},
		{
			name:     "unknown side",
			request:  PlaceRequest{AccountID: f.account.ID, Symbol: "AAPL", Kind: models.OrderKindMarket, Quantity: 1},
			expected: serviceErrors.ErrUnknownOrderSide,
		},
		{
			name:     "limit without price",
			request:  PlaceRequest{AccountID: f.account.ID, Symbol: "AAPL", Side: models.OrderSideBuy, Kind: models.OrderKindLimit, Quantity: 1},
			expected: serviceErrors.ErrMissingLimitPrice,
		},
		{
			name:     "stop without price",
			request:  PlaceRequest{AccountID: f.account.ID, Symbol: "AAPL", Side: models.OrderSideSell, Kind: models.OrderKindStop, Quantity: 1},
			expected: serviceErrors.ErrMissingStopPrice,
		},
		{
			name:     "unknown kind",
			request:  PlaceRequest{AccountID: f.account.ID, Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1},
			expected: serviceErrors.ErrUnknownOrderKind,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := f.service.Place(context.Background(), testCase.request)
			require.Error(t, err)
			assert.True(t, errors.Is(err, testCase.expected), "got %v", err)
		})
	}
}

func TestPlaceUnknownAccount(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	_, err := f.service.Place(context.Background(), marketBuy(uuid.New(), "AAPL", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrAccountNotFound))
}

func TestPlaceMarketBuyWithoutQuote(t *testing.T) {
	f := newFixture(t, "10000")

	_, err := f.service.Place(context.Background(), marketBuy(f.account.ID, "AAPL", 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrQuoteUnavailable))
}

func TestPlaceMarketSellWithoutQuoteRestsPending(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	f.place(t, marketBuy(f.account.ID, "AAPL", 10))
	require.Len(t, f.service.TryFill(context.Background()), 1)

	// The position's quote goes stale once nothing references the symbol;
	// selling it needs no cost estimate, so the order rests pending.
	delete(f.quotes.prices, "AAPL")

	sell := f.place(t, PlaceRequest{
		AccountID: f.account.ID,
		Symbol:    "AAPL",
		Side:      models.OrderSideSell,
		Kind:      models.OrderKindMarket,
		Quantity:  10,
	})
	assert.Equal(t, models.OrderStatusPending, sell.Status)

	// The next tick with a fresh quote fills it.
	f.quotes.prices["AAPL"] = dec("155")
	fills := f.service.TryFill(context.Background())
	require.Len(t, fills, 1)
	assert.Equal(t, sell.ID, fills[0].OrderID)
}

func TestPlaceBuyInsufficientFunds(t *testing.T) {
	f := newFixture(t, "1000")
	f.quotes.prices["AAPL"] = dec("150")

	_, err := f.service.Place(context.Background(), marketBuy(f.account.ID, "AAPL", 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrInsufficientFunds))
}

func TestPlaceBuyCountsReservedCash(t *testing.T) {
	f := newFixture(t, "2000")
	f.quotes.prices["AAPL"] = dec("100")

	// First buy reserves 10*100+1.
	f.place(t, marketBuy(f.account.ID, "AAPL", 10))

	// 999 available; another 10 shares needs 1001.
	_, err := f.service.Place(context.Background(), marketBuy(f.account.ID, "AAPL", 10))
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrInsufficientFunds))

	// 9 shares (901) still fits.
	f.place(t, marketBuy(f.account.ID, "AAPL", 9))
}

func TestPlaceShortSellRejected(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	_, err := f.service.Place(context.Background(), PlaceRequest{
		AccountID: f.account.ID,
		Symbol:    "AAPL",
		Side:      models.OrderSideSell,
		Kind:      models.OrderKindMarket,
		Quantity:  1,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrInsufficientPosition))
}

func TestCancelPendingOrder(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	order := f.place(t, marketBuy(f.account.ID, "AAPL", 1))
	require.NoError(t, f.service.Cancel(context.Background(), order.ID))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, stored.Status)

	// A second cancel finds a terminal order.
	err = f.service.Cancel(context.Background(), order.ID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrOrderAlreadyTerminal))
}

func TestCancelUnknownOrder(t *testing.T) {
	f := newFixture(t, "10000")

	err := f.service.Cancel(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrOrderNotFound))
}

func TestTryFillMarketBuy(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	order := f.place(t, marketBuy(f.account.ID, "AAPL", 10))

	fills := f.service.TryFill(context.Background())
	require.Len(t, fills, 1)
	assert.Equal(t, order.ID, fills[0].OrderID)
	assert.True(t, fills[0].Price.Equal(dec("150")))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, stored.Status)
	require.NotNil(t, stored.FillPrice)
	assert.True(t, stored.FillPrice.Equal(dec("150")))

	account, err := f.store.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(dec("8499")), "cash %s", account.CashBalance)

	position, err := f.store.GetPosition(context.Background(), f.account.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), position.Quantity)
	assert.True(t, position.AvgCost.Equal(dec("150")))
}

func TestTryFillSellRealizesPnL(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	buy := f.place(t, marketBuy(f.account.ID, "AAPL", 10))
	require.Len(t, f.service.TryFill(context.Background()), 1)
	_ = buy

	f.quotes.prices["AAPL"] = dec("160")
	f.place(t, PlaceRequest{
		AccountID: f.account.ID,
		Symbol:    "AAPL",
		Side:      models.OrderSideSell,
		Kind:      models.OrderKindMarket,
		Quantity:  5,
	})

	fills := f.service.TryFill(context.Background())
	require.Len(t, fills, 1)
	assert.True(t, fills[0].RealizedPnL.Equal(dec("49")), "realized %s", fills[0].RealizedPnL)

	account, err := f.store.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	// 8499 + 799.
	assert.True(t, account.CashBalance.Equal(dec("9298")), "cash %s", account.CashBalance)
	assert.True(t, account.RealizedPnL.Equal(dec("49")))

	transactions, err := f.store.ListTransactions(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.Len(t, transactions, 2)
}

func TestTryFillLimitOrderWaitsForPrice(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	order := f.place(t, PlaceRequest{
		AccountID:  f.account.ID,
		Symbol:     "AAPL",
		Side:       models.OrderSideBuy,
		Kind:       models.OrderKindLimit,
		Quantity:   10,
		LimitPrice: decPtr("140"),
	})

	// Quote above the limit: nothing happens.
	assert.Empty(t, f.service.TryFill(context.Background()))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)

	// Quote crosses the limit: fills at the quote, not the limit.
	f.quotes.prices["AAPL"] = dec("139.50")
	fills := f.service.TryFill(context.Background())
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(dec("139.50")))
}

func TestTryFillStopOrderConvertsToMarket(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	buy := f.place(t, marketBuy(f.account.ID, "AAPL", 10))
	require.Len(t, f.service.TryFill(context.Background()), 1)
	_ = buy

	// Stop-loss below the market.
	f.place(t, PlaceRequest{
		AccountID: f.account.ID,
		Symbol:    "AAPL",
		Side:      models.OrderSideSell,
		Kind:      models.OrderKindStop,
		Quantity:  10,
		StopPrice: decPtr("140"),
	})

	assert.Empty(t, f.service.TryFill(context.Background()), "price above stop")

	// Gap through the stop: fills at the quote price.
	f.quotes.prices["AAPL"] = dec("135")
	fills := f.service.TryFill(context.Background())
	require.Len(t, fills, 1)
	assert.True(t, fills[0].Price.Equal(dec("135")))

	// Position fully closed and pruned.
	_, err := f.store.GetPosition(context.Background(), f.account.ID, "AAPL")
	require.Error(t, err)
}

func TestTryFillWithoutQuoteLeavesOrderPending(t *testing.T) {
	f := newFixture(t, "10000")
	f.quotes.prices["AAPL"] = dec("150")

	order := f.place(t, marketBuy(f.account.ID, "AAPL", 10))

	delete(f.quotes.prices, "AAPL")
	assert.Empty(t, f.service.TryFill(context.Background()))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}

func TestTryFillRejectsWhenPriceGapsPastFunds(t *testing.T) {
	f := newFixture(t, "1050")
	f.quotes.prices["AAPL"] = dec("100")

	// Placement checks cost at the current quote: 10*100+1 fits in 1050.
	order := f.place(t, marketBuy(f.account.ID, "AAPL", 10))

	// The quote gaps up before the next tick; 10*110+1 no longer fits.
	f.quotes.prices["AAPL"] = dec("110")
	assert.Empty(t, f.service.TryFill(context.Background()))

	stored, err := f.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, stored.Status)

	// Cash untouched by the rejection.
	account, err := f.store.GetAccount(context.Background(), f.account.ID)
	require.NoError(t, err)
	assert.True(t, account.CashBalance.Equal(dec("1050")))
}

func TestSymbols(t *testing.T) {
	f := newFixture(t, "100000")
	f.quotes.prices["AAPL"] = dec("150")
	f.quotes.prices["MSFT"] = dec("300")

	f.place(t, marketBuy(f.account.ID, "AAPL", 1))
	f.place(t, marketBuy(f.account.ID, "AAPL", 2))
	f.place(t, marketBuy(f.account.ID, "MSFT", 1))

	symbols, err := f.service.Symbols(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbols)
}
