package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
	"github.com/amarcoder01/market-engine/internal/services/alerts"
	"github.com/amarcoder01/market-engine/internal/services/notify"
	"github.com/amarcoder01/market-engine/internal/services/orderbook"
	"github.com/amarcoder01/market-engine/internal/services/pricecache"
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

// scriptedProvider serves a fixed price per symbol and lets tests move it
// between ticks.
type scriptedProvider struct {
	prices map[string]decimal.Decimal
}

func (s *scriptedProvider) FetchQuotes(_ context.Context, symbols []string) ([]models.Quote, error) {
	out := make([]models.Quote, 0, len(symbols))
	for _, symbol := range symbols {
		price, found := s.prices[symbol]
		if !found {
			continue
		}
		out = append(out, models.Quote{Symbol: symbol, Price: price, FetchedAt: time.Now().UTC()})
	}
	return out, nil
}

type recordingSender struct {
	sent []string
}

func (r *recordingSender) Send(_ context.Context, _, _, message string) error {
	r.sent = append(r.sent, message)
	return nil
}

type recordingPublisher struct {
	fills    []models.Fill
	triggers []models.TriggeredAlert
}

func (r *recordingPublisher) PublishFill(_ context.Context, fill models.Fill) error {
	r.fills = append(r.fills, fill)
	return nil
}

func (r *recordingPublisher) PublishAlertTriggered(_ context.Context, triggered models.TriggeredAlert) error {
	r.triggers = append(r.triggers, triggered)
	return nil
}

type harness struct {
	store     *memory.Store
	provider  *scriptedProvider
	cache     *pricecache.Cache
	book      *orderbook.Service
	registry  *alerts.Registry
	sender    *recordingSender
	publisher *recordingPublisher
	scheduler *Scheduler
	account   models.Account
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	metrics := obs.NewMetrics()
	provider := &scriptedProvider{prices: map[string]decimal.Decimal{}}
	cache := pricecache.New(provider, nil, pricecache.Config{
		BatchSize:  10,
		BatchDelay: time.Nanosecond,
		Staleness:  time.Minute,
	}, metrics)

	book := orderbook.NewService(store, store, store, store, cache, dec("1"), metrics)
	registry := alerts.NewRegistry(store, store, cache, metrics)
	sender := &recordingSender{}
	dispatcher := notify.NewDispatcher(sender, store, 3, metrics)
	publisher := &recordingPublisher{}

	driver := New(cache, book, registry, dispatcher, store, publisher, 10*time.Millisecond, metrics)

	account := models.Account{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		CashBalance:    dec("10000"),
		TotalValue:     dec("10000"),
		InitialBalance: dec("10000"),
		RealizedPnL:    decimal.Zero,
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveAccount(context.Background(), account))

	return &harness{
		store:     store,
		provider:  provider,
		cache:     cache,
		book:      book,
		registry:  registry,
		sender:    sender,
		publisher: publisher,
		scheduler: driver,
		account:   account,
	}
}

func TestRunOnceFillsOrdersAndMarksAccount(t *testing.T) {
	h := newHarness(t)
	h.provider.prices["AAPL"] = dec("150")
	h.cache.Refresh(context.Background(), []string{"AAPL"})

	order, err := h.book.Place(context.Background(), orderbook.PlaceRequest{
		AccountID: h.account.ID,
		Symbol:    "AAPL",
		Side:      models.OrderSideBuy,
		Kind:      models.OrderKindMarket,
		Quantity:  10,
	})
	require.NoError(t, err)

	h.scheduler.RunOnce(context.Background())

	stored, err := h.store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, stored.Status)

	// Re-marked: 8499 cash + 10 shares at 150.
	account, err := h.store.GetAccount(context.Background(), h.account.ID)
	require.NoError(t, err)
	assert.True(t, account.TotalValue.Equal(dec("9999")), "total value %s", account.TotalValue)

	require.Len(t, h.publisher.fills, 1)
	assert.Equal(t, order.ID, h.publisher.fills[0].OrderID)
}

func TestRunOnceTriggersAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.provider.prices["AAPL"] = dec("158")

	alert, err := h.registry.Create(context.Background(), alerts.CreateRequest{
		UserID:      uuid.New(),
		Symbol:      "AAPL",
		TargetPrice: dec("160"),
		Condition:   models.AlertConditionAbove,
		Channel:     "webhook",
		Recipient:   "ops",
	})
	require.NoError(t, err)

	// Below the target: nothing happens.
	h.scheduler.RunOnce(context.Background())
	assert.Empty(t, h.sender.sent)

	// Crosses: one trigger, one notification, one event.
	h.provider.prices["AAPL"] = dec("161")
	h.scheduler.RunOnce(context.Background())
	require.Len(t, h.sender.sent, 1)
	assert.Contains(t, h.sender.sent[0], "AAPL")
	require.Len(t, h.publisher.triggers, 1)
	assert.Equal(t, alert.ID, h.publisher.triggers[0].Alert.ID)

	// Stays above on the next tick: no second notification.
	h.provider.prices["AAPL"] = dec("165")
	h.scheduler.RunOnce(context.Background())
	assert.Len(t, h.sender.sent, 1)
}

func TestRunOnceRefreshesOnlyReferencedSymbols(t *testing.T) {
	h := newHarness(t)
	h.provider.prices["AAPL"] = dec("150")
	h.provider.prices["MSFT"] = dec("300")

	_, err := h.registry.Create(context.Background(), alerts.CreateRequest{
		UserID:      uuid.New(),
		Symbol:      "MSFT",
		TargetPrice: dec("500"),
		Condition:   models.AlertConditionAbove,
	})
	require.NoError(t, err)

	h.scheduler.RunOnce(context.Background())

	// Only MSFT is in the universe; AAPL was never fetched.
	_, found := h.cache.Get(context.Background(), "MSFT")
	assert.True(t, found)
	_, found = h.cache.Get(context.Background(), "AAPL")
	assert.False(t, found)
}

func TestStartStopIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.scheduler.Start(ctx)
	h.scheduler.Start(ctx) // second start is a no-op

	status := h.scheduler.Status()
	assert.True(t, status.Active)
	assert.Equal(t, 10*time.Millisecond, status.Interval)
	assert.False(t, status.NextCheckAt.IsZero())

	h.scheduler.Stop(ctx)
	h.scheduler.Stop(ctx) // second stop is a no-op

	assert.False(t, h.scheduler.Status().Active)
}

func TestLoopTicksUntilStopped(t *testing.T) {
	h := newHarness(t)
	h.provider.prices["AAPL"] = dec("150")

	_, err := h.registry.Create(context.Background(), alerts.CreateRequest{
		UserID:      uuid.New(),
		Symbol:      "AAPL",
		TargetPrice: dec("100"),
		Condition:   models.AlertConditionAbove,
		Channel:     "webhook",
	})
	require.NoError(t, err)

	ctx := context.Background()
	h.scheduler.Start(ctx)
	time.Sleep(30 * time.Millisecond)
	h.scheduler.Stop(ctx)

	// The immediate first tick already triggers the alert.
	assert.Len(t, h.sender.sent, 1)
}
