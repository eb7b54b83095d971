package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
)

func testAccount() models.Account {
	return models.Account{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		CashBalance:    decimal.NewFromInt(10000),
		TotalValue:     decimal.NewFromInt(10000),
		InitialBalance: decimal.NewFromInt(10000),
		RealizedPnL:    decimal.Zero,
		CreatedAt:      time.Now().UTC(),
	}
}

func testOrder(accountID uuid.UUID) models.Order {
	return models.Order{
		ID:        uuid.New(),
		AccountID: accountID,
		Symbol:    "AAPL",
		Side:      models.OrderSideBuy,
		Kind:      models.OrderKindMarket,
		Quantity:  10,
		Status:    models.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func testAlert() models.PriceAlert {
	return models.PriceAlert{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Symbol:      "AAPL",
		TargetPrice: decimal.NewFromInt(160),
		Condition:   models.AlertConditionAbove,
		Status:      models.AlertStatusActive,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSaveAccountRejectsDuplicate(t *testing.T) {
	store := NewStore()
	account := testAccount()

	require.NoError(t, store.SaveAccount(context.Background(), account))
	err := store.SaveAccount(context.Background(), account)
	assert.ErrorIs(t, err, repositoryErrors.ErrAccountExists)
}

func TestDeleteAccountRemovesPositions(t *testing.T) {
	store := NewStore()
	account := testAccount()
	require.NoError(t, store.SaveAccount(context.Background(), account))

	order := testOrder(account.ID)
	require.NoError(t, store.SaveOrder(context.Background(), order))
	require.NoError(t, store.ApplyFill(context.Background(), fillFor(order, account)))

	require.NoError(t, store.DeleteAccount(context.Background(), account.ID))

	_, err := store.GetAccount(context.Background(), account.ID)
	assert.ErrorIs(t, err, repositoryErrors.ErrAccountNotFound)
	_, err = store.GetPosition(context.Background(), account.ID, "AAPL")
	assert.ErrorIs(t, err, repositoryErrors.ErrPositionNotFound)

	// The fill stays visible for auditing.
	transactions, err := store.ListTransactions(context.Background(), account.ID)
	require.NoError(t, err)
	assert.Len(t, transactions, 1)
}

func TestDeleteAccountUnknown(t *testing.T) {
	store := NewStore()
	err := store.DeleteAccount(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositoryErrors.ErrAccountNotFound)
}

func TestUpdateOrderStatusRequiresPending(t *testing.T) {
	store := NewStore()
	account := testAccount()
	require.NoError(t, store.SaveAccount(context.Background(), account))

	order := testOrder(account.ID)
	require.NoError(t, store.SaveOrder(context.Background(), order))

	require.NoError(t, store.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusCancelled))
	err := store.UpdateOrderStatus(context.Background(), order.ID, models.OrderStatusRejected)
	assert.ErrorIs(t, err, repositoryErrors.ErrOrderNotPending)
}

func TestListPendingOrdersSortedByCreation(t *testing.T) {
	store := NewStore()
	account := testAccount()
	require.NoError(t, store.SaveAccount(context.Background(), account))

	older := testOrder(account.ID)
	older.CreatedAt = time.Now().UTC().Add(-time.Minute)
	newer := testOrder(account.ID)
	filled := testOrder(account.ID)
	filled.Status = models.OrderStatusFilled

	require.NoError(t, store.SaveOrder(context.Background(), newer))
	require.NoError(t, store.SaveOrder(context.Background(), older))
	require.NoError(t, store.SaveOrder(context.Background(), filled))

	pending, err := store.ListPendingOrders(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, older.ID, pending[0].ID)
	assert.Equal(t, newer.ID, pending[1].ID)
}

// fillFor builds a buy fill of the full order quantity at 150.
func fillFor(order models.Order, account models.Account) models.FillApplication {
	price := decimal.NewFromInt(150)
	now := time.Now().UTC()
	cost := price.Mul(decimal.NewFromInt(order.Quantity))

	order.Status = models.OrderStatusFilled
	order.FilledAt = &now
	order.FillPrice = &price
	account.CashBalance = account.CashBalance.Sub(cost)

	return models.FillApplication{
		Order: order,
		Position: models.Position{
			AccountID: account.ID,
			Symbol:    order.Symbol,
			Quantity:  order.Quantity,
			AvgCost:   price,
			UpdatedAt: now,
		},
		Account: account,
		Transaction: models.Transaction{
			ID:         uuid.New(),
			AccountID:  account.ID,
			Symbol:     order.Symbol,
			Side:       order.Side,
			Quantity:   order.Quantity,
			Price:      price,
			ExecutedAt: now,
		},
	}
}

func TestApplyFillWritesAllRecords(t *testing.T) {
	store := NewStore()
	account := testAccount()
	require.NoError(t, store.SaveAccount(context.Background(), account))

	order := testOrder(account.ID)
	require.NoError(t, store.SaveOrder(context.Background(), order))
	require.NoError(t, store.ApplyFill(context.Background(), fillFor(order, account)))

	stored, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, stored.Status)

	position, err := store.GetPosition(context.Background(), account.ID, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(10), position.Quantity)

	updated, err := store.GetAccount(context.Background(), account.ID)
	require.NoError(t, err)
	assert.True(t, updated.CashBalance.Equal(decimal.NewFromInt(8500)))
}

func TestApplyFillRequiresPendingOrder(t *testing.T) {
	store := NewStore()
	account := testAccount()
	require.NoError(t, store.SaveAccount(context.Background(), account))

	order := testOrder(account.ID)
	require.NoError(t, store.SaveOrder(context.Background(), order))
	require.NoError(t, store.ApplyFill(context.Background(), fillFor(order, account)))

	err := store.ApplyFill(context.Background(), fillFor(order, account))
	assert.ErrorIs(t, err, repositoryErrors.ErrOrderNotPending)
}

func TestApplyFillRequiresAccount(t *testing.T) {
	store := NewStore()
	account := testAccount()
	order := testOrder(account.ID)
	require.NoError(t, store.SaveOrder(context.Background(), order))

	err := store.ApplyFill(context.Background(), fillFor(order, account))
	assert.ErrorIs(t, err, repositoryErrors.ErrAccountNotFound)
}

func TestApplyFillPrunesClosedPosition(t *testing.T) {
	store := NewStore()
	account := testAccount()
	require.NoError(t, store.SaveAccount(context.Background(), account))

	order := testOrder(account.ID)
	require.NoError(t, store.SaveOrder(context.Background(), order))
	require.NoError(t, store.ApplyFill(context.Background(), fillFor(order, account)))

	sell := testOrder(account.ID)
	sell.Side = models.OrderSideSell
	require.NoError(t, store.SaveOrder(context.Background(), sell))

	closing := fillFor(sell, account)
	closing.Position.Quantity = 0
	closing.PositionClosed = true
	require.NoError(t, store.ApplyFill(context.Background(), closing))

	_, err := store.GetPosition(context.Background(), account.ID, "AAPL")
	assert.ErrorIs(t, err, repositoryErrors.ErrPositionNotFound)
}

func TestTriggerAlertIsCompareAndSet(t *testing.T) {
	store := NewStore()
	alert := testAlert()
	require.NoError(t, store.SaveAlert(context.Background(), alert))

	triggeredAt := time.Now().UTC()
	price := decimal.NewFromInt(161)
	require.NoError(t, store.TriggerAlert(context.Background(), alert.ID, price, triggeredAt))

	stored, err := store.GetAlert(context.Background(), alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusTriggered, stored.Status)
	require.NotNil(t, stored.TriggeredAt)
	assert.Equal(t, triggeredAt, *stored.TriggeredAt)

	// Second attempt loses the race.
	err = store.TriggerAlert(context.Background(), alert.ID, price, triggeredAt)
	assert.ErrorIs(t, err, repositoryErrors.ErrAlertNotActive)
}

func TestUpdateAlertStatusRequiresActive(t *testing.T) {
	store := NewStore()
	alert := testAlert()
	require.NoError(t, store.SaveAlert(context.Background(), alert))

	require.NoError(t, store.UpdateAlertStatus(context.Background(), alert.ID, models.AlertStatusCancelled))
	err := store.UpdateAlertStatus(context.Background(), alert.ID, models.AlertStatusCancelled)
	assert.ErrorIs(t, err, repositoryErrors.ErrAlertNotActive)
}

func TestListActiveAlertsFiltersTerminal(t *testing.T) {
	store := NewStore()
	active := testAlert()
	cancelled := testAlert()
	require.NoError(t, store.SaveAlert(context.Background(), active))
	require.NoError(t, store.SaveAlert(context.Background(), cancelled))
	require.NoError(t, store.UpdateAlertStatus(context.Background(), cancelled.ID, models.AlertStatusCancelled))

	alerts, err := store.ListActiveAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, active.ID, alerts[0].ID)
}

func TestCancelledContextFailsFast(t *testing.T) {
	store := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.SaveAccount(ctx, testAccount())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = store.ListPendingOrders(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
