package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/services/alerts"
	"github.com/amarcoder01/market-engine/internal/services/ledger"
	"github.com/amarcoder01/market-engine/internal/services/orderbook"
	"github.com/amarcoder01/market-engine/internal/services/scheduler"
	"github.com/amarcoder01/market-engine/internal/services/stats"
)

type AccountStore interface {
	SaveAccount(ctx context.Context, account models.Account) error
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
	DeleteAccount(ctx context.Context, id uuid.UUID) error
	ListPositions(ctx context.Context, accountID uuid.UUID) ([]models.Position, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error)
	ListPendingOrdersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
}

type HistoryReader interface {
	ListAlertHistory(ctx context.Context, alertID uuid.UUID) ([]models.AlertHistoryEntry, error)
}

// RateLimiter bounds mutating requests per user. A nil limiter allows
// everything (dev mode).
type RateLimiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
}

type Quotes interface {
	Price(ctx context.Context, symbol string) (decimal.Decimal, bool)
}

// Engine is the surface the surrounding application talks to: order and
// alert mutations, stats, scheduler status. It owns no state of its own;
// everything lives in the store and the services it fronts.
type Engine struct {
	store     AccountStore
	history   HistoryReader
	orderbook *orderbook.Service
	alerts    *alerts.Registry
	scheduler *scheduler.Scheduler
	quotes    Quotes
	limiter   RateLimiter

	now func() time.Time
}

func New(
	store AccountStore,
	history HistoryReader,
	book *orderbook.Service,
	registry *alerts.Registry,
	driver *scheduler.Scheduler,
	quotes Quotes,
	limiter RateLimiter,
) *Engine {
	return &Engine{
		store:     store,
		history:   history,
		orderbook: book,
		alerts:    registry,
		scheduler: driver,
		quotes:    quotes,
		limiter:   limiter,
		now:       time.Now,
	}
}

func (e *Engine) CreateAccount(ctx context.Context, userID uuid.UUID, initialBalance decimal.Decimal) (models.Account, error) {
	const op = "engine.CreateAccount"

	if !initialBalance.IsPositive() {
		return models.Account{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidQuantity)
	}

	account := models.Account{
		ID:             uuid.New(),
		UserID:         userID,
		CashBalance:    initialBalance,
		TotalValue:     initialBalance,
		RealizedPnL:    decimal.Zero,
		InitialBalance: initialBalance,
		CreatedAt:      e.now().UTC(),
	}
	if err := e.store.SaveAccount(ctx, account); err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}
	return account, nil
}

// DeleteAccount cancels every open order first; an account is never
// deleted while open orders exist.
func (e *Engine) DeleteAccount(ctx context.Context, accountID uuid.UUID) error {
	const op = "engine.DeleteAccount"

	ctx = logger.ContextWithAccountID(ctx, accountID.String())

	pending, err := e.store.ListPendingOrdersByAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, order := range pending {
		if err := e.orderbook.Cancel(ctx, order.ID); err != nil &&
			!errors.Is(err, serviceErrors.ErrOrderAlreadyTerminal) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := e.store.DeleteAccount(ctx, accountID); err != nil {
		if errors.Is(err, repositoryErrors.ErrAccountNotFound) {
			return fmt.Errorf("%s: %w", op, serviceErrors.ErrAccountNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (e *Engine) PlaceOrder(ctx context.Context, userID uuid.UUID, request orderbook.PlaceRequest) (models.Order, error) {
	const op = "engine.PlaceOrder"

	ctx = logger.ContextWithAccountID(ctx, request.AccountID.String())

	if err := e.checkRateLimit(ctx, userID); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}
	return e.orderbook.Place(ctx, request)
}

func (e *Engine) CancelOrder(ctx context.Context, orderID uuid.UUID) error {
	return e.orderbook.Cancel(ctx, orderID)
}

func (e *Engine) GetOrderStatus(ctx context.Context, orderID uuid.UUID) (models.OrderStatus, error) {
	const op = "engine.GetOrderStatus"

	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrOrderNotFound) {
			return models.OrderStatusUnspecified, fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
		}
		return models.OrderStatusUnspecified, fmt.Errorf("%s: %w", op, err)
	}
	return order.Status, nil
}

func (e *Engine) CreateAlert(ctx context.Context, request alerts.CreateRequest) (models.PriceAlert, error) {
	const op = "engine.CreateAlert"

	if err := e.checkRateLimit(ctx, request.UserID); err != nil {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, err)
	}
	return e.alerts.Create(ctx, request)
}

func (e *Engine) CancelAlert(ctx context.Context, alertID uuid.UUID) error {
	return e.alerts.Cancel(ctx, alertID)
}

func (e *Engine) AlertHistory(ctx context.Context, alertID uuid.UUID) ([]models.AlertHistoryEntry, error) {
	const op = "engine.AlertHistory"

	entries, err := e.history.ListAlertHistory(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return entries, nil
}

// GetStats computes performance metrics from the account's transaction
// history, pricing open positions with the freshest usable quotes.
func (e *Engine) GetStats(ctx context.Context, accountID uuid.UUID) (models.TradingStats, error) {
	const op = "engine.GetStats"

	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrAccountNotFound) {
			return models.TradingStats{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrAccountNotFound)
		}
		return models.TradingStats{}, fmt.Errorf("%s: %w", op, err)
	}

	transactions, err := e.store.ListTransactions(ctx, accountID)
	if err != nil {
		return models.TradingStats{}, fmt.Errorf("%s: %w", op, err)
	}
	positions, err := e.store.ListPositions(ctx, accountID)
	if err != nil {
		return models.TradingStats{}, fmt.Errorf("%s: %w", op, err)
	}

	currentValue := account.CashBalance.Add(ledger.MarketValue(positions, func(symbol string) (decimal.Decimal, bool) {
		return e.quotes.Price(ctx, symbol)
	}))

	return stats.Compute(account, transactions, currentValue), nil
}

func (e *Engine) SchedulerStatus() models.SchedulerStatus {
	return e.scheduler.Status()
}

func (e *Engine) checkRateLimit(ctx context.Context, userID uuid.UUID) error {
	if e.limiter == nil {
		return nil
	}
	allowed, err := e.limiter.Allow(ctx, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return serviceErrors.ErrRateLimitExceeded
	}
	return nil
}
