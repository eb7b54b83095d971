package orderbook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
	"github.com/amarcoder01/market-engine/internal/services/ledger"
)

type AccountGetter interface {
	GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error)
}

type OrderStore interface {
	SaveOrder(ctx context.Context, order models.Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error
	ListPendingOrders(ctx context.Context) ([]models.Order, error)
	ListPendingOrdersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Order, error)
}

type PositionGetter interface {
	GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (models.Position, error)
}

// FillApplier persists one fill atomically (order, position, account,
// transaction as a single unit).
type FillApplier interface {
	ApplyFill(ctx context.Context, application models.FillApplication) error
}

// Quotes is the usable-quote view served by the price cache: stale quotes
// are already filtered out.
type Quotes interface {
	Get(ctx context.Context, symbol string) (models.Quote, bool)
}

type PlaceRequest struct {
	AccountID  uuid.UUID
	Symbol     string
	Side       models.OrderSide
	Kind       models.OrderKind
	Quantity   int64
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
}

// Service holds pending orders per account and matches them against cache
// ticks. All per-account mutations go through one keyed mutex.
type Service struct {
	accounts   AccountGetter
	orders     OrderStore
	positions  PositionGetter
	fills      FillApplier
	quotes     Quotes
	commission decimal.Decimal
	locks      *accountLocks
	metrics    *obs.Metrics

	now func() time.Time
}

func NewService(
	accounts AccountGetter,
	orders OrderStore,
	positions PositionGetter,
	fills FillApplier,
	quotes Quotes,
	commission decimal.Decimal,
	metrics *obs.Metrics,
) *Service {
	return &Service{
		accounts:   accounts,
		orders:     orders,
		positions:  positions,
		fills:      fills,
		quotes:     quotes,
		commission: commission,
		locks:      newAccountLocks(),
		metrics:    metrics,
		now:        time.Now,
	}
}

// Place validates and persists a pending order. Buys are checked against
// available cash (worst-case cost of this and the account's other pending
// buys); sells against the held quantity net of pending sells.
func (s *Service) Place(ctx context.Context, request PlaceRequest) (models.Order, error) {
	const op = "orderbook.Service.Place"

	if err := validateShape(request); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	unlock := s.locks.Lock(request.AccountID)
	defer unlock()

	account, err := s.accounts.GetAccount(ctx, request.AccountID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrAccountNotFound) {
			return models.Order{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrAccountNotFound)
		}
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	switch request.Side {
	case models.OrderSideBuy:
		// Only buys need a price estimate; a market sell with no usable
		// quote simply rests pending until the next tick brings one.
		estimate, err := s.estimatePrice(ctx, request)
		if err != nil {
			return models.Order{}, fmt.Errorf("%s: %w", op, err)
		}
		if err := s.checkBuyingPower(ctx, account, request, estimate); err != nil {
			return models.Order{}, fmt.Errorf("%s: %w", op, err)
		}
	case models.OrderSideSell:
		if err := s.checkSellablePosition(ctx, request); err != nil {
			return models.Order{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	order := models.Order{
		ID:         uuid.New(),
		AccountID:  request.AccountID,
		Symbol:     normalizeSymbol(request.Symbol),
		Side:       request.Side,
		Kind:       request.Kind,
		Quantity:   request.Quantity,
		LimitPrice: request.LimitPrice,
		StopPrice:  request.StopPrice,
		Status:     models.OrderStatusPending,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.orders.SaveOrder(ctx, order); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	return order, nil
}

// Cancel re-checks the order status under the account lock so a cancel
// losing the race against a fill fails with ErrOrderAlreadyTerminal instead
// of clobbering the fill.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID) error {
	const op = "orderbook.Service.Cancel"

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrOrderNotFound) {
			return fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	unlock := s.locks.Lock(order.AccountID)
	defer unlock()

	order, err = s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if order.Status.IsTerminal() {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrOrderAlreadyTerminal)
	}

	if err := s.orders.UpdateOrderStatus(ctx, orderID, models.OrderStatusCancelled); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// TryFill matches every pending order against the current usable quotes.
// Orders without a usable quote stay pending for the next tick. Per-order
// failures are isolated: they are logged and the pass continues.
func (s *Service) TryFill(ctx context.Context) []models.Fill {
	const op = "orderbook.Service.TryFill"

	pending, err := s.orders.ListPendingOrders(ctx)
	if err != nil {
		logger.Error(ctx, "listing pending orders failed", zap.String("op", op), zap.Error(err))
		return nil
	}

	byAccount := make(map[uuid.UUID][]models.Order)
	for _, order := range pending {
		byAccount[order.AccountID] = append(byAccount[order.AccountID], order)
	}

	var fills []models.Fill
	for accountID, orders := range byAccount {
		fills = append(fills, s.fillAccountOrders(ctx, accountID, orders)...)
	}
	return fills
}

// Symbols returns the distinct symbols with at least one pending order.
func (s *Service) Symbols(ctx context.Context) ([]string, error) {
	const op = "orderbook.Service.Symbols"

	pending, err := s.orders.ListPendingOrders(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[string]bool, len(pending))
	out := make([]string, 0, len(pending))
	for _, order := range pending {
		if !seen[order.Symbol] {
			seen[order.Symbol] = true
			out = append(out, order.Symbol)
		}
	}
	return out, nil
}

func (s *Service) fillAccountOrders(ctx context.Context, accountID uuid.UUID, orders []models.Order) []models.Fill {
	ctx = logger.ContextWithAccountID(ctx, accountID.String())

	unlock := s.locks.Lock(accountID)
	defer unlock()

	var fills []models.Fill
	for _, stale := range orders {
		// Reload under the lock: a user cancel may have won since listing.
		order, err := s.orders.GetOrder(ctx, stale.ID)
		if err != nil || order.Status != models.OrderStatusPending {
			continue
		}

		quote, found := s.quotes.Get(ctx, order.Symbol)
		if !found {
			s.metrics.StaleSkips.Inc()
			continue
		}

		matched, price := match(order, quote)
		if !matched {
			continue
		}

		fill, filled := s.executeFill(ctx, order, price)
		if filled {
			fills = append(fills, fill)
		}
	}
	return fills
}

// match decides whether order executes against quote and at what price.
// Stop orders convert to market on trigger: they fill at the quote price.
func match(order models.Order, quote models.Quote) (bool, decimal.Decimal) {
	switch order.Kind {
	case models.OrderKindMarket:
		return true, quote.Price

	case models.OrderKindLimit:
		if order.LimitPrice == nil {
			return false, decimal.Decimal{}
		}
		if order.Side == models.OrderSideBuy && quote.Price.LessThanOrEqual(*order.LimitPrice) {
			return true, quote.Price
		}
		if order.Side == models.OrderSideSell && quote.Price.GreaterThanOrEqual(*order.LimitPrice) {
			return true, quote.Price
		}

	case models.OrderKindStop:
		if order.StopPrice == nil {
			return false, decimal.Decimal{}
		}
		if order.Side == models.OrderSideBuy && quote.Price.GreaterThanOrEqual(*order.StopPrice) {
			return true, quote.Price
		}
		if order.Side == models.OrderSideSell && quote.Price.LessThanOrEqual(*order.StopPrice) {
			return true, quote.Price
		}
	}
	return false, decimal.Decimal{}
}

func (s *Service) executeFill(ctx context.Context, order models.Order, price decimal.Decimal) (models.Fill, bool) {
	account, err := s.accounts.GetAccount(ctx, order.AccountID)
	if err != nil {
		logger.Error(ctx, "account load failed during fill", zap.String("order_id", order.ID.String()), zap.Error(err))
		return models.Fill{}, false
	}

	position := s.positionOrEmpty(ctx, order.AccountID, order.Symbol)

	if order.Side == models.OrderSideBuy {
		cost := price.Mul(decimal.NewFromInt(order.Quantity)).Add(s.commission)
		if account.CashBalance.LessThan(cost) {
			s.reject(ctx, order, "insufficient funds at fill price")
			return models.Fill{}, false
		}
	}

	executedAt := s.now().UTC()
	application, err := ledger.Apply(position, order.Side, order.Quantity, price, s.commission, executedAt)
	if err != nil {
		s.reject(ctx, order, err.Error())
		return models.Fill{}, false
	}

	order.Status = models.OrderStatusFilled
	order.FilledAt = &executedAt
	order.FillPrice = &price

	account.CashBalance = account.CashBalance.Add(application.CashDelta)
	account.RealizedPnL = account.RealizedPnL.Add(application.RealizedPnL)

	transaction := models.Transaction{
		ID:          uuid.New(),
		AccountID:   order.AccountID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       price,
		Commission:  s.commission,
		RealizedPnL: application.RealizedPnL,
		ExecutedAt:  executedAt,
	}

	unit := models.FillApplication{
		Order:          order,
		Position:       application.Position,
		PositionClosed: application.Position.Closed(),
		Account:        account,
		Transaction:    transaction,
	}

	if err := s.fills.ApplyFill(ctx, unit); err != nil {
		// The write failed as a unit; the order stays pending in the store
		// and nothing is cached in memory, so the next tick retries cleanly.
		logger.Error(ctx, "fill persistence failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return models.Fill{}, false
	}

	s.metrics.OrdersFilled.Inc()
	logger.Info(ctx, "order filled",
		zap.String("order_id", order.ID.String()),
		zap.String("symbol", order.Symbol),
		zap.String("side", order.Side.String()),
		zap.Int64("quantity", order.Quantity),
		zap.String("price", price.String()),
	)

	return models.Fill{
		OrderID:     order.ID,
		AccountID:   order.AccountID,
		Symbol:      order.Symbol,
		Side:        order.Side,
		Quantity:    order.Quantity,
		Price:       price,
		Commission:  s.commission,
		RealizedPnL: application.RealizedPnL,
		ExecutedAt:  executedAt,
	}, true
}

func (s *Service) reject(ctx context.Context, order models.Order, reason string) {
	if err := s.orders.UpdateOrderStatus(ctx, order.ID, models.OrderStatusRejected); err != nil {
		logger.Error(ctx, "order reject persistence failed", zap.String("order_id", order.ID.String()), zap.Error(err))
		return
	}
	s.metrics.OrdersRejected.Inc()
	logger.Warn(ctx, "order rejected at fill time",
		zap.String("order_id", order.ID.String()),
		zap.String("reason", reason),
	)
}

func (s *Service) positionOrEmpty(ctx context.Context, accountID uuid.UUID, symbol string) models.Position {
	position, err := s.positions.GetPosition(ctx, accountID, symbol)
	if err != nil {
		return models.Position{AccountID: accountID, Symbol: symbol, AvgCost: decimal.Zero}
	}
	return position
}

// estimatePrice yields the worst-case execution price used for buy-side
// cash validation: the limit/stop price when present, otherwise the current
// usable quote. A market buy with no usable quote cannot be cost-checked.
func (s *Service) estimatePrice(ctx context.Context, request PlaceRequest) (decimal.Decimal, error) {
	switch request.Kind {
	case models.OrderKindLimit:
		return *request.LimitPrice, nil
	case models.OrderKindStop:
		return *request.StopPrice, nil
	default:
		quote, found := s.quotes.Get(ctx, request.Symbol)
		if !found {
			return decimal.Decimal{}, serviceErrors.ErrQuoteUnavailable
		}
		return quote.Price, nil
	}
}

func (s *Service) checkBuyingPower(ctx context.Context, account models.Account, request PlaceRequest, estimate decimal.Decimal) error {
	reserved, err := s.reservedCash(ctx, request.AccountID)
	if err != nil {
		return err
	}

	cost := estimate.Mul(decimal.NewFromInt(request.Quantity)).Add(s.commission)
	available := account.CashBalance.Sub(reserved)
	if cost.GreaterThan(available) {
		return serviceErrors.ErrInsufficientFunds
	}
	return nil
}

// reservedCash sums the worst-case cost of the account's pending buy
// orders. Market orders without a usable quote reserve nothing; they are
// re-checked at fill time anyway.
func (s *Service) reservedCash(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	pending, err := s.orders.ListPendingOrdersByAccount(ctx, accountID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	reserved := decimal.Zero
	for _, order := range pending {
		if order.Side != models.OrderSideBuy {
			continue
		}

		var price decimal.Decimal
		switch {
		case order.LimitPrice != nil:
			price = *order.LimitPrice
		case order.StopPrice != nil:
			price = *order.StopPrice
		default:
			quote, found := s.quotes.Get(ctx, order.Symbol)
			if !found {
				continue
			}
			price = quote.Price
		}
		reserved = reserved.Add(price.Mul(decimal.NewFromInt(order.Quantity)).Add(s.commission))
	}
	return reserved, nil
}

func (s *Service) checkSellablePosition(ctx context.Context, request PlaceRequest) error {
	position := s.positionOrEmpty(ctx, request.AccountID, normalizeSymbol(request.Symbol))

	pending, err := s.orders.ListPendingOrdersByAccount(ctx, request.AccountID)
	if err != nil {
		return err
	}

	var reserved int64
	for _, order := range pending {
		if order.Side == models.OrderSideSell && order.Symbol == normalizeSymbol(request.Symbol) {
			reserved += order.Quantity
		}
	}

	if request.Quantity > position.Quantity-reserved {
		return serviceErrors.ErrInsufficientPosition
	}
	return nil
}

func validateShape(request PlaceRequest) error {
	if request.Quantity <= 0 {
		return serviceErrors.ErrInvalidQuantity
	}
	if normalizeSymbol(request.Symbol) == "" {
		return serviceErrors.ErrUnknownSymbol
	}

	switch request.Side {
	case models.OrderSideBuy, models.OrderSideSell:
	default:
		return serviceErrors.ErrUnknownOrderSide
	}

	switch request.Kind {
	case models.OrderKindMarket:
	case models.OrderKindLimit:
		if request.LimitPrice == nil || !request.LimitPrice.IsPositive() {
			return serviceErrors.ErrMissingLimitPrice
		}
	case models.OrderKindStop:
		if request.StopPrice == nil || !request.StopPrice.IsPositive() {
			return serviceErrors.ErrMissingStopPrice
		}
	default:
		return serviceErrors.ErrUnknownOrderKind
	}
	return nil
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
