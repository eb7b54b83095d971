package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
)

// Store is the in-memory persistence backend used by tests and dev mode.
// Every mutation happens under one lock, which makes ApplyFill trivially
// atomic.
type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]models.Account
	orders       map[uuid.UUID]models.Order
	positions    map[string]models.Position
	transactions []models.Transaction
	alerts       map[uuid.UUID]models.PriceAlert
	history      []models.AlertHistoryEntry
}

func NewStore() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]models.Account),
		orders:    make(map[uuid.UUID]models.Order),
		positions: make(map[string]models.Position),
		alerts:    make(map[uuid.UUID]models.PriceAlert),
	}
}

func positionKey(accountID uuid.UUID, symbol string) string {
	return accountID.String() + "|" + symbol
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) SaveAccount(ctx context.Context, account models.Account) error {
	const op = "memory.Store.SaveAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.accounts[account.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountExists)
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	const op = "memory.Store.GetAccount"

	if err := ctx.Err(); err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	account, found := s.accounts[id]
	s.mu.RUnlock()

	if !found {
		return models.Account{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}
	return account, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	const op = "memory.Store.DeleteAccount"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.accounts[id]; !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}
	delete(s.accounts, id)

	for key, position := range s.positions {
		if position.AccountID == id {
			delete(s.positions, key)
		}
	}
	return nil
}

func (s *Store) UpdateAccountValue(ctx context.Context, accountID uuid.UUID, totalValue decimal.Decimal) error {
	const op = "memory.Store.UpdateAccountValue"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, found := s.accounts[accountID]
	if !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}
	account.TotalValue = totalValue
	s.accounts[accountID] = account
	return nil
}

func (s *Store) SaveOrder(ctx context.Context, order models.Order) error {
	const op = "memory.Store.SaveOrder"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.orders[order.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderExists)
	}
	s.orders[order.ID] = order
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "memory.Store.GetOrder"

	if err := ctx.Err(); err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	order, found := s.orders[id]
	s.mu.RUnlock()

	if !found {
		return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}
	return order, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	const op = "memory.Store.UpdateOrderStatus"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, found := s.orders[id]
	if !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotPending)
	}
	order.Status = status
	s.orders[id] = order
	return nil
}

func (s *Store) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	const op = "memory.Store.ListPendingOrders"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.Status == models.OrderStatusPending {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListPendingOrdersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Order, error) {
	const op = "memory.Store.ListPendingOrdersByAccount"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, order := range s.orders {
		if order.AccountID == accountID && order.Status == models.OrderStatusPending {
			out = append(out, order)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (models.Position, error) {
	const op = "memory.Store.GetPosition"

	if err := ctx.Err(); err != nil {
		return models.Position{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	position, found := s.positions[positionKey(accountID, symbol)]
	s.mu.RUnlock()

	if !found {
		return models.Position{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPositionNotFound)
	}
	return position, nil
}

func (s *Store) ListPositions(ctx context.Context, accountID uuid.UUID) ([]models.Position, error) {
	const op = "memory.Store.ListPositions"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Position, 0)
	for _, position := range s.positions {
		if position.AccountID == accountID {
			out = append(out, position)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	const op = "memory.Store.ListTransactions"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Transaction, 0)
	for _, transaction := range s.transactions {
		if transaction.AccountID == accountID {
			out = append(out, transaction)
		}
	}
	return out, nil
}

// ApplyFill writes the order's terminal state, the recomputed position,
// the account balances and the transaction as one unit.
func (s *Store) ApplyFill(ctx context.Context, application models.FillApplication) error {
	const op = "memory.Store.ApplyFill"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	order, found := s.orders[application.Order.ID]
	if !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
	}
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotPending)
	}
	if _, found := s.accounts[application.Account.ID]; !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}

	s.orders[application.Order.ID] = application.Order
	s.accounts[application.Account.ID] = application.Account

	key := positionKey(application.Position.AccountID, application.Position.Symbol)
	if application.PositionClosed {
		delete(s.positions, key)
	} else {
		s.positions[key] = application.Position
	}

	s.transactions = append(s.transactions, application.Transaction)
	return nil
}

func (s *Store) SaveAlert(ctx context.Context, alert models.PriceAlert) error {
	const op = "memory.Store.SaveAlert"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.alerts[alert.ID]; found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertExists)
	}
	s.alerts[alert.ID] = alert
	return nil
}

func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (models.PriceAlert, error) {
	const op = "memory.Store.GetAlert"

	if err := ctx.Err(); err != nil {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	alert, found := s.alerts[id]
	s.mu.RUnlock()

	if !found {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
	}
	return alert, nil
}

func (s *Store) ListActiveAlerts(ctx context.Context) ([]models.PriceAlert, error) {
	const op = "memory.Store.ListActiveAlerts"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.PriceAlert, 0)
	for _, alert := range s.alerts {
		if alert.Status == models.AlertStatusActive {
			out = append(out, alert)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.AlertStatus) error {
	const op = "memory.Store.UpdateAlertStatus"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, found := s.alerts[id]
	if !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
	}
	if alert.Status != models.AlertStatusActive {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotActive)
	}
	alert.Status = status
	s.alerts[id] = alert
	return nil
}

func (s *Store) TouchAlert(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	const op = "memory.Store.TouchAlert"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, found := s.alerts[id]
	if !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
	}
	alert.LastCheckedAt = checkedAt
	s.alerts[id] = alert
	return nil
}

// TriggerAlert is the compare-and-set behind at-most-once triggering: it
// succeeds only while the alert is still active.
func (s *Store) TriggerAlert(ctx context.Context, id uuid.UUID, price decimal.Decimal, triggeredAt time.Time) error {
	const op = "memory.Store.TriggerAlert"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	alert, found := s.alerts[id]
	if !found {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
	}
	if alert.Status != models.AlertStatusActive {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotActive)
	}

	alert.Status = models.AlertStatusTriggered
	alert.TriggeredAt = &triggeredAt
	alert.LastCheckedAt = triggeredAt
	s.alerts[id] = alert
	return nil
}

func (s *Store) SaveAlertHistory(ctx context.Context, entry models.AlertHistoryEntry) error {
	const op = "memory.Store.SaveAlertHistory"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, entry)
	return nil
}

func (s *Store) ListAlertHistory(ctx context.Context, alertID uuid.UUID) ([]models.AlertHistoryEntry, error) {
	const op = "memory.Store.ListAlertHistory"

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.AlertHistoryEntry, 0)
	for _, entry := range s.history {
		if entry.AlertID == alertID {
			out = append(out, entry)
		}
	}
	return out, nil
}
