package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	"github.com/amarcoder01/market-engine/internal/infrastructure/postgres/dto"
)

const orderColumns = `id, account_id, symbol, side, kind, quantity, limit_price, stop_price, status, created_at, filled_at, fill_price`

func (s *Store) SaveOrder(ctx context.Context, order models.Order) error {
	const op = "postgres.Store.SaveOrder"

	orderDTO := dto.OrderFromDomain(order)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		orderDTO.ID,
		orderDTO.AccountID,
		orderDTO.Symbol,
		orderDTO.Side,
		orderDTO.Kind,
		orderDTO.Quantity,
		orderDTO.LimitPrice,
		orderDTO.StopPrice,
		orderDTO.Status,
		orderDTO.CreatedAt,
		orderDTO.FilledAt,
		orderDTO.FillPrice,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderExists)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (models.Order, error) {
	const op = "postgres.Store.GetOrder"

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE id = $1
		 LIMIT 1`,
		id,
	)

	if err != nil {
		return models.Order{}, fmt.Errorf("%s: query: %w", op, err)
	}

	orderDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Order])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Order{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
		}

		return models.Order{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	order, err := orderDTO.ToDomain()
	if err != nil {
		return models.Order{}, fmt.Errorf("%s: %w", op, err)
	}

	return order, nil
}

// UpdateOrderStatus moves a pending order to a terminal status. Updating a
// non-pending order reports ErrOrderNotPending so callers can detect lost
// races.
func (s *Store) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status models.OrderStatus) error {
	const op = "postgres.Store.UpdateOrderStatus"

	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
		id,
		int16(status),
		int16(models.OrderStatusPending),
	)

	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.GetOrder(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotFound)
		}

		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotPending)
	}

	return nil
}

func (s *Store) ListPendingOrders(ctx context.Context) ([]models.Order, error) {
	const op = "postgres.Store.ListPendingOrders"

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1
		 ORDER BY created_at`,
		int16(models.OrderStatusPending),
	)

	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	return collectOrders(op, rows)
}

func (s *Store) ListPendingOrdersByAccount(ctx context.Context, accountID uuid.UUID) ([]models.Order, error) {
	const op = "postgres.Store.ListPendingOrdersByAccount"

	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE account_id = $1 AND status = $2
		 ORDER BY created_at`,
		accountID,
		int16(models.OrderStatusPending),
	)

	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	return collectOrders(op, rows)
}

func collectOrders(op string, rows pgx.Rows) ([]models.Order, error) {
	orderDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Order])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	orders := make([]models.Order, 0, len(orderDTOs))
	for _, orderDTO := range orderDTOs {
		order, err := orderDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}
