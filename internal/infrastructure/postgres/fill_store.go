package postgres

import (
	"context"
	"fmt"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	"github.com/amarcoder01/market-engine/internal/infrastructure/postgres/dto"
)

// ApplyFill commits the whole outcome of one execution in a single
// transaction: the order reaches its terminal state, the position is
// replaced or removed, the account balances move and the transaction row
// is appended. Either all of it lands or none of it does.
func (s *Store) ApplyFill(ctx context.Context, application models.FillApplication) error {
	const op = "postgres.Store.ApplyFill"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	orderDTO := dto.OrderFromDomain(application.Order)
	tag, err := tx.Exec(ctx,
		`UPDATE orders
		 SET status = $2, filled_at = $3, fill_price = $4
		 WHERE id = $1 AND status = $5`,
		orderDTO.ID,
		orderDTO.Status,
		orderDTO.FilledAt,
		orderDTO.FillPrice,
		int16(models.OrderStatusPending),
	)
	if err != nil {
		return fmt.Errorf("%s: update order: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrOrderNotPending)
	}

	if application.PositionClosed {
		if _, err = tx.Exec(ctx,
			`DELETE FROM positions WHERE account_id = $1 AND symbol = $2`,
			application.Position.AccountID,
			application.Position.Symbol,
		); err != nil {
			return fmt.Errorf("%s: delete position: %w", op, err)
		}
	} else {
		positionDTO := dto.PositionFromDomain(application.Position)
		if _, err = tx.Exec(ctx,
			`INSERT INTO positions (account_id, symbol, quantity, avg_cost, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (account_id, symbol)
			 DO UPDATE SET quantity = EXCLUDED.quantity, avg_cost = EXCLUDED.avg_cost, updated_at = EXCLUDED.updated_at`,
			positionDTO.AccountID,
			positionDTO.Symbol,
			positionDTO.Quantity,
			positionDTO.AvgCost,
			positionDTO.UpdatedAt,
		); err != nil {
			return fmt.Errorf("%s: upsert position: %w", op, err)
		}
	}

	accountDTO := dto.AccountFromDomain(application.Account)
	tag, err = tx.Exec(ctx,
		`UPDATE accounts
		 SET cash_balance = $2, total_value = $3, realized_pnl = $4
		 WHERE id = $1`,
		accountDTO.ID,
		accountDTO.CashBalance,
		accountDTO.TotalValue,
		accountDTO.RealizedPnL,
	)
	if err != nil {
		return fmt.Errorf("%s: update account: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}

	transactionDTO := dto.TransactionFromDomain(application.Transaction)
	if _, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, account_id, symbol, side, quantity, price, commission, realized_pnl, executed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		transactionDTO.ID,
		transactionDTO.AccountID,
		transactionDTO.Symbol,
		transactionDTO.Side,
		transactionDTO.Quantity,
		transactionDTO.Price,
		transactionDTO.Commission,
		transactionDTO.RealizedPnL,
		transactionDTO.ExecutedAt,
	); err != nil {
		return fmt.Errorf("%s: insert transaction: %w", op, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}
