package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	"github.com/amarcoder01/market-engine/internal/infrastructure/postgres/dto"
)

func (s *Store) SaveAccount(ctx context.Context, account models.Account) error {
	const op = "postgres.Store.SaveAccount"

	accountDTO := dto.AccountFromDomain(account)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (id, user_id, cash_balance, total_value, realized_pnl, initial_balance, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		accountDTO.ID,
		accountDTO.UserID,
		accountDTO.CashBalance,
		accountDTO.TotalValue,
		accountDTO.RealizedPnL,
		accountDTO.InitialBalance,
		accountDTO.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountExists)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (models.Account, error) {
	const op = "postgres.Store.GetAccount"

	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, cash_balance, total_value, realized_pnl, initial_balance, created_at
		 FROM accounts
		 WHERE id = $1
		 LIMIT 1`,
		id,
	)

	if err != nil {
		return models.Account{}, fmt.Errorf("%s: query: %w", op, err)
	}

	accountDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Account])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
		}

		return models.Account{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	account, err := accountDTO.ToDomain()
	if err != nil {
		return models.Account{}, fmt.Errorf("%s: %w", op, err)
	}

	return account, nil
}

func (s *Store) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	const op = "postgres.Store.DeleteAccount"

	// Positions go with the account; orders and transactions stay for the
	// audit trail.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, `DELETE FROM positions WHERE account_id = $1`, id); err != nil {
		return fmt.Errorf("%s: delete positions: %w", op, err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: delete account: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func (s *Store) UpdateAccountValue(ctx context.Context, accountID uuid.UUID, totalValue decimal.Decimal) error {
	const op = "postgres.Store.UpdateAccountValue"

	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET total_value = $2 WHERE id = $1`,
		accountID,
		totalValue.String(),
	)

	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAccountNotFound)
	}

	return nil
}

func (s *Store) GetPosition(ctx context.Context, accountID uuid.UUID, symbol string) (models.Position, error) {
	const op = "postgres.Store.GetPosition"

	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, quantity, avg_cost, updated_at
		 FROM positions
		 WHERE account_id = $1 AND symbol = $2
		 LIMIT 1`,
		accountID,
		symbol,
	)

	if err != nil {
		return models.Position{}, fmt.Errorf("%s: query: %w", op, err)
	}

	positionDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.Position])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Position{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrPositionNotFound)
		}

		return models.Position{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	position, err := positionDTO.ToDomain()
	if err != nil {
		return models.Position{}, fmt.Errorf("%s: %w", op, err)
	}

	return position, nil
}

func (s *Store) ListPositions(ctx context.Context, accountID uuid.UUID) ([]models.Position, error) {
	const op = "postgres.Store.ListPositions"

	rows, err := s.pool.Query(ctx,
		`SELECT account_id, symbol, quantity, avg_cost, updated_at
		 FROM positions
		 WHERE account_id = $1
		 ORDER BY symbol`,
		accountID,
	)

	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	positionDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Position])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	positions := make([]models.Position, 0, len(positionDTOs))
	for _, positionDTO := range positionDTOs {
		position, err := positionDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		positions = append(positions, position)
	}

	return positions, nil
}

func (s *Store) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, error) {
	const op = "postgres.Store.ListTransactions"

	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, symbol, side, quantity, price, commission, realized_pnl, executed_at
		 FROM transactions
		 WHERE account_id = $1
		 ORDER BY executed_at`,
		accountID,
	)

	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	transactionDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.Transaction])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	transactions := make([]models.Transaction, 0, len(transactionDTOs))
	for _, transactionDTO := range transactionDTOs {
		transaction, err := transactionDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		transactions = append(transactions, transaction)
	}

	return transactions, nil
}
