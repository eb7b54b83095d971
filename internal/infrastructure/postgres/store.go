package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const duplicateKeyCode = "23505"

// Store persists accounts, orders, positions, transactions and alerts in
// one database so a fill can touch all of them inside a single
// transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool: pool,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	const op = "postgres.Store.Ping"

	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func isDuplicateKey(err error) bool {
	var postgresErr *pgconn.PgError

	if errors.As(err, &postgresErr) {
		return postgresErr.Code == duplicateKeyCode
	}

	return false
}
