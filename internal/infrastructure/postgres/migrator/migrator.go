package migrator

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type Migrator struct {
	db            *sql.DB
	migrationsDir string
}

func NewMigrator(pool *pgxpool.Pool, migrationsDir string) (*Migrator, error) {
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("goose.SetDialect: %w", err)
	}

	return &Migrator{
		db:            stdlib.OpenDBFromPool(pool),
		migrationsDir: migrationsDir,
	}, nil
}

func (migrator *Migrator) Up(ctx context.Context) error {
	err := goose.UpContext(ctx, migrator.db, migrator.migrationsDir)
	if err != nil {
		return err
	}

	return nil
}
