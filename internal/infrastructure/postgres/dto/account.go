package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
)

type Account struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	CashBalance    string    `db:"cash_balance"`
	TotalValue     string    `db:"total_value"`
	RealizedPnL    string    `db:"realized_pnl"`
	InitialBalance string    `db:"initial_balance"`
	CreatedAt      time.Time `db:"created_at"`
}

func (a Account) ToDomain() (models.Account, error) {
	cashBalance, err := decimal.NewFromString(a.CashBalance)
	if err != nil {
		return models.Account{}, fmt.Errorf("parse cash balance: %w", err)
	}

	totalValue, err := decimal.NewFromString(a.TotalValue)
	if err != nil {
		return models.Account{}, fmt.Errorf("parse total value: %w", err)
	}

	realizedPnL, err := decimal.NewFromString(a.RealizedPnL)
	if err != nil {
		return models.Account{}, fmt.Errorf("parse realized pnl: %w", err)
	}

	initialBalance, err := decimal.NewFromString(a.InitialBalance)
	if err != nil {
		return models.Account{}, fmt.Errorf("parse initial balance: %w", err)
	}

	return models.Account{
		ID:             a.ID,
		UserID:         a.UserID,
		CashBalance:    cashBalance,
		TotalValue:     totalValue,
		RealizedPnL:    realizedPnL,
		InitialBalance: initialBalance,
		CreatedAt:      a.CreatedAt,
	}, nil
}

func AccountFromDomain(account models.Account) Account {
	return Account{
		ID:             account.ID,
		UserID:         account.UserID,
		CashBalance:    account.CashBalance.String(),
		TotalValue:     account.TotalValue.String(),
		RealizedPnL:    account.RealizedPnL.String(),
		InitialBalance: account.InitialBalance.String(),
		CreatedAt:      account.CreatedAt,
	}
}

type Position struct {
	AccountID uuid.UUID `db:"account_id"`
	Symbol    string    `db:"symbol"`
	Quantity  int64     `db:"quantity"`
	AvgCost   string    `db:"avg_cost"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (p Position) ToDomain() (models.Position, error) {
	avgCost, err := decimal.NewFromString(p.AvgCost)
	if err != nil {
		return models.Position{}, fmt.Errorf("parse avg cost: %w", err)
	}

	return models.Position{
		AccountID: p.AccountID,
		Symbol:    p.Symbol,
		Quantity:  p.Quantity,
		AvgCost:   avgCost,
		UpdatedAt: p.UpdatedAt,
	}, nil
}

func PositionFromDomain(position models.Position) Position {
	return Position{
		AccountID: position.AccountID,
		Symbol:    position.Symbol,
		Quantity:  position.Quantity,
		AvgCost:   position.AvgCost.String(),
		UpdatedAt: position.UpdatedAt,
	}
}

type Transaction struct {
	ID          uuid.UUID `db:"id"`
	AccountID   uuid.UUID `db:"account_id"`
	Symbol      string    `db:"symbol"`
	Side        int16     `db:"side"`
	Quantity    int64     `db:"quantity"`
	Price       string    `db:"price"`
	Commission  string    `db:"commission"`
	RealizedPnL string    `db:"realized_pnl"`
	ExecutedAt  time.Time `db:"executed_at"`
}

func (t Transaction) ToDomain() (models.Transaction, error) {
	price, err := decimal.NewFromString(t.Price)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("parse price: %w", err)
	}

	commission, err := decimal.NewFromString(t.Commission)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("parse commission: %w", err)
	}

	realizedPnL, err := decimal.NewFromString(t.RealizedPnL)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("parse realized pnl: %w", err)
	}

	return models.Transaction{
		ID:          t.ID,
		AccountID:   t.AccountID,
		Symbol:      t.Symbol,
		Side:        models.OrderSide(t.Side),
		Quantity:    t.Quantity,
		Price:       price,
		Commission:  commission,
		RealizedPnL: realizedPnL,
		ExecutedAt:  t.ExecutedAt,
	}, nil
}

func TransactionFromDomain(transaction models.Transaction) Transaction {
	return Transaction{
		ID:          transaction.ID,
		AccountID:   transaction.AccountID,
		Symbol:      transaction.Symbol,
		Side:        int16(transaction.Side),
		Quantity:    transaction.Quantity,
		Price:       transaction.Price.String(),
		Commission:  transaction.Commission.String(),
		RealizedPnL: transaction.RealizedPnL.String(),
		ExecutedAt:  transaction.ExecutedAt,
	}
}
