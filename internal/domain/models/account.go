package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	CashBalance    decimal.Decimal
	TotalValue     decimal.Decimal
	RealizedPnL    decimal.Decimal
	InitialBalance decimal.Decimal
	CreatedAt      time.Time
}

type Position struct {
	AccountID uuid.UUID
	Symbol    string
	Quantity  int64
	AvgCost   decimal.Decimal
	UpdatedAt time.Time
}

// Closed reports whether the position carries no quantity anymore.
func (p Position) Closed() bool {
	return p.Quantity == 0
}

// Transaction is the immutable record of a single fill.
type Transaction struct {
	ID          uuid.UUID
	AccountID   uuid.UUID
	Symbol      string
	Side        OrderSide
	Quantity    int64
	Price       decimal.Decimal
	Commission  decimal.Decimal
	RealizedPnL decimal.Decimal
	ExecutedAt  time.Time
}
