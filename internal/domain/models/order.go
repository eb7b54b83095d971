package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Order struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	Symbol     string
	Side       OrderSide
	Kind       OrderKind
	Quantity   int64
	LimitPrice *decimal.Decimal
	StopPrice  *decimal.Decimal
	Status     OrderStatus
	CreatedAt  time.Time
	FilledAt   *time.Time
	FillPrice  *decimal.Decimal
}

type OrderSide uint8

const (
	OrderSideUnspecified OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "buy"
	case OrderSideSell:
		return "sell"
	default:
		return "unspecified"
	}
}

type OrderKind uint8

const (
	OrderKindUnspecified OrderKind = iota
	OrderKindMarket
	OrderKindLimit
	OrderKindStop
)

func (k OrderKind) String() string {
	switch k {
	case OrderKindMarket:
		return "market"
	case OrderKindLimit:
		return "limit"
	case OrderKindStop:
		return "stop"
	default:
		return "unspecified"
	}
}

type OrderStatus uint8

const (
	OrderStatusUnspecified OrderStatus = iota
	OrderStatusPending
	OrderStatusFilled
	OrderStatusCancelled
	OrderStatusRejected
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusPending:
		return "pending"
	case OrderStatusFilled:
		return "filled"
	case OrderStatusCancelled:
		return "cancelled"
	case OrderStatusRejected:
		return "rejected"
	default:
		return "unspecified"
	}
}

// IsTerminal reports whether the status permits no further transitions.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// Fill is the result of matching a pending order against a quote.
type Fill struct {
	OrderID     uuid.UUID
	AccountID   uuid.UUID
	Symbol      string
	Side        OrderSide
	Quantity    int64
	Price       decimal.Decimal
	Commission  decimal.Decimal
	RealizedPnL decimal.Decimal
	ExecutedAt  time.Time
}
