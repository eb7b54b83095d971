package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
)

type Order struct {
	ID         uuid.UUID  `db:"id"`
	AccountID  uuid.UUID  `db:"account_id"`
	Symbol     string     `db:"symbol"`
	Side       int16      `db:"side"`
	Kind       int16      `db:"kind"`
	Quantity   int64      `db:"quantity"`
	LimitPrice *string    `db:"limit_price"`
	StopPrice  *string    `db:"stop_price"`
	Status     int16      `db:"status"`
	CreatedAt  time.Time  `db:"created_at"`
	FilledAt   *time.Time `db:"filled_at"`
	FillPrice  *string    `db:"fill_price"`
}

func parseOptional(value *string, name string) (*decimal.Decimal, error) {
	if value == nil {
		return nil, nil
	}

	parsed, err := decimal.NewFromString(*value)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	return &parsed, nil
}

func optionalString(value *decimal.Decimal) *string {
	if value == nil {
		return nil
	}

	s := value.String()
	return &s
}

func (o Order) ToDomain() (models.Order, error) {
	limitPrice, err := parseOptional(o.LimitPrice, "limit price")
	if err != nil {
		return models.Order{}, err
	}

	stopPrice, err := parseOptional(o.StopPrice, "stop price")
	if err != nil {
		return models.Order{}, err
	}

	fillPrice, err := parseOptional(o.FillPrice, "fill price")
	if err != nil {
		return models.Order{}, err
	}

	return models.Order{
		ID:         o.ID,
		AccountID:  o.AccountID,
		Symbol:     o.Symbol,
		Side:       models.OrderSide(o.Side),
		Kind:       models.OrderKind(o.Kind),
		Quantity:   o.Quantity,
		LimitPrice: limitPrice,
		StopPrice:  stopPrice,
		Status:     models.OrderStatus(o.Status),
		CreatedAt:  o.CreatedAt,
		FilledAt:   o.FilledAt,
		FillPrice:  fillPrice,
	}, nil
}

func OrderFromDomain(order models.Order) Order {
	return Order{
		ID:         order.ID,
		AccountID:  order.AccountID,
		Symbol:     order.Symbol,
		Side:       int16(order.Side),
		Kind:       int16(order.Kind),
		Quantity:   order.Quantity,
		LimitPrice: optionalString(order.LimitPrice),
		StopPrice:  optionalString(order.StopPrice),
		Status:     int16(order.Status),
		CreatedAt:  order.CreatedAt,
		FilledAt:   order.FilledAt,
		FillPrice:  optionalString(order.FillPrice),
	}
}
