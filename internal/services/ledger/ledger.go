package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
)

// Application is the outcome of applying one fill to a position: the new
// position, the signed cash movement (commission included) and the realized
// P&L locked in by the fill. All values are exact decimals.
type Application struct {
	Position    models.Position
	CashDelta   decimal.Decimal
	RealizedPnL decimal.Decimal
}

// Apply recomputes a position for a fill. Buys re-weight the average cost;
// sells keep it and realize (price - avgCost) * qty - commission. The caller
// must hold the account lock: quantity and average cost change atomically
// for the (account, symbol) pair.
func Apply(position models.Position, side models.OrderSide, quantity int64, price, commission decimal.Decimal, at time.Time) (Application, error) {
	const op = "ledger.Apply"

	if quantity <= 0 {
		return Application{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidQuantity)
	}

	qty := decimal.NewFromInt(quantity)
	gross := price.Mul(qty)

	switch side {
	case models.OrderSideBuy:
		newQuantity := position.Quantity + quantity
		oldCost := position.AvgCost.Mul(decimal.NewFromInt(position.Quantity))
		avgCost := oldCost.Add(gross).Div(decimal.NewFromInt(newQuantity))

		return Application{
			Position: models.Position{
				AccountID: position.AccountID,
				Symbol:    position.Symbol,
				Quantity:  newQuantity,
				AvgCost:   avgCost,
				UpdatedAt: at,
			},
			CashDelta:   gross.Add(commission).Neg(),
			RealizedPnL: decimal.Zero,
		}, nil

	case models.OrderSideSell:
		if quantity > position.Quantity {
			return Application{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrInsufficientPosition)
		}

		realized := price.Sub(position.AvgCost).Mul(qty).Sub(commission)

		return Application{
			Position: models.Position{
				AccountID: position.AccountID,
				Symbol:    position.Symbol,
				Quantity:  position.Quantity - quantity,
				AvgCost:   position.AvgCost,
				UpdatedAt: at,
			},
			CashDelta:   gross.Sub(commission),
			RealizedPnL: realized,
		}, nil

	default:
		return Application{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrUnknownOrderSide)
	}
}

// MarketValue prices a set of positions with quoteFor, falling back to the
// recorded cost basis when no usable quote exists.
func MarketValue(positions []models.Position, quoteFor func(symbol string) (decimal.Decimal, bool)) decimal.Decimal {
	total := decimal.Zero
	for _, position := range positions {
		price, ok := quoteFor(position.Symbol)
		if !ok {
			price = position.AvgCost
		}
		total = total.Add(price.Mul(decimal.NewFromInt(position.Quantity)))
	}
	return total
}
