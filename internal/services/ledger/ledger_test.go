package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
)

func dec(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestApplyBuyOpensPosition(t *testing.T) {
	accountID := uuid.New()
	now := time.Now().UTC()

	application, err := Apply(
		models.Position{AccountID: accountID, Symbol: "AAPL"},
		models.OrderSideBuy,
		10,
		dec("150"),
		dec("1"),
		now,
	)
	require.NoError(t, err)

	// 10 * 150 + 1 commission leaves 8499 of a 10000 balance.
	assert.True(t, application.CashDelta.Equal(dec("-1501")), "cash delta %s", application.CashDelta)
	assert.True(t, dec("10000").Add(application.CashDelta).Equal(dec("8499")))
	assert.Equal(t, int64(10), application.Position.Quantity)
	assert.True(t, application.Position.AvgCost.Equal(dec("150")))
	assert.True(t, application.RealizedPnL.IsZero())
}

func TestApplyBuyReweightsAverageCost(t *testing.T) {
	position := models.Position{
		AccountID: uuid.New(),
		Symbol:    "AAPL",
		Quantity:  10,
		AvgCost:   dec("150"),
	}

	application, err := Apply(position, models.OrderSideBuy, 10, dec("170"), dec("1"), time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, int64(20), application.Position.Quantity)
	assert.True(t, application.Position.AvgCost.Equal(dec("160")), "avg cost %s", application.Position.AvgCost)
	assert.True(t, application.CashDelta.Equal(dec("-1701")))
}

func TestApplySellRealizesPnL(t *testing.T) {
	position := models.Position{
		AccountID: uuid.New(),
		Symbol:    "AAPL",
		Quantity:  10,
		AvgCost:   dec("150"),
	}

	application, err := Apply(position, models.OrderSideSell, 5, dec("160"), dec("1"), time.Now().UTC())
	require.NoError(t, err)

	// (160 - 150) * 5 - 1 commission.
	assert.True(t, application.RealizedPnL.Equal(dec("49")), "realized %s", application.RealizedPnL)
	// 5 * 160 - 1 commission returns to cash.
	assert.True(t, application.CashDelta.Equal(dec("799")), "cash delta %s", application.CashDelta)
	assert.Equal(t, int64(5), application.Position.Quantity)
	assert.True(t, application.Position.AvgCost.Equal(dec("150")), "avg cost unchanged on sell")
}

func TestApplySellClosesPosition(t *testing.T) {
	position := models.Position{
		AccountID: uuid.New(),
		Symbol:    "TSLA",
		Quantity:  3,
		AvgCost:   dec("200"),
	}

	application, err := Apply(position, models.OrderSideSell, 3, dec("190"), dec("1"), time.Now().UTC())
	require.NoError(t, err)

	assert.Equal(t, int64(0), application.Position.Quantity)
	assert.True(t, application.Position.Closed())
	// (190 - 200) * 3 - 1 = -31.
	assert.True(t, application.RealizedPnL.Equal(dec("-31")))
}

func TestApplySellMoreThanHeld(t *testing.T) {
	position := models.Position{
		AccountID: uuid.New(),
		Symbol:    "AAPL",
		Quantity:  5,
		AvgCost:   dec("150"),
	}

	_, err := Apply(position, models.OrderSideSell, 6, dec("160"), dec("1"), time.Now().UTC())
	require.Error(t, err)
	assert.True(t, errors.Is(err, serviceErrors.ErrInsufficientPosition))
}

func TestApplyRejectsBadInput(t *testing.T) {
	tests := []struct {
		name     string
		side     models.OrderSide
		quantity int64
		expected error
	}{
		{name: "zero quantity", side: models.OrderSideBuy, quantity: 0, expected: serviceErrors.ErrInvalidQuantity},
		{name: "negative quantity", side: models.OrderSideSell, quantity: -1, expected: serviceErrors.ErrInvalidQuantity},
		{name: "unknown side", side: models.OrderSideUnspecified, quantity: 1, expected: serviceErrors.ErrUnknownOrderSide},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := Apply(models.Position{}, testCase.side, testCase.quantity, dec("100"), dec("1"), time.Now().UTC())
			require.Error(t, err)
			assert.True(t, errors.Is(err, testCase.expected))
		})
	}
}

func TestApplyFractionalAverageCostStaysExact(t *testing.T) {
	position := models.Position{Quantity: 3, AvgCost: dec("10")}

	application, err := Apply(position, models.OrderSideBuy, 1, dec("11"), dec("0"), time.Now().UTC())
	require.NoError(t, err)

	// (3*10 + 11) / 4 = 10.25 exactly.
	assert.True(t, application.Position.AvgCost.Equal(dec("10.25")))
}

func TestMarketValue(t *testing.T) {
	positions := []models.Position{
		{Symbol: "AAPL", Quantity: 10, AvgCost: dec("150")},
		{Symbol: "TSLA", Quantity: 2, AvgCost: dec("200")},
	}

	quotes := map[string]decimal.Decimal{
		"AAPL": dec("160"),
	}
	quoteFor := func(symbol string) (decimal.Decimal, bool) {
		price, ok := quotes[symbol]
		return price, ok
	}

	// AAPL at the quote, TSLA falls back to cost basis.
	total := MarketValue(positions, quoteFor)
	assert.True(t, total.Equal(dec("2000")), "total %s", total)
}
