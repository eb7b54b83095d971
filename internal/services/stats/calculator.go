package stats

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
)

// Annualization factor for daily returns (trading days per year).
const tradingDaysPerYear = 252

// Compute derives performance metrics from an account's immutable
// transaction history. It is a pure function: no shared state, safe to call
// concurrently with ticks. currentValue is the account's marked value (cash
// plus priced positions) at call time.
func Compute(account models.Account, transactions []models.Transaction, currentValue decimal.Decimal) models.TradingStats {
	out := models.TradingStats{
		TotalTrades:  len(transactions),
		RealizedPnL:  decimal.Zero,
		CurrentValue: currentValue,
	}

	winningSum := decimal.Zero
	losingSum := decimal.Zero

	for _, transaction := range transactions {
		if transaction.Side != models.OrderSideSell {
			continue
		}
		out.ClosedTrades++
		out.RealizedPnL = out.RealizedPnL.Add(transaction.RealizedPnL)

		switch transaction.RealizedPnL.Sign() {
		case 1:
			out.WinningTrades++
			winningSum = winningSum.Add(transaction.RealizedPnL)
		case -1:
			out.LosingTrades++
			losingSum = losingSum.Add(transaction.RealizedPnL)
		}
	}

	if out.ClosedTrades > 0 {
		out.WinRate = float64(out.WinningTrades) / float64(out.ClosedTrades) * 100
	}
	out.ProfitFactor = profitFactor(winningSum, losingSum)

	if account.InitialBalance.IsPositive() {
		out.TotalReturn = currentValue.Sub(account.InitialBalance).
			Div(account.InitialBalance).InexactFloat64() * 100
	}

	equity := equityCurve(account.InitialBalance, transactions)
	out.SharpeRatio = sharpeRatio(equity)
	out.MaxDrawdown = maxDrawdown(equity)

	return out
}

// profitFactor is sum of winning P&L over the absolute sum of losing P&L.
// With no losing trades it is +Inf (never a division by zero), and 0 when
// there are no winners either.
func profitFactor(winningSum, losingSum decimal.Decimal) float64 {
	if losingSum.IsZero() {
		if winningSum.IsPositive() {
			return math.Inf(1)
		}
		return 0
	}
	return winningSum.Div(losingSum.Abs()).InexactFloat64()
}

// equityCurve folds realized P&L into per-day equity points, oldest first.
func equityCurve(initialBalance decimal.Decimal, transactions []models.Transaction) []float64 {
	daily := make(map[time.Time]decimal.Decimal)
	for _, transaction := range transactions {
		if transaction.Side != models.OrderSideSell {
			continue
		}
		day := transaction.ExecutedAt.UTC().Truncate(24 * time.Hour)
		daily[day] = daily[day].Add(transaction.RealizedPnL)
	}

	days := make([]time.Time, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	equity := make([]float64, 0, len(days)+1)
	running := initialBalance
	equity = append(equity, running.InexactFloat64())
	for _, day := range days {
		running = running.Add(daily[day])
		equity = append(equity, running.InexactFloat64())
	}
	return equity
}

// sharpeRatio is mean(dailyReturns)/stddev(dailyReturns)*sqrt(252) with
// population standard deviation, 0 when there is no volatility.
func sharpeRatio(equity []float64) float64 {
	if len(equity) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			return 0
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))

	stddev := math.Sqrt(variance)
	if stddev == 0 {
		return 0
	}
	return mean / stddev * math.Sqrt(tradingDaysPerYear)
}

// maxDrawdown is the deepest peak-to-trough loss of the equity curve as a
// positive percentage.
func maxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}

	peak := equity[0]
	worst := 0.0
	for _, value := range equity {
		if value > peak {
			peak = value
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - value) / peak
		if drawdown > worst {
			worst = drawdown
		}
	}
	return worst * 100
}
