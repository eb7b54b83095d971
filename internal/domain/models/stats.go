package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradingStats is derived from an account's closed-trade history.
// Monetary values stay decimal; ratios are float64 (ProfitFactor is
// math.Inf(1) when there are no losing trades).
type TradingStats struct {
	TotalTrades   int
	ClosedTrades  int
	WinningTrades int
	LosingTrades  int
	WinRate       float64
	ProfitFactor  float64
	TotalReturn   float64
	SharpeRatio   float64
	MaxDrawdown   float64
	RealizedPnL   decimal.Decimal
	CurrentValue  decimal.Decimal
}

type SchedulerStatus struct {
	Active      bool
	Interval    time.Duration
	NextCheckAt time.Time
}
