package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the normalized in-memory view of one upstream price point.
// It is never persisted; staleness is judged against FetchedAt.
type Quote struct {
	Symbol        string
	Price         decimal.Decimal
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Volume        int64
	FetchedAt     time.Time
}

// Age returns how old the quote is relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.FetchedAt)
}

// Stale reports whether the quote is too old to drive a fill or a trigger.
func (q Quote) Stale(now time.Time, threshold time.Duration) bool {
	return q.Age(now) > threshold
}
