package models

// FillApplication is the atomic persistence unit for one fill: the order's
// terminal state, the recomputed position, the updated account balances and
// the appended transaction are written as a single unit or not at all.
type FillApplication struct {
	Order          Order
	Position       Position
	PositionClosed bool
	Account        Account
	Transaction    Transaction
}
