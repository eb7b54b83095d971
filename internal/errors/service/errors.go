package service

import "errors"

var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAlertNotFound        = errors.New("alert not found")
	ErrOrderAlreadyTerminal = errors.New("order already in terminal state")
	ErrAlertAlreadyTerminal = errors.New("alert already in terminal state")
	ErrAccountHasOpenOrders = errors.New("account has open orders")
	ErrRateLimitExceeded    = errors.New("rate limit exceeded")

	// Order placement reject reasons.
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrUnknownSymbol        = errors.New("symbol must not be empty")
	ErrUnknownOrderSide     = errors.New("unknown order side")
	ErrUnknownOrderKind     = errors.New("unknown order kind")
	ErrMissingLimitPrice    = errors.New("limit order requires a limit price")
	ErrMissingStopPrice     = errors.New("stop order requires a stop price")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientPosition = errors.New("insufficient position")
	ErrQuoteUnavailable     = errors.New("no usable quote for symbol")

	// Alert creation reject reasons.
	ErrInvalidTargetPrice    = errors.New("target price must be positive")
	ErrUnknownAlertCondition = errors.New("unknown alert condition")

	ErrDeliveryFailed = errors.New("notification delivery failed")
)
