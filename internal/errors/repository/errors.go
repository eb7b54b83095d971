package repository

import "errors"

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("account already exists")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderExists      = errors.New("order already exists")
	ErrOrderNotPending  = errors.New("order is not pending")
	ErrPositionNotFound = errors.New("position not found")
	ErrAlertNotFound    = errors.New("alert not found")
	ErrAlertExists      = errors.New("alert already exists")
	ErrAlertNotActive   = errors.New("alert is not active")
	ErrQuoteCacheMiss   = errors.New("quote not cached")
)
