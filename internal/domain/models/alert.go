package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PriceAlert struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	Symbol        string
	TargetPrice   decimal.Decimal
	Condition     AlertCondition
	Status        AlertStatus
	Channel       string
	Recipient     string
	LastCheckedAt time.Time
	TriggeredAt   *time.Time
	CreatedAt     time.Time
}

type AlertCondition uint8

const (
	AlertConditionUnspecified AlertCondition = iota
	AlertConditionAbove
	AlertConditionBelow
)

func (c AlertCondition) String() string {
	switch c {
	case AlertConditionAbove:
		return "above"
	case AlertConditionBelow:
		return "below"
	default:
		return "unspecified"
	}
}

// Satisfied reports whether price meets the alert condition against target.
func (c AlertCondition) Satisfied(price, target decimal.Decimal) bool {
	switch c {
	case AlertConditionAbove:
		return price.GreaterThanOrEqual(target)
	case AlertConditionBelow:
		return price.LessThanOrEqual(target)
	default:
		return false
	}
}

type AlertStatus uint8

const (
	AlertStatusUnspecified AlertStatus = iota
	AlertStatusActive
	AlertStatusTriggered
	AlertStatusCancelled
)

func (s AlertStatus) String() string {
	switch s {
	case AlertStatusActive:
		return "active"
	case AlertStatusTriggered:
		return "triggered"
	case AlertStatusCancelled:
		return "cancelled"
	default:
		return "unspecified"
	}
}

func (s AlertStatus) IsTerminal() bool {
	return s == AlertStatusTriggered || s == AlertStatusCancelled
}

// Alert history actions recorded per state transition or delivery attempt.
const (
	AlertActionCreated      = "created"
	AlertActionTriggered    = "triggered"
	AlertActionCancelled    = "cancelled"
	AlertActionNotified     = "notified"
	AlertActionNotifyFailed = "notify_failed"
)

type AlertHistoryEntry struct {
	ID        uuid.UUID
	AlertID   uuid.UUID
	Action    string
	Price     decimal.Decimal
	Message   string
	CreatedAt time.Time
}

// TriggeredAlert pairs an alert with the price that fired it.
type TriggeredAlert struct {
	Alert PriceAlert
	Price decimal.Decimal
}
