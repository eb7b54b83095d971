package dto

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
)

type PriceAlert struct {
	ID            uuid.UUID  `db:"id"`
	UserID        uuid.UUID  `db:"user_id"`
	Symbol        string     `db:"symbol"`
	TargetPrice   string     `db:"target_price"`
	Condition     int16      `db:"condition"`
	Status        int16      `db:"status"`
	Channel       string     `db:"channel"`
	Recipient     string     `db:"recipient"`
	LastCheckedAt time.Time  `db:"last_checked_at"`
	TriggeredAt   *time.Time `db:"triggered_at"`
	CreatedAt     time.Time  `db:"created_at"`
}

func (a PriceAlert) ToDomain() (models.PriceAlert, error) {
	targetPrice, err := decimal.NewFromString(a.TargetPrice)
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("parse target price: %w", err)
	}

	return models.PriceAlert{
		ID:            a.ID,
		UserID:        a.UserID,
		Symbol:        a.Symbol,
		TargetPrice:   targetPrice,
		Condition:     models.AlertCondition(a.Condition),
		Status:        models.AlertStatus(a.Status),
		Channel:       a.Channel,
		Recipient:     a.Recipient,
		LastCheckedAt: a.LastCheckedAt,
		TriggeredAt:   a.TriggeredAt,
		CreatedAt:     a.CreatedAt,
	}, nil
}

func AlertFromDomain(alert models.PriceAlert) PriceAlert {
	return PriceAlert{
		ID:            alert.ID,
		UserID:        alert.UserID,
		Symbol:        alert.Symbol,
		TargetPrice:   alert.TargetPrice.String(),
		Condition:     int16(alert.Condition),
		Status:        int16(alert.Status),
		Channel:       alert.Channel,
		Recipient:     alert.Recipient,
		LastCheckedAt: alert.LastCheckedAt,
		TriggeredAt:   alert.TriggeredAt,
		CreatedAt:     alert.CreatedAt,
	}
}

type AlertHistoryEntry struct {
	ID        uuid.UUID `db:"id"`
	AlertID   uuid.UUID `db:"alert_id"`
	Action    string    `db:"action"`
	Price     string    `db:"price"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

func (e AlertHistoryEntry) ToDomain() (models.AlertHistoryEntry, error) {
	price, err := decimal.NewFromString(e.Price)
	if err != nil {
		return models.AlertHistoryEntry{}, fmt.Errorf("parse price: %w", err)
	}

	return models.AlertHistoryEntry{
		ID:        e.ID,
		AlertID:   e.AlertID,
		Action:    e.Action,
		Price:     price,
		Message:   e.Message,
		CreatedAt: e.CreatedAt,
	}, nil
}

func HistoryFromDomain(entry models.AlertHistoryEntry) AlertHistoryEntry {
	return AlertHistoryEntry{
		ID:        entry.ID,
		AlertID:   entry.AlertID,
		Action:    entry.Action,
		Price:     entry.Price.String(),
		Message:   entry.Message,
		CreatedAt: entry.CreatedAt,
	}
}
