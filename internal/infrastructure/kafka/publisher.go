package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/amarcoder01/market-engine/internal/domain/models"
)

// Publisher emits fill and alert events so downstream consumers (history
// feeds, analytics) see executions without polling the database.
type Publisher struct {
	producer   sarama.SyncProducer
	fillTopic  string
	alertTopic string
}

func NewPublisher(brokers []string, fillTopic, alertTopic string) (*Publisher, error) {
	const op = "kafka.NewPublisher"

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Publisher{
		producer:   producer,
		fillTopic:  fillTopic,
		alertTopic: alertTopic,
	}, nil
}

type fillEvent struct {
	OrderID     string    `json:"order_id"`
	AccountID   string    `json:"account_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    int64     `json:"quantity"`
	Price       string    `json:"price"`
	Commission  string    `json:"commission"`
	RealizedPnL string    `json:"realized_pnl"`
	ExecutedAt  time.Time `json:"executed_at"`
}

func (p *Publisher) PublishFill(ctx context.Context, fill models.Fill) error {
	const op = "kafka.Publisher.PublishFill"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	event := fillEvent{
		OrderID:     fill.OrderID.String(),
		AccountID:   fill.AccountID.String(),
		Symbol:      fill.Symbol,
		Side:        fill.Side.String(),
		Quantity:    fill.Quantity,
		Price:       fill.Price.String(),
		Commission:  fill.Commission.String(),
		RealizedPnL: fill.RealizedPnL.String(),
		ExecutedAt:  fill.ExecutedAt,
	}

	if err := p.send(p.fillTopic, fill.Symbol, event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

type alertTriggeredEvent struct {
	AlertID     string    `json:"alert_id"`
	UserID      string    `json:"user_id"`
	Symbol      string    `json:"symbol"`
	Condition   string    `json:"condition"`
	TargetPrice string    `json:"target_price"`
	Price       string    `json:"price"`
	TriggeredAt time.Time `json:"triggered_at"`
}

func (p *Publisher) PublishAlertTriggered(ctx context.Context, triggered models.TriggeredAlert) error {
	const op = "kafka.Publisher.PublishAlertTriggered"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	triggeredAt := time.Now().UTC()
	if triggered.Alert.TriggeredAt != nil {
		triggeredAt = *triggered.Alert.TriggeredAt
	}

	event := alertTriggeredEvent{
		AlertID:     triggered.Alert.ID.String(),
		UserID:      triggered.Alert.UserID.String(),
		Symbol:      triggered.Alert.Symbol,
		Condition:   triggered.Alert.Condition.String(),
		TargetPrice: triggered.Alert.TargetPrice.String(),
		Price:       triggered.Price.String(),
		TriggeredAt: triggeredAt,
	}

	if err := p.send(p.alertTopic, triggered.Alert.Symbol, event); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *Publisher) send(topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
