package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
)

// Sender delivers one message over one channel (email, sms, webhook).
type Sender interface {
	Send(ctx context.Context, channel, recipient, message string) error
}

type HistoryRecorder interface {
	SaveAlertHistory(ctx context.Context, entry models.AlertHistoryEntry) error
}

// Dispatcher delivers triggered-alert notifications with a bounded
// exponential retry. Delivery failure never rolls the alert back to
// active: the trigger is at-most-once, delivery is best-effort, and the
// failure is recorded for administrative retry.
type Dispatcher struct {
	sender   Sender
	history  HistoryRecorder
	maxTries uint
	metrics  *obs.Metrics

	now func() time.Time
}

func NewDispatcher(sender Sender, history HistoryRecorder, maxTries uint, metrics *obs.Metrics) *Dispatcher {
	if maxTries == 0 {
		maxTries = 3
	}
	return &Dispatcher{
		sender:   sender,
		history:  history,
		maxTries: maxTries,
		metrics:  metrics,
		now:      time.Now,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, triggered models.TriggeredAlert) error {
	const op = "notify.Dispatcher.Dispatch"

	alert := triggered.Alert
	message := fmt.Sprintf("Price alert: %s is %s your target of %s (current price %s)",
		alert.Symbol, alert.Condition, alert.TargetPrice, triggered.Price)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, d.sender.Send(ctx, alert.Channel, alert.Recipient, message)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(d.maxTries))

	if err != nil {
		d.metrics.NotifyFailures.Inc()
		d.record(ctx, alert.ID, models.AlertActionNotifyFailed, triggered,
			fmt.Sprintf("delivery failed after %d attempts: %v", d.maxTries, err))
		logger.Error(ctx, "notification delivery failed",
			zap.String("alert_id", alert.ID.String()),
			zap.String("channel", alert.Channel),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrDeliveryFailed)
	}

	d.record(ctx, alert.ID, models.AlertActionNotified, triggered, "notification delivered")
	return nil
}

func (d *Dispatcher) record(ctx context.Context, alertID uuid.UUID, action string, triggered models.TriggeredAlert, message string) {
	entry := models.AlertHistoryEntry{
		ID:        uuid.New(),
		AlertID:   alertID,
		Action:    action,
		Price:     triggered.Price,
		Message:   message,
		CreatedAt: d.now().UTC(),
	}
	if err := d.history.SaveAlertHistory(ctx, entry); err != nil {
		logger.Warn(ctx, "alert history write failed", zap.String("alert_id", alertID.String()), zap.Error(err))
	}
}
