package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	serviceErrors "github.com/amarcoder01/market-engine/internal/errors/service"
	"github.com/amarcoder01/market-engine/internal/logger"
	"github.com/amarcoder01/market-engine/internal/obs"
)

type AlertStore interface {
	SaveAlert(ctx context.Context, alert models.PriceAlert) error
	GetAlert(ctx context.Context, id uuid.UUID) (models.PriceAlert, error)
	ListActiveAlerts(ctx context.Context) ([]models.PriceAlert, error)
	UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.AlertStatus) error
	TouchAlert(ctx context.Context, id uuid.UUID, checkedAt time.Time) error
	TriggerAlert(ctx context.Context, id uuid.UUID, price decimal.Decimal, triggeredAt time.Time) error
}

type HistoryRecorder interface {
	SaveAlertHistory(ctx context.Context, entry models.AlertHistoryEntry) error
}

type Quotes interface {
	Get(ctx context.Context, symbol string) (models.Quote, bool)
}

type CreateRequest struct {
	UserID      uuid.UUID
	Symbol      string
	TargetPrice decimal.Decimal
	Condition   models.AlertCondition
	Channel     string
	Recipient   string
}

// Registry holds active price alerts and evaluates them against cache
// ticks. Alerts are mutated only by their owner and by the single-threaded
// tick; evaluation always reloads the latest persisted state, which gives
// read-your-writes without per-alert locks.
type Registry struct {
	store   AlertStore
	history HistoryRecorder
	quotes  Quotes
	metrics *obs.Metrics

	now func() time.Time
}

func NewRegistry(store AlertStore, history HistoryRecorder, quotes Quotes, metrics *obs.Metrics) *Registry {
	return &Registry{
		store:   store,
		history: history,
		quotes:  quotes,
		metrics: metrics,
		now:     time.Now,
	}
}

func (r *Registry) Create(ctx context.Context, request CreateRequest) (models.PriceAlert, error) {
	const op = "alerts.Registry.Create"

	symbol := strings.ToUpper(strings.TrimSpace(request.Symbol))
	if symbol == "" {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrUnknownSymbol)
	}
	if !request.TargetPrice.IsPositive() {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrInvalidTargetPrice)
	}
	switch request.Condition {
	case models.AlertConditionAbove, models.AlertConditionBelow:
	default:
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, serviceErrors.ErrUnknownAlertCondition)
	}

	alert := models.PriceAlert{
		ID:          uuid.New(),
		UserID:      request.UserID,
		Symbol:      symbol,
		TargetPrice: request.TargetPrice,
		Condition:   request.Condition,
		Status:      models.AlertStatusActive,
		Channel:     request.Channel,
		Recipient:   request.Recipient,
		CreatedAt:   r.now().UTC(),
	}

	if err := r.store.SaveAlert(ctx, alert); err != nil {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, err)
	}

	r.record(ctx, alert.ID, models.AlertActionCreated, request.TargetPrice, "alert created")
	return alert, nil
}

func (r *Registry) Cancel(ctx context.Context, alertID uuid.UUID) error {
	const op = "alerts.Registry.Cancel"

	alert, err := r.store.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, repositoryErrors.ErrAlertNotFound) {
			return fmt.Errorf("%s: %w", op, serviceErrors.ErrAlertNotFound)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if alert.Status.IsTerminal() {
		return fmt.Errorf("%s: %w", op, serviceErrors.ErrAlertAlreadyTerminal)
	}

	if err := r.store.UpdateAlertStatus(ctx, alertID, models.AlertStatusCancelled); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.record(ctx, alertID, models.AlertActionCancelled, alert.TargetPrice, "alert cancelled")
	return nil
}

// Evaluate checks every active alert against the current usable quotes and
// returns the ones that fired. The active->triggered transition is
// persisted before the caller attempts delivery, so a crash between the
// two costs a notification retry, never a second trigger.
func (r *Registry) Evaluate(ctx context.Context) []models.TriggeredAlert {
	const op = "alerts.Registry.Evaluate"

	active, err := r.store.ListActiveAlerts(ctx)
	if err != nil {
		logger.Error(ctx, "listing active alerts failed", zap.String("op", op), zap.Error(err))
		return nil
	}

	now := r.now().UTC()

	var triggered []models.TriggeredAlert
	for _, alert := range active {
		if err := r.store.TouchAlert(ctx, alert.ID, now); err != nil {
			logger.Warn(ctx, "alert touch failed", zap.String("alert_id", alert.ID.String()), zap.Error(err))
		}

		quote, found := r.quotes.Get(ctx, alert.Symbol)
		if !found {
			r.metrics.StaleSkips.Inc()
			continue
		}
		if !alert.Condition.Satisfied(quote.Price, alert.TargetPrice) {
			continue
		}

		if err := r.store.TriggerAlert(ctx, alert.ID, quote.Price, now); err != nil {
			if errors.Is(err, repositoryErrors.ErrAlertNotActive) {
				// Lost the race against a user cancel; not a trigger.
				continue
			}
			logger.Error(ctx, "alert trigger persistence failed", zap.String("alert_id", alert.ID.String()), zap.Error(err))
			continue
		}

		alert.Status = models.AlertStatusTriggered
		alert.TriggeredAt = &now
		alert.LastCheckedAt = now

		r.metrics.AlertsTriggered.Inc()
		r.record(ctx, alert.ID, models.AlertActionTriggered, quote.Price,
			fmt.Sprintf("%s %s %s hit at %s", alert.Symbol, alert.Condition, alert.TargetPrice, quote.Price))

		triggered = append(triggered, models.TriggeredAlert{Alert: alert, Price: quote.Price})
	}
	return triggered
}

// Symbols returns the distinct symbols with at least one active alert.
func (r *Registry) Symbols(ctx context.Context) ([]string, error) {
	const op = "alerts.Registry.Symbols"

	active, err := r.store.ListActiveAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seen := make(map[string]bool, len(active))
	out := make([]string, 0, len(active))
	for _, alert := range active {
		if !seen[alert.Symbol] {
			seen[alert.Symbol] = true
			out = append(out, alert.Symbol)
		}
	}
	return out, nil
}

func (r *Registry) record(ctx context.Context, alertID uuid.UUID, action string, price decimal.Decimal, message string) {
	entry := models.AlertHistoryEntry{
		ID:        uuid.New(),
		AlertID:   alertID,
		Action:    action,
		Price:     price,
		Message:   message,
		CreatedAt: r.now().UTC(),
	}
	if err := r.history.SaveAlertHistory(ctx, entry); err != nil {
		logger.Warn(ctx, "alert history write failed", zap.String("alert_id", alertID.String()), zap.Error(err))
	}
}
