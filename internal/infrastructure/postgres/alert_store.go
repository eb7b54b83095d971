package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/amarcoder01/market-engine/internal/domain/models"
	repositoryErrors "github.com/amarcoder01/market-engine/internal/errors/repository"
	"github.com/amarcoder01/market-engine/internal/infrastructure/postgres/dto"
)

const alertColumns = `id, user_id, symbol, target_price, condition, status, channel, recipient, last_checked_at, triggered_at, created_at`

func (s *Store) SaveAlert(ctx context.Context, alert models.PriceAlert) error {
	const op = "postgres.Store.SaveAlert"

	alertDTO := dto.AlertFromDomain(alert)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO price_alerts (`+alertColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		alertDTO.ID,
		alertDTO.UserID,
		alertDTO.Symbol,
		alertDTO.TargetPrice,
		alertDTO.Condition,
		alertDTO.Status,
		alertDTO.Channel,
		alertDTO.Recipient,
		alertDTO.LastCheckedAt,
		alertDTO.TriggeredAt,
		alertDTO.CreatedAt,
	)

	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertExists)
		}

		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (models.PriceAlert, error) {
	const op = "postgres.Store.GetAlert"

	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM price_alerts
		 WHERE id = $1
		 LIMIT 1`,
		id,
	)

	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("%s: query: %w", op, err)
	}

	alertDTO, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[dto.PriceAlert])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.PriceAlert{}, fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
		}

		return models.PriceAlert{}, fmt.Errorf("%s: collect: %w", op, err)
	}

	alert, err := alertDTO.ToDomain()
	if err != nil {
		return models.PriceAlert{}, fmt.Errorf("%s: %w", op, err)
	}

	return alert, nil
}

func (s *Store) ListActiveAlerts(ctx context.Context) ([]models.PriceAlert, error) {
	const op = "postgres.Store.ListActiveAlerts"

	rows, err := s.pool.Query(ctx,
		`SELECT `+alertColumns+`
		 FROM price_alerts
		 WHERE status = $1
		 ORDER BY created_at`,
		int16(models.AlertStatusActive),
	)

	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	alertDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.PriceAlert])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	alerts := make([]models.PriceAlert, 0, len(alertDTOs))
	for _, alertDTO := range alertDTOs {
		alert, err := alertDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		alerts = append(alerts, alert)
	}

	return alerts, nil
}

func (s *Store) UpdateAlertStatus(ctx context.Context, id uuid.UUID, status models.AlertStatus) error {
	const op = "postgres.Store.UpdateAlertStatus"

	tag, err := s.pool.Exec(ctx,
		`UPDATE price_alerts SET status = $2 WHERE id = $1 AND status = $3`,
		id,
		int16(status),
		int16(models.AlertStatusActive),
	)

	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.GetAlert(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
		}

		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotActive)
	}

	return nil
}

func (s *Store) TouchAlert(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	const op = "postgres.Store.TouchAlert"

	tag, err := s.pool.Exec(ctx,
		`UPDATE price_alerts SET last_checked_at = $2 WHERE id = $1`,
		id,
		checkedAt,
	)

	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
	}

	return nil
}

// TriggerAlert flips an alert from active to triggered. The status guard in
// the WHERE clause is what makes triggering at-most-once.
func (s *Store) TriggerAlert(ctx context.Context, id uuid.UUID, price decimal.Decimal, triggeredAt time.Time) error {
	const op = "postgres.Store.TriggerAlert"

	tag, err := s.pool.Exec(ctx,
		`UPDATE price_alerts
		 SET status = $2, triggered_at = $3, last_checked_at = $3
		 WHERE id = $1 AND status = $4`,
		id,
		int16(models.AlertStatusTriggered),
		triggeredAt,
		int16(models.AlertStatusActive),
	)

	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		if _, err := s.GetAlert(ctx, id); err != nil {
			return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotFound)
		}

		return fmt.Errorf("%s: %w", op, repositoryErrors.ErrAlertNotActive)
	}

	return nil
}

func (s *Store) SaveAlertHistory(ctx context.Context, entry models.AlertHistoryEntry) error {
	const op = "postgres.Store.SaveAlertHistory"

	entryDTO := dto.HistoryFromDomain(entry)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO alert_history (id, alert_id, action, price, message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entryDTO.ID,
		entryDTO.AlertID,
		entryDTO.Action,
		entryDTO.Price,
		entryDTO.Message,
		entryDTO.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("%s: exec: %w", op, err)
	}

	return nil
}

func (s *Store) ListAlertHistory(ctx context.Context, alertID uuid.UUID) ([]models.AlertHistoryEntry, error) {
	const op = "postgres.Store.ListAlertHistory"

	rows, err := s.pool.Query(ctx,
		`SELECT id, alert_id, action, price, message, created_at
		 FROM alert_history
		 WHERE alert_id = $1
		 ORDER BY created_at`,
		alertID,
	)

	if err != nil {
		return nil, fmt.Errorf("%s: query: %w", op, err)
	}

	entryDTOs, err := pgx.CollectRows(rows, pgx.RowToStructByName[dto.AlertHistoryEntry])
	if err != nil {
		return nil, fmt.Errorf("%s: collect: %w", op, err)
	}

	entries := make([]models.AlertHistoryEntry, 0, len(entryDTOs))
	for _, entryDTO := range entryDTOs {
		entry, err := entryDTO.ToDomain()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}
