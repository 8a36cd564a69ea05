package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/survivorsoul/soulsongs/internal/model"
)

// WebhookEventRepository remembers which processor events were already applied.
type WebhookEventRepository interface {
	Exists(ctx context.Context, id string) (bool, error)
	// Record stores the event and reports false if it was already recorded.
	Record(ctx context.Context, id, eventType string) (bool, error)
}

type webhookEventRepository struct {
	db *sqlx.DB
}

func NewWebhookEventRepository(db *sqlx.DB) WebhookEventRepository {
	return &webhookEventRepository{db: db}
}

func (r *webhookEventRepository) Exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM webhook_events WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *webhookEventRepository) Record(ctx context.Context, id, eventType string) (bool, error) {
	event := model.WebhookEvent{ID: id, Type: eventType, ProcessedAt: time.Now().UTC()}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, type, processed_at) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		event.ID, event.Type, event.ProcessedAt,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}
