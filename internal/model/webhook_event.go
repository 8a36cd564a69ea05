package model

import "time"

// WebhookEvent records a processor event that has been applied.
type WebhookEvent struct {
	ID          string    `db:"id"`
	Type        string    `db:"type"`
	ProcessedAt time.Time `db:"processed_at"`
}
