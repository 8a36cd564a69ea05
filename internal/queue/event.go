package queue

import "time"

// SubscriptionUpdatedQueue receives one message per applied billing webhook.
const SubscriptionUpdatedQueue = "billing.subscription.updated"

// SubscriptionUpdatedEvent describes the subscription state after a webhook was applied.
type SubscriptionUpdatedEvent struct {
	EventID          string     `json:"event_id"`
	EventType        string     `json:"event_type"`
	UserID           int64      `json:"user_id"`
	Tier             string     `json:"tier"`
	Status           string     `json:"status"`
	CustomerID       string     `json:"customer_id,omitempty"`
	SubscriptionID   string     `json:"subscription_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}
