package model

import (
	"time"
)

type Subscription struct {
	ID                   int64      `db:"id"`
	UserID               int64      `db:"user_id"`
	Tier                 string     `db:"tier"`
	StripeCustomerID     *string    `db:"stripe_customer_id"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id"`
	Status               string     `db:"status"`
	CurrentPeriodStart   *time.Time `db:"current_period_start"`
	CurrentPeriodEnd     *time.Time `db:"current_period_end"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            *time.Time `db:"updated_at"`
}

const (
	TierFree    = "free"
	TierPro     = "pro"
	TierPremium = "premium"
)

// Statuses mirror the processor's vocabulary; anything it reports is stored verbatim.
const (
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusIncomplete = "incomplete"
	StatusCanceled   = "canceled"
)

// SubscriptionStatus is the client-facing view of a subscription.
type SubscriptionStatus struct {
	Tier             string     `json:"tier"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"current_period_end"`
}

// DefaultSubscriptionStatus is what a user without a subscription row is on.
func DefaultSubscriptionStatus() SubscriptionStatus {
	return SubscriptionStatus{Tier: TierFree, Status: StatusActive}
}

func (s *Subscription) HasCustomer() bool {
	return s.StripeCustomerID != nil && *s.StripeCustomerID != ""
}

func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive || s.Status == StatusTrialing
}

func (s *Subscription) IsPaid() bool {
	return s.Tier != TierFree && s.IsActive()
}

func (s *Subscription) StatusView() SubscriptionStatus {
	return SubscriptionStatus{
		Tier:             s.Tier,
		Status:           s.Status,
		CurrentPeriodEnd: s.CurrentPeriodEnd,
	}
}
