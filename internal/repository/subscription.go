package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/survivorsoul/soulsongs/internal/model"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrSubscriptionExists   = errors.New("subscription already exists for user")
	ErrDuplicateCustomer    = errors.New("customer already linked to another subscription")
)

type SubscriptionRepository interface {
	ByUserID(ctx context.Context, userID int64) (*model.Subscription, error)
	ByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error)
	BySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error)
	// CreateFree inserts a free/active row for the user, optionally linked to a customer.
	CreateFree(ctx context.Context, userID int64, customerID *string) (*model.Subscription, error)
	// SetCustomerID links a customer only if the row has none yet and reports whether it did.
	SetCustomerID(ctx context.Context, userID int64, customerID string) (bool, error)
	Update(ctx context.Context, sub *model.Subscription) error
}

type subscriptionRepository struct {
	db *sqlx.DB
}

func NewSubscriptionRepository(db *sqlx.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) ByUserID(ctx context.Context, userID int64) (*model.Subscription, error) {
	return r.one(ctx, `SELECT * FROM subscriptions WHERE user_id = $1`, userID)
}

func (r *subscriptionRepository) ByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error) {
	return r.one(ctx, `SELECT * FROM subscriptions WHERE stripe_customer_id = $1`, customerID)
}

func (r *subscriptionRepository) BySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	return r.one(ctx, `SELECT * FROM subscriptions WHERE stripe_subscription_id = $1`, subscriptionID)
}

func (r *subscriptionRepository) CreateFree(ctx context.Context, userID int64, customerID *string) (*model.Subscription, error) {
	sub := &model.Subscription{
		UserID:           userID,
		Tier:             model.TierFree,
		Status:           model.StatusActive,
		StripeCustomerID: customerID,
		CreatedAt:        time.Now().UTC(),
	}

	query := `
		INSERT INTO subscriptions (user_id, tier, status, stripe_customer_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		sub.UserID,
		sub.Tier,
		sub.Status,
		sub.StripeCustomerID,
		sub.CreatedAt,
	).Scan(&sub.ID)
	if err != nil {
		return nil, mapSubscriptionWriteError(err)
	}

	return sub, nil
}

func (r *subscriptionRepository) SetCustomerID(ctx context.Context, userID int64, customerID string) (bool, error) {
	query := `
		UPDATE subscriptions
		SET stripe_customer_id = $1,
		    updated_at = $2
		WHERE user_id = $3 AND stripe_customer_id IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, customerID, time.Now().UTC(), userID)
	if err != nil {
		return false, mapSubscriptionWriteError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows == 1, nil
}

func (r *subscriptionRepository) Update(ctx context.Context, sub *model.Subscription) error {
	now := time.Now().UTC()
	sub.UpdatedAt = &now

	query := `
		UPDATE subscriptions
		SET tier = $1,
		    status = $2,
		    stripe_customer_id = $3,
		    stripe_subscription_id = $4,
		    current_period_start = $5,
		    current_period_end = $6,
		    updated_at = $7
		WHERE id = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		sub.Tier,
		sub.Status,
		sub.StripeCustomerID,
		sub.StripeSubscriptionID,
		sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd,
		sub.UpdatedAt,
		sub.ID,
	)
	if err != nil {
		return mapSubscriptionWriteError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrSubscriptionNotFound
	}

	return nil
}

func (r *subscriptionRepository) one(ctx context.Context, query string, arg any) (*model.Subscription, error) {
	sub := &model.Subscription{}

	err := r.db.GetContext(ctx, sub, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, err
	}

	return sub, nil
}

func mapSubscriptionWriteError(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	if violates(err, "subscriptions", "stripe_customer_id") {
		return ErrDuplicateCustomer
	}
	return ErrSubscriptionExists
}
