package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/repository"
)

type SubscriptionService struct {
	repo repository.SubscriptionRepository
}

func NewSubscriptionService(repo repository.SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo}
}

// Subscription returns the user's row or repository.ErrSubscriptionNotFound.
func (s *SubscriptionService) Subscription(ctx context.Context, userID int64) (*model.Subscription, error) {
	sub, err := s.repo.ByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub, nil
}

// Status reports the user's tier. Users without a row are on the free tier.
func (s *SubscriptionService) Status(ctx context.Context, userID int64) (model.SubscriptionStatus, error) {
	sub, err := s.repo.ByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return model.DefaultSubscriptionStatus(), nil
	}
	if err != nil {
		return model.SubscriptionStatus{}, fmt.Errorf("failed to get subscription: %w", err)
	}

	return sub.StatusView(), nil
}

// EnsureSubscription returns the user's row, creating a free one if there is none.
func (s *SubscriptionService) EnsureSubscription(ctx context.Context, userID int64) (*model.Subscription, error) {
	sub, err := s.repo.ByUserID(ctx, userID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}

	sub, err = s.repo.CreateFree(ctx, userID, nil)
	if errors.Is(err, repository.ErrSubscriptionExists) {
		return s.Subscription(ctx, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create free subscription: %w", err)
	}

	return sub, nil
}

// LinkCustomer stores customerID on the user's row, creating the row if needed.
// If another request linked a customer first, the stored id wins and is returned.
func (s *SubscriptionService) LinkCustomer(ctx context.Context, userID int64, customerID string) (string, error) {
	_, err := s.repo.CreateFree(ctx, userID, &customerID)
	if err == nil {
		return customerID, nil
	}
	if !errors.Is(err, repository.ErrSubscriptionExists) {
		return "", fmt.Errorf("failed to create subscription: %w", err)
	}

	linked, err := s.repo.SetCustomerID(ctx, userID, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to link customer: %w", err)
	}
	if linked {
		return customerID, nil
	}

	sub, err := s.Subscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if !sub.HasCustomer() {
		return "", fmt.Errorf("failed to link customer for user %d: row has no customer after conflict", userID)
	}

	slog.Warn("customer already linked, discarding new one",
		"user_id", userID,
		"kept_customer_id", *sub.StripeCustomerID,
		"discarded_customer_id", customerID,
	)
	return *sub.StripeCustomerID, nil
}

// Resolve finds the row for a processor subscription, falling back to its customer.
func (s *SubscriptionService) Resolve(ctx context.Context, subscriptionID, customerID string) (*model.Subscription, error) {
	if subscriptionID != "" {
		sub, err := s.repo.BySubscriptionID(ctx, subscriptionID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("failed to get subscription by processor id: %w", err)
		}
	}

	if customerID != "" {
		sub, err := s.repo.ByCustomerID(ctx, customerID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, fmt.Errorf("failed to get subscription by customer: %w", err)
		}
	}

	return nil, repository.ErrSubscriptionNotFound
}

func (s *SubscriptionService) UpdateSubscription(ctx context.Context, sub *model.Subscription) error {
	err := s.repo.Update(ctx, sub)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}

	return nil
}

// Cancel moves the row back to the free tier. Period dates are kept for history.
func (s *SubscriptionService) Cancel(ctx context.Context, sub *model.Subscription) error {
	sub.Tier = model.TierFree
	sub.Status = model.StatusCanceled

	return s.UpdateSubscription(ctx, sub)
}
