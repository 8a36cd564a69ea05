package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/survivorsoul/soulsongs/internal/lock"
	"github.com/survivorsoul/soulsongs/internal/metrics"
	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/queue"
	"github.com/survivorsoul/soulsongs/internal/repository"
	"github.com/survivorsoul/soulsongs/internal/service/payment"
)

var ErrNoCustomer = errors.New("no billing account found, please subscribe first")

// Processor event types handled by HandleWebhook.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventInvoicePaymentFailed     = "invoice.payment_failed"
)

type CheckoutRequest struct {
	PriceID    string
	SuccessURL string
	CancelURL  string
}

type BillingOptions struct {
	// PriceTiers maps processor price ids to local tiers. Unmapped prices buy "premium".
	PriceTiers          map[string]string
	LockTTL             time.Duration
	AllowPromotionCodes bool
}

type BillingService struct {
	gateway             payment.Gateway
	subscriptionService *SubscriptionService
	userRepository      repository.UserRepository
	eventRepository     repository.WebhookEventRepository
	locker              lock.Locker
	publisher           queue.Publisher
	emailService        *EmailService
	metrics             *metrics.Metrics
	opts                BillingOptions
}

func NewBillingService(
	gateway payment.Gateway,
	subscriptionService *SubscriptionService,
	userRepository repository.UserRepository,
	eventRepository repository.WebhookEventRepository,
	locker lock.Locker,
	publisher queue.Publisher,
	emailService *EmailService,
	m *metrics.Metrics,
	opts BillingOptions,
) *BillingService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 30 * time.Second
	}
	if opts.PriceTiers == nil {
		opts.PriceTiers = map[string]string{}
	}

	return &BillingService{
		gateway:             gateway,
		subscriptionService: subscriptionService,
		userRepository:      userRepository,
		eventRepository:     eventRepository,
		locker:              locker,
		publisher:           publisher,
		emailService:        emailService,
		metrics:             m,
		opts:                opts,
	}
}

func (s *BillingService) Mode() string {
	return s.gateway.Mode()
}

// InitiateCheckout makes sure the user has exactly one processor customer, then opens a
// checkout session for the requested price.
func (s *BillingService) InitiateCheckout(ctx context.Context, user *model.User, req CheckoutRequest) (*payment.CheckoutSession, error) {
	customerID, err := s.customerFor(ctx, user)
	if err != nil {
		s.metrics.ObserveCheckout(checkoutResult(err))
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, payment.CheckoutParams{
		UserID:              user.ID,
		CustomerID:          customerID,
		PriceID:             req.PriceID,
		Tier:                s.tierForPrice(req.PriceID),
		SuccessURL:          req.SuccessURL,
		CancelURL:           req.CancelURL,
		AllowPromotionCodes: s.opts.AllowPromotionCodes,
	})
	if err != nil {
		s.metrics.ObserveCheckout(checkoutResult(err))
		slog.Error("checkout session failed", "error", err, "user_id", user.ID, "price_id", req.PriceID)
		return nil, err
	}

	s.metrics.ObserveCheckout(metrics.ResultSuccess)
	return session, nil
}

// customerFor returns the user's customer id, creating and persisting one under the
// per-user lock when there is none yet.
func (s *BillingService) customerFor(ctx context.Context, user *model.User) (string, error) {
	release, err := s.lockCustomer(ctx, user.ID)
	if err != nil {
		return "", err
	}
	defer release()

	sub, err := s.subscriptionService.Subscription(ctx, user.ID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return "", err
	}
	if sub != nil && sub.HasCustomer() {
		return *sub.StripeCustomerID, nil
	}

	customerID, err := s.gateway.CreateCustomer(ctx, payment.CustomerParams{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.FullName,
	})
	if err != nil {
		slog.Error("customer creation failed", "error", err, "user_id", user.ID)
		return "", err
	}
	s.metrics.ObserveCustomerCreated()

	return s.subscriptionService.LinkCustomer(ctx, user.ID, customerID)
}

// lockCustomer waits at most one lease for the user's customer lock. Running out of that
// wait is contention and fails the checkout. If the lock backend itself is failing,
// checkout proceeds unlocked and relies on the unique constraints.
func (s *BillingService) lockCustomer(ctx context.Context, userID int64) (func(), error) {
	key := "billing:customer:" + strconv.FormatInt(userID, 10)

	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTTL)
	defer cancel()

	release, err := s.locker.Lock(lockCtx, key, s.opts.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) || (err != nil && lockCtx.Err() != nil) {
		return nil, fmt.Errorf("failed to acquire customer lock: %w", err)
	}
	if err != nil {
		slog.Warn("customer lock unavailable, continuing without it", "error", err, "user_id", userID)
		return func() {}, nil
	}

	return release, nil
}

// SubscriptionStatus never fails for a user without a row: they are free/active.
func (s *BillingService) SubscriptionStatus(ctx context.Context, userID int64) (model.SubscriptionStatus, error) {
	return s.subscriptionService.Status(ctx, userID)
}

// CustomerPortal returns a billing portal URL for users who have checked out before.
func (s *BillingService) CustomerPortal(ctx context.Context, user *model.User, returnURL string) (string, error) {
	sub, err := s.subscriptionService.Subscription(ctx, user.ID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return "", ErrNoCustomer
	}
	if err != nil {
		return "", err
	}
	if !sub.HasCustomer() {
		return "", ErrNoCustomer
	}

	url, err := s.gateway.CreatePortalSession(ctx, *sub.StripeCustomerID, returnURL)
	if err != nil {
		slog.Error("portal session failed", "error", err, "user_id", user.ID)
		return "", err
	}

	return url, nil
}

// HandleWebhook verifies and applies one processor event. Verification failures return
// payment.ErrInvalidPayload or payment.ErrInvalidSignature and change nothing.
// A nil error acknowledges the delivery; any other error asks the processor to redeliver.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.VerifyWebhook(payload, signature)
	if err != nil {
		s.metrics.ObserveWebhook("", metrics.ResultRejected)
		slog.Warn("webhook rejected", "error", err)
		return err
	}

	log := slog.With("event_id", event.ID, "event_type", event.Type)

	seen, err := s.eventRepository.Exists(ctx, event.ID)
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, metrics.ResultError)
		return fmt.Errorf("failed to check webhook event: %w", err)
	}
	if seen {
		s.metrics.ObserveWebhook(event.Type, metrics.ResultDuplicate)
		log.Info("webhook duplicate delivery, skipping")
		return nil
	}

	log.Info("webhook received", "livemode", event.Livemode)

	sub, err := s.dispatch(ctx, event)
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, metrics.ResultError)
		log.Error("webhook processing failed", "error", err)
		return err
	}

	_, err = s.eventRepository.Record(ctx, event.ID, event.Type)
	if err != nil {
		s.metrics.ObserveWebhook(event.Type, metrics.ResultError)
		return fmt.Errorf("failed to record webhook event: %w", err)
	}

	if sub == nil {
		s.metrics.ObserveWebhook(event.Type, metrics.ResultIgnored)
		return nil
	}

	s.metrics.ObserveWebhook(event.Type, metrics.ResultApplied)
	s.publish(ctx, event, sub)
	return nil
}

// dispatch applies the event and returns the row it changed, or nil when nothing changed.
func (s *BillingService) dispatch(ctx context.Context, event *payment.Event) (*model.Subscription, error) {
	switch event.Type {
	case EventCheckoutSessionCompleted:
		return s.handleCheckoutSessionCompleted(ctx, event.Data)
	case EventSubscriptionCreated, EventSubscriptionUpdated:
		return s.handleSubscriptionChanged(ctx, event.Data)
	case EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event.Data)
	case EventInvoicePaymentFailed:
		return nil, s.handleInvoicePaymentFailed(ctx, event.Data)
	default:
		slog.Warn("webhook unhandled event type", "event_type", event.Type, "event_id", event.ID)
		return nil, nil
	}
}

type checkoutSessionObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID                 string            `json:"id"`
	Customer           string            `json:"customer"`
	Status             string            `json:"status"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	Metadata           map[string]string `json:"metadata"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type invoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (s *BillingService) handleCheckoutSessionCompleted(ctx context.Context, data json.RawMessage) (*model.Subscription, error) {
	var session checkoutSessionObject
	err := json.Unmarshal(data, &session)
	if err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}

	sub, err := s.resolveCheckout(ctx, session)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		slog.Warn("checkout session has no matching user, skipping",
			"session_id", session.ID,
			"customer_id", session.Customer,
			"client_reference_id", session.ClientReferenceID,
		)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	wasPaid := sub.IsPaid()
	// Subscription events for the same subscription own its status. A checkout event
	// delivered after them must not roll a past_due or canceled row back to active.
	tracked := session.Subscription != "" && sub.StripeSubscriptionID != nil &&
		*sub.StripeSubscriptionID == session.Subscription

	if !sub.HasCustomer() && session.Customer != "" {
		sub.StripeCustomerID = &session.Customer
	}
	if session.Subscription != "" {
		sub.StripeSubscriptionID = &session.Subscription
	}

	tier := session.Metadata["tier"]
	if tier == "" {
		tier = s.tierForPrice(session.Metadata["price_id"])
	}

	switch {
	case !tracked:
		sub.Tier = tier
		sub.Status = checkoutStatus(session.PaymentStatus)
	case sub.Tier == model.TierFree && sub.IsActive():
		// The subscription event could not map its price to a tier.
		sub.Tier = tier
	}

	err = s.subscriptionService.UpdateSubscription(ctx, sub)
	if errors.Is(err, repository.ErrDuplicateCustomer) {
		slog.Error("checkout customer belongs to another user, skipping",
			"session_id", session.ID, "customer_id", session.Customer, "user_id", sub.UserID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	slog.Info("checkout completed", "user_id", sub.UserID, "tier", sub.Tier, "status", sub.Status)

	if !wasPaid && sub.IsPaid() {
		s.notify(ctx, sub.UserID, func(user *model.User) error {
			return s.emailService.SendSubscriptionActivatedEmail(ctx, user.Email, user.DisplayName(), sub.Tier)
		})
	}

	return sub, nil
}

func checkoutStatus(paymentStatus string) string {
	switch paymentStatus {
	case "paid", "no_payment_required":
		return model.StatusActive
	default:
		return model.StatusIncomplete
	}
}

// resolveCheckout prefers the customer on the session and falls back to the user id
// we put on the session ourselves, creating the row for that user when needed.
func (s *BillingService) resolveCheckout(ctx context.Context, session checkoutSessionObject) (*model.Subscription, error) {
	sub, err := s.subscriptionService.Resolve(ctx, "", session.Customer)
	if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return sub, err
	}

	ref := session.ClientReferenceID
	if ref == "" {
		ref = session.Metadata["user_id"]
	}
	userID, parseErr := strconv.ParseInt(ref, 10, 64)
	if parseErr != nil {
		return nil, repository.ErrSubscriptionNotFound
	}

	_, err = s.userRepository.ByID(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, repository.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return s.subscriptionService.EnsureSubscription(ctx, userID)
}

func (s *BillingService) handleSubscriptionChanged(ctx context.Context, data json.RawMessage) (*model.Subscription, error) {
	var obj subscriptionObject
	err := json.Unmarshal(data, &obj)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subscription: %w", err)
	}

	sub, err := s.subscriptionService.Resolve(ctx, obj.ID, obj.Customer)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		slog.Warn("subscription has no matching row, skipping", "subscription_id", obj.ID, "customer_id", obj.Customer)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	sub.StripeSubscriptionID = &obj.ID
	if obj.Status != "" {
		sub.Status = obj.Status
	}

	start, end := obj.CurrentPeriodStart, obj.CurrentPeriodEnd
	if len(obj.Items.Data) > 0 {
		item := obj.Items.Data[0]
		if tier, ok := s.opts.PriceTiers[item.Price.ID]; ok {
			sub.Tier = tier
		}
		if start == 0 {
			start = item.CurrentPeriodStart
		}
		if end == 0 {
			end = item.CurrentPeriodEnd
		}
	}
	if start > 0 {
		sub.CurrentPeriodStart = unixTime(start)
	}
	if end > 0 {
		sub.CurrentPeriodEnd = unixTime(end)
	}

	err = s.subscriptionService.UpdateSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}

	slog.Info("subscription updated", "user_id", sub.UserID, "subscription_id", obj.ID, "status", sub.Status, "tier", sub.Tier)
	return sub, nil
}

func (s *BillingService) handleSubscriptionDeleted(ctx context.Context, data json.RawMessage) (*model.Subscription, error) {
	var obj subscriptionObject
	err := json.Unmarshal(data, &obj)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subscription: %w", err)
	}

	sub, err := s.subscriptionService.Resolve(ctx, obj.ID, obj.Customer)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		slog.Warn("deleted subscription has no matching row, skipping", "subscription_id", obj.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	wasCanceled := sub.Status == model.StatusCanceled && sub.Tier == model.TierFree

	err = s.subscriptionService.Cancel(ctx, sub)
	if err != nil {
		return nil, err
	}

	slog.Info("subscription canceled, downgraded to free", "user_id", sub.UserID, "subscription_id", obj.ID)

	if !wasCanceled {
		s.notify(ctx, sub.UserID, func(user *model.User) error {
			return s.emailService.SendSubscriptionCanceledEmail(ctx, user.Email, user.DisplayName())
		})
	}

	return sub, nil
}

func (s *BillingService) handleInvoicePaymentFailed(ctx context.Context, data json.RawMessage) error {
	var invoice invoiceObject
	err := json.Unmarshal(data, &invoice)
	if err != nil {
		return fmt.Errorf("failed to parse invoice: %w", err)
	}

	subscriptionID := invoice.Subscription
	if subscriptionID == "" {
		subscriptionID = invoice.Parent.SubscriptionDetails.Subscription
	}
	if subscriptionID == "" {
		return nil
	}

	sub, err := s.subscriptionService.Resolve(ctx, subscriptionID, invoice.Customer)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		slog.Warn("failed invoice has unknown subscription, skipping", "subscription_id", subscriptionID)
		return nil
	}
	if err != nil {
		return err
	}

	// The processor retries the charge and reports the outcome as subscription.updated.
	slog.Warn("invoice payment failed", "user_id", sub.UserID, "subscription_id", subscriptionID, "invoice_id", invoice.ID)
	return nil
}

func (s *BillingService) publish(ctx context.Context, event *payment.Event, sub *model.Subscription) {
	msg := queue.SubscriptionUpdatedEvent{
		EventID:          event.ID,
		EventType:        event.Type,
		UserID:           sub.UserID,
		Tier:             sub.Tier,
		Status:           sub.Status,
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
		OccurredAt:       event.Created,
	}
	if sub.StripeCustomerID != nil {
		msg.CustomerID = *sub.StripeCustomerID
	}
	if sub.StripeSubscriptionID != nil {
		msg.SubscriptionID = *sub.StripeSubscriptionID
	}

	err := s.publisher.PublishSubscriptionUpdated(ctx, msg)
	if err != nil {
		slog.Warn("failed to publish subscription update", "error", err, "event_id", event.ID, "user_id", sub.UserID)
	}
}

// notify loads the user and runs send, logging failures. Emails never fail a webhook.
func (s *BillingService) notify(ctx context.Context, userID int64, send func(*model.User) error) {
	if s.emailService == nil {
		return
	}

	user, err := s.userRepository.ByID(ctx, userID)
	if err != nil {
		slog.Warn("failed to load user for billing email", "error", err, "user_id", userID)
		return
	}

	err = send(user)
	if err != nil {
		slog.Warn("failed to send billing email", "error", err, "user_id", userID)
	}
}

func (s *BillingService) tierForPrice(priceID string) string {
	if tier, ok := s.opts.PriceTiers[priceID]; ok {
		return tier
	}
	return model.TierPremium
}

func checkoutResult(err error) string {
	var gerr *payment.GatewayError
	if errors.As(err, &gerr) {
		return metrics.ResultGateway
	}
	return metrics.ResultError
}

func unixTime(sec int64) *time.Time {
	t := time.Unix(sec, 0).UTC()
	return &t
}
