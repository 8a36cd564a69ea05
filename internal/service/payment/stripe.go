package payment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
)

type StripeConfig struct {
	SecretKey        string
	WebhookSecret    string
	WebhookTolerance time.Duration
	Mode             string
	// BackendURL overrides the API base URL, e.g. for stripe-mock.
	BackendURL string
}

// StripeGateway talks to Stripe through a per-instance client, so test and live
// gateways can coexist in one process.
type StripeGateway struct {
	api              *client.API
	webhookSecret    string
	webhookTolerance time.Duration
	mode             string
}

func NewStripeGateway(cfg StripeConfig) *StripeGateway {
	backendConfig := &stripe.BackendConfig{
		// Retries are the caller's decision.
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     slogLeveledLogger{},
	}
	if cfg.BackendURL != "" {
		backendConfig.URL = stripe.String(cfg.BackendURL)
	}

	slog.Info("stripe gateway initialized", "mode", cfg.Mode)

	return &StripeGateway{
		api:              client.New(cfg.SecretKey, stripe.NewBackendsWithConfig(backendConfig)),
		webhookSecret:    cfg.WebhookSecret,
		webhookTolerance: cfg.WebhookTolerance,
		mode:             cfg.Mode,
	}
}

func (g *StripeGateway) Mode() string {
	return g.mode
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	userID := strconv.FormatInt(p.UserID, 10)

	params := &stripe.CustomerParams{
		Email: stripe.String(p.Email),
		Name:  stripe.String(p.Name),
	}
	params.Context = ctx
	params.AddMetadata("user_id", userID)
	params.SetIdempotencyKey(customerIdempotencyKey(p))

	cus, err := g.api.Customers.New(params)
	if err != nil {
		return "", classify("create customer", err)
	}

	slog.Info("stripe customer created", "user_id", p.UserID, "customer_id", cus.ID)
	return cus.ID, nil
}

// customerIdempotencyKey is stable for a user while the customer details stay the same.
// Stripe rejects a reused key sent with different parameters, so a profile edit between
// retries has to produce a new key.
func customerIdempotencyKey(p CustomerParams) string {
	sum := sha256.Sum256([]byte(p.Email + "\x00" + p.Name))
	return "customer-create-" + strconv.FormatInt(p.UserID, 10) + "-" + hex.EncodeToString(sum[:8])
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	mode := p.Mode
	if mode == "" {
		mode = string(stripe.CheckoutSessionModeSubscription)
	}
	userID := strconv.FormatInt(p.UserID, 10)
	metadata := map[string]string{
		"user_id":  userID,
		"price_id": p.PriceID,
		"tier":     p.Tier,
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(p.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(mode),
		SuccessURL:        stripe.String(p.SuccessURL),
		CancelURL:         stripe.String(p.CancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata:          metadata,
	}
	if p.AllowPromotionCodes {
		params.AllowPromotionCodes = stripe.Bool(true)
	}
	if mode == string(stripe.CheckoutSessionModeSubscription) {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		}
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify("create checkout session", err)
	}

	slog.Info("stripe checkout created", "user_id", p.UserID, "price_id", p.PriceID, "session_id", sess.ID)
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	portalSession, err := g.api.BillingPortalSessions.New(params)
	if err != nil {
		return "", classify("create portal session", err)
	}

	slog.Info("stripe customer portal session created", "customer_id", customerID)
	return portalSession.URL, nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	// Parse first so a malformed body is reported as such even when unsigned.
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	err := json.Unmarshal(payload, &envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if envelope.ID == "" || envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrInvalidPayload)
	}

	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}

	// API version mismatches are ignored: payload fields are decoded leniently.
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{
			Tolerance:                g.webhookTolerance,
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if event.Data == nil {
		return nil, fmt.Errorf("%w: event has no data", ErrInvalidPayload)
	}

	return &Event{
		ID:       event.ID,
		Type:     string(event.Type),
		Created:  time.Unix(event.Created, 0).UTC(),
		Livemode: event.Livemode,
		Data:     event.Data.Raw,
	}, nil
}

// slogLeveledLogger routes stripe-go's internal logging into slog.
// Request failures are already surfaced as errors, so they log at Warn.
type slogLeveledLogger struct{}

func (slogLeveledLogger) Debugf(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLeveledLogger) Infof(format string, v ...interface{}) {
	slog.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLeveledLogger) Warnf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (slogLeveledLogger) Errorf(format string, v ...interface{}) {
	slog.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}
