package payment

import (
	"context"
	"encoding/json"
	"time"
)

// Gateway isolates every call to the payment processor.
// Implementations hold no local state beyond their client and secrets.
type Gateway interface {
	// CreateCustomer registers the user with the processor and returns its customer id.
	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)

	// CreateCheckoutSession starts a hosted checkout for a single price at quantity 1.
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	// CreatePortalSession returns a URL where the customer can manage billing.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// VerifyWebhook parses the raw body and checks its signature header.
	// It fails with ErrInvalidPayload or ErrInvalidSignature.
	VerifyWebhook(payload []byte, signature string) (*Event, error)

	// Mode reports which credential set is in use ("test" or "live").
	Mode() string
}

type CustomerParams struct {
	UserID int64
	Email  string
	Name   string
}

type CheckoutParams struct {
	UserID     int64
	CustomerID string
	PriceID    string
	Tier       string
	SuccessURL string
	CancelURL  string
	Mode       string // defaults to "subscription"

	AllowPromotionCodes bool
}

type CheckoutSession struct {
	ID  string `json:"sessionId"`
	URL string `json:"url"`
}

// Event is a verified processor event. Data holds the raw event object.
type Event struct {
	ID       string
	Type     string
	Created  time.Time
	Livemode bool
	Data     json.RawMessage
}
