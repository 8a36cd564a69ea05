package payment

import (
	"log/slog"

	"github.com/survivorsoul/soulsongs/internal/config"
)

// NewGateway builds the Stripe gateway for the configured mode.
// Missing credentials are logged rather than fatal; calls then fail as GatewayErrors.
func NewGateway(cfg *config.Config) Gateway {
	mode := cfg.StripeModeName()

	if cfg.StripeSecretKey() == "" {
		slog.Warn("stripe secret key missing, billing calls will fail", "mode", mode)
	}
	if cfg.StripeWebhookSecret == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET missing, webhooks will be rejected")
	}

	return NewStripeGateway(StripeConfig{
		SecretKey:        cfg.StripeSecretKey(),
		WebhookSecret:    cfg.StripeWebhookSecret,
		WebhookTolerance: cfg.StripeWebhookTolerance,
		Mode:             mode,
	})
}
