package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setStripeKeys(t *testing.T) {
	t.Helper()
	t.Setenv("STRIPE_TEST_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_LIVE_SECRET_KEY", "sk_live_123")
	t.Setenv("STRIPE_TEST_PUBLISHABLE_KEY", "pk_test_123")
	t.Setenv("STRIPE_LIVE_PUBLISHABLE_KEY", "pk_live_123")
}

func TestLoad_StripeModeSelectsKeys(t *testing.T) {
	tests := []struct {
		name            string
		mode            string
		wantSecret      string
		wantPublishable string
		wantMode        string
	}{
		{name: "test mode", mode: "test", wantSecret: "sk_test_123", wantPublishable: "pk_test_123", wantMode: "test"},
		{name: "live mode", mode: "live", wantSecret: "sk_live_123", wantPublishable: "pk_live_123", wantMode: "live"},
		{name: "unset falls back to test", mode: "", wantSecret: "sk_test_123", wantPublishable: "pk_test_123", wantMode: "test"},
		{name: "unknown value falls back to test", mode: "production", wantSecret: "sk_test_123", wantPublishable: "pk_test_123", wantMode: "test"},
		{name: "mode is case sensitive", mode: "LIVE", wantSecret: "sk_test_123", wantPublishable: "pk_test_123", wantMode: "test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setStripeKeys(t)
			t.Setenv("STRIPE_MODE", tt.mode)

			cfg := Load()

			assert.Equal(t, tt.wantSecret, cfg.StripeSecretKey())
			assert.Equal(t, tt.wantPublishable, cfg.StripePublishableKey())
			assert.Equal(t, tt.wantMode, cfg.StripeModeName())
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("PORT", "")
	t.Setenv("JWT_EXPIRATION_MINUTES", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()

	assert.Equal(t, "Survivor Soul Songs", cfg.AppName)
	assert.Equal(t, "8003", cfg.Port)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 1440*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 5*time.Minute, cfg.StripeWebhookTolerance)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.StorageEnabled())
}

func TestLoad_PriceTiers(t *testing.T) {
	t.Setenv("STRIPE_PRICE_TIERS", "price_a:premium, price_b:pro,broken,:x")

	cfg := Load()

	require.Len(t, cfg.StripePriceTiers, 2)
	assert.Equal(t, "premium", cfg.StripePriceTiers["price_a"])
	assert.Equal(t, "pro", cfg.StripePriceTiers["price_b"])
}

func TestLoad_InvalidNumbersUseDefaults(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_MINUTES", "soon")
	t.Setenv("STRIPE_WEBHOOK_TOLERANCE", "a while")

	cfg := Load()

	assert.Equal(t, 1440*time.Minute, cfg.JWTExpiry)
	assert.Equal(t, 5*time.Minute, cfg.StripeWebhookTolerance)
}

func TestSanitized_DropsSecrets(t *testing.T) {
	cfg := &Config{
		AppName:             "x",
		JWTSecret:           "secret",
		StripeMode:          "typo",
		StripeTestSecretKey: "sk_test",
		StripeWebhookSecret: "whsec",
		GoogleClientSecret:  "gsecret",
		S3SecretKey:         "s3secret",
	}

	safe := cfg.Sanitized()

	assert.Equal(t, "x", safe.AppName)
	assert.Equal(t, "test", safe.StripeMode)
	assert.Empty(t, safe.JWTSecret)
	assert.Empty(t, safe.StripeTestSecretKey)
	assert.Empty(t, safe.StripeWebhookSecret)
	assert.Empty(t, safe.GoogleClientSecret)
	assert.Empty(t, safe.S3SecretKey)
}
