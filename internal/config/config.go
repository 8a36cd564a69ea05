package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StripeModeTest = "test"
	StripeModeLive = "live"

	defaultJWTSecret = "change-me-to-a-random-secret"
)

type Config struct {
	// Application
	AppName     string
	AppEnv      string
	AppURL      string
	Port        string
	CORSOrigins []string

	// Database
	DBDriver    string
	DatabaseURL string

	// Security
	JWTSecret    string
	JWTAlgorithm string
	JWTExpiry    time.Duration

	// OAuth
	GoogleClientID     string
	GoogleClientSecret string

	// External AI API (recognized, not used by the server)
	OpenAIAPIKey string

	// Coordination and messaging (optional)
	RedisURL    string
	RabbitMQURL string

	// Stripe
	StripeMode                 string
	StripeTestSecretKey        string
	StripeLiveSecretKey        string
	StripeTestPublishableKey   string
	StripeLivePublishableKey   string
	StripeWebhookSecret        string
	StripeWebhookTolerance     time.Duration
	StripePriceTiers           map[string]string // price id -> local tier
	StripeCustomerLockDuration time.Duration
	StripeAllowPromotionCodes  bool

	// Email
	EmailFrom    string
	ResendAPIKey string

	// Observability (optional)
	SentryDSN string

	// Storage (optional, S3-compatible; avatar uploads are disabled when S3_BUCKET is empty)
	S3Region            string
	S3Bucket            string
	S3AccessKey         string
	S3SecretKey         string
	S3Endpoint          string
	S3PresignExpiry     time.Duration
	AvatarMaxUploadSize int64
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName:     envString("APP_NAME", "Survivor Soul Songs"),
		AppEnv:      envString("APP_ENV", "development"),
		AppURL:      envString("APP_URL", "http://localhost:8003"),
		Port:        envString("PORT", "8003"),
		CORSOrigins: envList("CORS_ORIGINS", []string{"*"}),

		// Database
		DBDriver:    envString("DB_DRIVER", "pgx"),
		DatabaseURL: envString("DATABASE_URL", "postgresql://appuser:password@db:5432/survivorsoul"),

		// Security
		JWTSecret:    envString("JWT_SECRET", defaultJWTSecret),
		JWTAlgorithm: envString("JWT_ALGORITHM", "HS256"),
		JWTExpiry:    time.Duration(envInt("JWT_EXPIRATION_MINUTES", 1440)) * time.Minute,

		// OAuth
		GoogleClientID:     envString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: envString("GOOGLE_CLIENT_SECRET", ""),

		OpenAIAPIKey: envString("OPENAI_API_KEY", ""),

		RedisURL:    envString("REDIS_URL", "redis://redis:6379/0"),
		RabbitMQURL: envString("RABBITMQ_URL", ""),

		// Stripe
		StripeMode:                 envString("STRIPE_MODE", StripeModeTest),
		StripeTestSecretKey:        envString("STRIPE_TEST_SECRET_KEY", ""),
		StripeLiveSecretKey:        envString("STRIPE_LIVE_SECRET_KEY", ""),
		StripeTestPublishableKey:   envString("STRIPE_TEST_PUBLISHABLE_KEY", ""),
		StripeLivePublishableKey:   envString("STRIPE_LIVE_PUBLISHABLE_KEY", ""),
		StripeWebhookSecret:        envString("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookTolerance:     envDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute),
		StripePriceTiers:           envMap("STRIPE_PRICE_TIERS"),
		StripeCustomerLockDuration: envDuration("STRIPE_CUSTOMER_LOCK_DURATION", 30*time.Second),
		StripeAllowPromotionCodes:  envBool("STRIPE_ALLOW_PROMOTION_CODES", false),

		// Email (log mode when RESEND_API_KEY is empty or in development)
		EmailFrom:    envString("EMAIL_FROM", "noreply@survivorsoulsongs.com"),
		ResendAPIKey: envString("RESEND_API_KEY", ""),

		SentryDSN: envString("SENTRY_DSN", ""),

		S3Region:            envString("S3_REGION", "us-east-1"),
		S3Bucket:            envString("S3_BUCKET", ""),
		S3AccessKey:         envString("S3_ACCESS_KEY", ""),
		S3SecretKey:         envString("S3_SECRET_KEY", ""),
		S3Endpoint:          envString("S3_ENDPOINT", ""),
		S3PresignExpiry:     envDuration("S3_PRESIGN_EXPIRY", 168*time.Hour),
		AvatarMaxUploadSize: int64(envInt("AVATAR_MAX_UPLOAD_SIZE", 5<<20)),
	}

	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction refuses to boot a production deployment with development secrets.
func validateProduction(cfg *Config) {
	if cfg.JWTSecret == defaultJWTSecret {
		slog.Error("production deployment requires JWT_SECRET",
			"hint", "set APP_ENV=development for local testing with the default secret")
		os.Exit(1)
	}
	if cfg.StripeWebhookSecret == "" {
		slog.Warn("STRIPE_WEBHOOK_SECRET is empty, every webhook delivery will be rejected")
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config invalid bool, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

// envList splits a comma separated value, dropping blanks.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// envMap parses "k1:v1,k2:v2". Malformed pairs are skipped with a warning.
func envMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range envList(key, nil) {
		k, v, ok := strings.Cut(pair, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			slog.Warn("config invalid map entry, skipping", "key", key, "entry", pair)
			continue
		}
		out[k] = v
	}
	return out
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// IsStripeLive reports whether live credentials are in use.
// Only the exact value "live" selects them; anything else falls back to test.
func (c *Config) IsStripeLive() bool {
	return c.StripeMode == StripeModeLive
}

// StripeModeName returns the effective mode, never an unrecognized raw value.
func (c *Config) StripeModeName() string {
	if c.IsStripeLive() {
		return StripeModeLive
	}
	return StripeModeTest
}

func (c *Config) StripeSecretKey() string {
	if c.IsStripeLive() {
		return c.StripeLiveSecretKey
	}
	return c.StripeTestSecretKey
}

func (c *Config) StripePublishableKey() string {
	if c.IsStripeLive() {
		return c.StripeLivePublishableKey
	}
	return c.StripeTestPublishableKey
}

// StorageEnabled reports whether avatar uploads can be served.
func (c *Config) StorageEnabled() bool {
	return c.S3Bucket != ""
}

// Sanitized returns a copy of the config with only public/safe fields.
// Secrets and credentials are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:                  c.AppName,
		AppEnv:                   c.AppEnv,
		AppURL:                   c.AppURL,
		Port:                     c.Port,
		CORSOrigins:              c.CORSOrigins,
		DBDriver:                 c.DBDriver,
		JWTAlgorithm:             c.JWTAlgorithm,
		JWTExpiry:                c.JWTExpiry,
		GoogleClientID:           c.GoogleClientID,
		StripeMode:               c.StripeModeName(),
		StripeTestPublishableKey: c.StripeTestPublishableKey,
		StripeLivePublishableKey: c.StripeLivePublishableKey,
		EmailFrom:                c.EmailFrom,
		S3Region:                 c.S3Region,
		S3Bucket:                 c.S3Bucket,
		S3Endpoint:               c.S3Endpoint,
	}
}
