package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/survivorsoul/soulsongs/internal/config"
	"github.com/survivorsoul/soulsongs/internal/db"
	"github.com/survivorsoul/soulsongs/internal/lock"
	"github.com/survivorsoul/soulsongs/internal/metrics"
	"github.com/survivorsoul/soulsongs/internal/queue"
	"github.com/survivorsoul/soulsongs/internal/repository"
	"github.com/survivorsoul/soulsongs/internal/service"
	"github.com/survivorsoul/soulsongs/internal/service/payment"
	"github.com/survivorsoul/soulsongs/internal/storage"
)

type App struct {
	Cfg                 *config.Config
	DB                  *sqlx.DB
	Redis               *redis.Client
	Publisher           queue.Publisher
	Metrics             *metrics.Metrics
	AuthService         *service.AuthService
	UserService         *service.UserService
	EmailService        *service.EmailService
	SubscriptionService *service.SubscriptionService
	BillingService      *service.BillingService
}

// Dependencies lets callers swap infrastructure, mainly for tests.
// Nil fields are built from the config.
type Dependencies struct {
	DB        *sqlx.DB
	Gateway   payment.Gateway
	Locker    lock.Locker
	Publisher queue.Publisher
	Storage   storage.Storage
	Registry  *prometheus.Registry
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	return NewWithDependencies(ctx, cfg, Dependencies{})
}

func NewWithDependencies(ctx context.Context, cfg *config.Config, deps Dependencies) (*App, error) {
	a := &App{Cfg: cfg, DB: deps.DB}

	if a.DB == nil {
		database, err := db.Init(ctx, cfg.DBDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.DB = database

		err = db.RunMigrations(database.DB, cfg.DBDriver)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Repositories
	userRepository := repository.NewUserRepository(a.DB)
	subscriptionRepository := repository.NewSubscriptionRepository(a.DB)
	webhookEventRepository := repository.NewWebhookEventRepository(a.DB)

	// Infrastructure
	locker := deps.Locker
	if locker == nil {
		locker, a.Redis = lock.New(ctx, cfg.RedisURL)
	}

	a.Publisher = deps.Publisher
	if a.Publisher == nil {
		a.Publisher = queue.New(cfg.RabbitMQURL)
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	a.Metrics = metrics.New(registry)

	fileStorage := deps.Storage
	if fileStorage == nil {
		s, err := storage.New(ctx, cfg)
		switch {
		case errors.Is(err, storage.ErrNotConfigured):
			slog.Info("S3 storage not configured, avatar uploads disabled")
		case err != nil:
			slog.Warn("S3 storage unavailable, avatar uploads disabled", "error", err)
		default:
			fileStorage = s
		}
	}

	gateway := deps.Gateway
	if gateway == nil {
		gateway = payment.NewGateway(cfg)
	}

	// Services
	a.EmailService = service.NewEmailService(
		cfg.ResendAPIKey,
		cfg.EmailFrom,
		cfg.AppURL,
		cfg.AppName,
		cfg.IsDevelopment(),
	)
	a.SubscriptionService = service.NewSubscriptionService(subscriptionRepository)
	a.AuthService = service.NewAuthService(
		userRepository,
		a.EmailService,
		cfg.JWTSecret,
		cfg.JWTAlgorithm,
		cfg.JWTExpiry,
	)
	a.UserService = service.NewUserService(userRepository, fileStorage, cfg.AvatarMaxUploadSize)
	a.BillingService = service.NewBillingService(
		gateway,
		a.SubscriptionService,
		userRepository,
		webhookEventRepository,
		locker,
		a.Publisher,
		a.EmailService,
		a.Metrics,
		service.BillingOptions{
			PriceTiers:          cfg.StripePriceTiers,
			LockTTL:             cfg.StripeCustomerLockDuration,
			AllowPromotionCodes: cfg.StripeAllowPromotionCodes,
		},
	)

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() error {
	var errs []error

	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, db.Close(a.DB))

	return errors.Join(errs...)
}
