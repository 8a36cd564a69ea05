package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/survivorsoul/soulsongs/internal/app"
	"github.com/survivorsoul/soulsongs/internal/handler"
	"github.com/survivorsoul/soulsongs/internal/middleware"
)

// SetupRoutes builds the HTTP handler. ctx bounds background cleanup of the rate limiter.
func SetupRoutes(ctx context.Context, app *app.App) http.Handler {
	// Handlers
	health := handler.NewHealthHandler(app.Cfg.AppName, app.Cfg.StripeModeName())
	auth := handler.NewAuthHandler(app.AuthService, app.UserService, app.Cfg)
	billing := handler.NewBillingHandler(app.BillingService)

	// 5 attempts per 15 minutes per IP
	authLimiter := middleware.NewRateLimiter(5, 15*time.Minute)
	go authLimiter.Run(ctx, 5*time.Minute)
	rateLimit := middleware.RateLimit(authLimiter)

	mux := http.NewServeMux()

	// ============================================================================
	// PUBLIC ROUTES
	// ============================================================================

	mux.HandleFunc("GET /health", health.Health)
	mux.Handle("GET /metrics", app.Metrics.Handler())

	// Auth
	mux.HandleFunc("POST /api/auth/register", rateLimit(auth.Register))
	mux.HandleFunc("POST /api/auth/login", rateLimit(auth.Login))
	mux.HandleFunc("GET /api/auth/google", auth.GoogleAuth)
	mux.HandleFunc("GET /api/auth/google/callback", auth.GoogleCallback)

	// Processor webhooks authenticate by signature, not bearer token
	mux.HandleFunc("POST /api/billing/webhook", billing.Webhook)

	// ============================================================================
	// PROTECTED ROUTES
	// ============================================================================

	mux.HandleFunc("GET /api/auth/me", middleware.RequireAuth(auth.Me))
	mux.HandleFunc("PATCH /api/auth/me", middleware.RequireAuth(auth.UpdateMe))
	mux.HandleFunc("POST /api/auth/me/avatar", middleware.RequireAuth(auth.UploadAvatar))

	mux.HandleFunc("POST /api/billing/create-checkout-session", middleware.RequireAuth(billing.CreateCheckoutSession))
	mux.HandleFunc("GET /api/billing/subscription", middleware.RequireAuth(billing.Subscription))
	mux.HandleFunc("POST /api/billing/portal", middleware.RequireAuth(billing.Portal))

	// Metrics sits directly on the mux so it can read the matched pattern.
	return middleware.Chain(mux,
		middleware.Recover,
		middleware.RequestID,
		middleware.RequestLogging,
		middleware.CORS(app.Cfg.CORSOrigins),
		middleware.Authenticate(app.AuthService),
		middleware.Metrics(app.Metrics),
	)
}
