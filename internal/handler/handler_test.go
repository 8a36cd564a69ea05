package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/survivorsoul/soulsongs/internal/ctxkeys"
	"github.com/survivorsoul/soulsongs/internal/db"
	"github.com/survivorsoul/soulsongs/internal/lock"
	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/queue"
	"github.com/survivorsoul/soulsongs/internal/repository"
	"github.com/survivorsoul/soulsongs/internal/service"
	"github.com/survivorsoul/soulsongs/internal/service/payment"
)

const testWebhookSecret = "whsec_handler_test"

type fixture struct {
	db            *sqlx.DB
	users         repository.UserRepository
	subscriptions repository.SubscriptionRepository
	authService   *service.AuthService
	billing       *BillingHandler
	stripeCalls   map[string]int
}

// newFixture wires real services against sqlite and a fake processor API.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	conn := filepath.Join(t.TempDir(), "handler.db") + "?_pragma=foreign_keys(1)"
	database, err := db.Init(context.Background(), db.DriverSQLite, conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(database.DB, db.DriverSQLite))

	f := &fixture{
		db:            database,
		users:         repository.NewUserRepository(database),
		subscriptions: repository.NewSubscriptionRepository(database),
		stripeCalls:   map[string]int{},
	}

	stripeAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.stripeCalls[key]++
		w.Header().Set("Content-Type", "application/json")

		switch key {
		case "POST /v1/customers":
			_, _ = w.Write([]byte(`{"id":"cus_handler","object":"customer"}`))
		case "POST /v1/checkout/sessions":
			_ = r.ParseForm()
			if r.PostForm.Get("line_items[0][price]") == "price_missing" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such price: 'price_missing'"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"cs_test_handler","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_handler"}`))
		case "POST /v1/billing_portal/sessions":
			_, _ = w.Write([]byte(`{"id":"bps_1","object":"billing_portal.session","url":"https://billing.stripe.com/p/session/bps_1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Unrecognized request URL"}}`))
		}
	}))
	t.Cleanup(stripeAPI.Close)

	gateway := payment.NewStripeGateway(payment.StripeConfig{
		SecretKey:        "sk_test_handler",
		WebhookSecret:    testWebhookSecret,
		WebhookTolerance: 5 * time.Minute,
		Mode:             "test",
		BackendURL:       stripeAPI.URL,
	})

	emailService := service.NewEmailService("", "noreply@example.com", "http://localhost:8003", "Soul Songs", true)
	f.authService = service.NewAuthService(f.users, emailService, "handler-secret", "HS256", time.Hour)

	billingService := service.NewBillingService(
		gateway,
		service.NewSubscriptionService(f.subscriptions),
		f.users,
		repository.NewWebhookEventRepository(database),
		lock.NewLocalLocker(),
		queue.NoopPublisher{},
		emailService,
		nil,
		service.BillingOptions{
			PriceTiers: map[string]string{"price_pro": model.TierPro},
			LockTTL:    5 * time.Second,
		},
	)
	f.billing = NewBillingHandler(billingService)

	return f
}

func (f *fixture) createUser(t *testing.T, email string) *model.User {
	t.Helper()

	hash, err := f.authService.HashPassword("correct horse battery")
	require.NoError(t, err)

	user := &model.User{Email: email, HashedPassword: &hash, FullName: "Test Listener", Role: model.RoleUser, IsActive: true}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, user *model.User) *http.Request {
	return req.WithContext(ctxkeys.WithUser(req.Context(), user))
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
