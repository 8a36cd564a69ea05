package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/survivorsoul/soulsongs/internal/db"
	"github.com/survivorsoul/soulsongs/internal/model"
	"github.com/survivorsoul/soulsongs/internal/queue"
	"github.com/survivorsoul/soulsongs/internal/repository"
	"github.com/survivorsoul/soulsongs/internal/service/payment"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conn := filepath.Join(t.TempDir(), "service.db") + "?_pragma=foreign_keys(1)"
	database, err := db.Init(context.Background(), db.DriverSQLite, conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, db.DriverSQLite))
	return database
}

func createUser(t *testing.T, repo repository.UserRepository, email string) *model.User {
	t.Helper()

	hash := "hash"
	user := &model.User{Email: email, HashedPassword: &hash, FullName: "Test User", IsActive: true}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func devEmailService() *EmailService {
	return NewEmailService("", "noreply@example.com", "http://localhost:8003", "Soul Songs", true)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateCustomer(ctx context.Context, params payment.CustomerParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) CreateCheckoutSession(ctx context.Context, params payment.CheckoutParams) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, params)
	session, _ := args.Get(0).(*payment.CheckoutSession)
	return session, args.Error(1)
}

func (m *mockGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	args := m.Called(ctx, customerID, returnURL)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) VerifyWebhook(payload []byte, signature string) (*payment.Event, error) {
	args := m.Called(payload, signature)
	event, _ := args.Get(0).(*payment.Event)
	return event, args.Error(1)
}

func (m *mockGateway) Mode() string {
	return "test"
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []queue.SubscriptionUpdatedEvent
	err    error
}

func (p *recordingPublisher) PublishSubscriptionUpdated(_ context.Context, event queue.SubscriptionUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) Close() error {
	return nil
}

func (p *recordingPublisher) published() []queue.SubscriptionUpdatedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.SubscriptionUpdatedEvent(nil), p.events...)
}
