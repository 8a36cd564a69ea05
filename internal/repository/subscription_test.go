package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/survivorsoul/soulsongs/internal/model"
)

func TestSubscriptionRepository_CreateFree(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	users := NewUserRepository(database)
	repo := NewSubscriptionRepository(database)
	user := createUser(t, users, "a@x.com")

	sub, err := repo.CreateFree(ctx, user.ID, strPtr("cus_1"))
	require.NoError(t, err)
	assert.NotZero(t, sub.ID)

	found, err := repo.ByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TierFree, found.Tier)
	assert.Equal(t, model.StatusActive, found.Status)
	require.NotNil(t, found.StripeCustomerID)
	assert.Equal(t, "cus_1", *found.StripeCustomerID)
	assert.Nil(t, found.StripeSubscriptionID)
	assert.Nil(t, found.CurrentPeriodEnd)

	byCustomer, err := repo.ByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, sub.ID, byCustomer.ID)
}

func TestSubscriptionRepository_OneRowPerUser(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	repo := NewSubscriptionRepository(database)
	user := createUser(t, NewUserRepository(database), "a@x.com")

	_, err := repo.CreateFree(ctx, user.ID, nil)
	require.NoError(t, err)

	_, err = repo.CreateFree(ctx, user.ID, strPtr("cus_2"))
	assert.ErrorIs(t, err, ErrSubscriptionExists)
}

func TestSubscriptionRepository_CustomerLinkedOnce(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	users := NewUserRepository(database)
	repo := NewSubscriptionRepository(database)
	first := createUser(t, users, "a@x.com")
	second := createUser(t, users, "b@x.com")

	_, err := repo.CreateFree(ctx, first.ID, strPtr("cus_1"))
	require.NoError(t, err)

	_, err = repo.CreateFree(ctx, second.ID, strPtr("cus_1"))
	assert.ErrorIs(t, err, ErrDuplicateCustomer)
}

func TestSubscriptionRepository_SetCustomerIDIsCompareAndSet(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	repo := NewSubscriptionRepository(database)
	user := createUser(t, NewUserRepository(database), "a@x.com")

	_, err := repo.CreateFree(ctx, user.ID, nil)
	require.NoError(t, err)

	won, err := repo.SetCustomerID(ctx, user.ID, "cus_first")
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.SetCustomerID(ctx, user.ID, "cus_second")
	require.NoError(t, err)
	assert.False(t, won)

	found, err := repo.ByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "cus_first", *found.StripeCustomerID)
}

func TestSubscriptionRepository_SetCustomerIDWithoutRow(t *testing.T) {
	repo := NewSubscriptionRepository(newTestDB(t))

	won, err := repo.SetCustomerID(context.Background(), 42, "cus_1")

	require.NoError(t, err)
	assert.False(t, won)
}

func TestSubscriptionRepository_Update(t *testing.T) {
	ctx := context.Background()
	database := newTestDB(t)
	repo := NewSubscriptionRepository(database)
	user := createUser(t, NewUserRepository(database), "a@x.com")

	sub, err := repo.CreateFree(ctx, user.ID, strPtr("cus_1"))
	require.NoError(t, err)

	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	sub.Tier = model.TierPremium
	sub.Status = model.StatusActive
	sub.StripeSubscriptionID = strPtr("sub_1")
	sub.CurrentPeriodStart = &start
	sub.CurrentPeriodEnd = &end
	require.NoError(t, repo.Update(ctx, sub))

	found, err := repo.BySubscriptionID(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, model.TierPremium, found.Tier)
	require.NotNil(t, found.CurrentPeriodEnd)
	assert.True(t, end.Equal(*found.CurrentPeriodEnd))
	require.NotNil(t, found.CurrentPeriodStart)
	assert.True(t, start.Equal(*found.CurrentPeriodStart))
	assert.NotNil(t, found.UpdatedAt)

	err = repo.Update(ctx, &model.Subscription{ID: 999, Tier: model.TierFree, Status: model.StatusActive})
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(newTestDB(t))

	_, err := repo.ByUserID(ctx, 1)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = repo.ByCustomerID(ctx, "cus_missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	_, err = repo.BySubscriptionID(ctx, "sub_missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestSubscriptionRepository_SetCustomerIDPropagatesErrors(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	repo := NewSubscriptionRepository(sqlx.NewDb(mockDB, "sqlmock"))
	mock.ExpectExec("UPDATE subscriptions").
		WithArgs("cus_1", sqlmock.AnyArg(), int64(7)).
		WillReturnError(errors.New("database is locked"))

	won, err := repo.SetCustomerID(context.Background(), 7, "cus_1")

	require.Error(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}
