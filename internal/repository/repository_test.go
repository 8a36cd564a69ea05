package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/survivorsoul/soulsongs/internal/db"
	"github.com/survivorsoul/soulsongs/internal/model"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conn := filepath.Join(t.TempDir(), "repo.db") + "?_pragma=foreign_keys(1)"
	database, err := db.Init(context.Background(), db.DriverSQLite, conn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, db.DriverSQLite))
	return database
}

func createUser(t *testing.T, repo UserRepository, email string) *model.User {
	t.Helper()

	hash := "hash"
	user := &model.User{Email: email, HashedPassword: &hash, FullName: "Test User", IsActive: true}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func strPtr(s string) *string { return &s }
