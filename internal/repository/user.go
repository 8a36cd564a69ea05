package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/survivorsoul/soulsongs/internal/model"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateEmail    = errors.New("email already exists")
	ErrDuplicateGoogleID = errors.New("google account already linked")
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	ByID(ctx context.Context, id int64) (*model.User, error)
	ByEmail(ctx context.Context, email string) (*model.User, error)
	ByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

type userRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// Create inserts the user and fills in its generated ID.
func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	query := `
		INSERT INTO users (
			email, hashed_password, full_name, role, google_id,
			profile_image, phone, is_active, is_verified, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	err := r.db.QueryRowxContext(ctx, query,
		user.Email,
		user.HashedPassword,
		user.FullName,
		user.Role,
		user.GoogleID,
		user.ProfileImage,
		user.Phone,
		user.IsActive,
		user.IsVerified,
		user.CreatedAt,
	).Scan(&user.ID)
	if err != nil {
		return mapUserWriteError(err)
	}

	return nil
}

func (r *userRepository) ByID(ctx context.Context, id int64) (*model.User, error) {
	return r.one(ctx, `SELECT * FROM users WHERE id = $1`, id)
}

func (r *userRepository) ByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.one(ctx, `SELECT * FROM users WHERE email = $1`, email)
}

func (r *userRepository) ByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.one(ctx, `SELECT * FROM users WHERE google_id = $1`, googleID)
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.UpdatedAt = &now

	query := `
		UPDATE users
		SET email = $1,
		    hashed_password = $2,
		    full_name = $3,
		    role = $4,
		    google_id = $5,
		    profile_image = $6,
		    phone = $7,
		    is_active = $8,
		    is_verified = $9,
		    updated_at = $10
		WHERE id = $11
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.HashedPassword,
		user.FullName,
		user.Role,
		user.GoogleID,
		user.ProfileImage,
		user.Phone,
		user.IsActive,
		user.IsVerified,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return mapUserWriteError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *userRepository) one(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}

	err := r.db.GetContext(ctx, user, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	return user, nil
}

func mapUserWriteError(err error) error {
	if !isUniqueViolation(err) {
		return err
	}
	if violates(err, "users", "google_id") {
		return ErrDuplicateGoogleID
	}
	return ErrDuplicateEmail
}
