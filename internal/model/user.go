package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID             int64      `db:"id" json:"id"`
	Email          string     `db:"email" json:"email"`
	HashedPassword *string    `db:"hashed_password" json:"-"` // Nullable for OAuth-only accounts
	FullName       string     `db:"full_name" json:"full_name"`
	Role           string     `db:"role" json:"role"`
	GoogleID       *string    `db:"google_id" json:"-"`
	ProfileImage   *string    `db:"profile_image" json:"profile_image"`
	Phone          *string    `db:"phone" json:"phone"`
	IsActive       bool       `db:"is_active" json:"is_active"`
	IsVerified     bool       `db:"is_verified" json:"is_verified"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at"`
}

func (u *User) HasPassword() bool {
	return u.HashedPassword != nil && *u.HashedPassword != ""
}

func (u *User) HasGoogle() bool {
	return u.GoogleID != nil && *u.GoogleID != ""
}

// HasCredential reports whether the user can sign in by some means.
func (u *User) HasCredential() bool {
	return u.HasPassword() || u.HasGoogle()
}

// DisplayName falls back to the email when no name was given.
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Email
}
