// Package repository persists user accounts in PostgreSQL or MongoDB.
package repository

import (
	"context"
	"time"
)

// User is an account that owns CV records.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// UserRepository stores accounts. Emails are stored lowercased; lookups that
// match nothing return an errors.NotFound AppError.
type UserRepository interface {
	// Create inserts u and fills its timestamps. A taken email yields errors.Conflict.
	Create(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}
