package domain

import (
	"context"
	"time"
)

// User represents a staff account within a tenant.
type User struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Not exposed in API responses
	CreatedAt    time.Time `json:"created_at"`
}

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Store(ctx context.Context, u *User) error
}
