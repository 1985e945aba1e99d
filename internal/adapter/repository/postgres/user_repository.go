package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/medrecord-proxy/internal/domain"
)

type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a PostgreSQL-backed user repository.
func NewUserRepository(db *sql.DB) domain.UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `
        SELECT id, tenant_id, email, password_hash, created_at
        FROM users
        WHERE id = $1
    `
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
        SELECT id, tenant_id, email, password_hash, created_at
        FROM users
        WHERE email = $1
    `
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *userRepository) scanOne(row *sql.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Store(ctx context.Context, u *domain.User) error {
	query := `
        INSERT INTO users (id, tenant_id, email, password_hash, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `

	_, err := r.db.ExecContext(ctx, query, u.ID, u.TenantID, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("store user: %w", err)
	}

	return nil
}
