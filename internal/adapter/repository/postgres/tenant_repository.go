package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/medrecord-proxy/internal/domain"
)

type tenantRepository struct {
	db *sql.DB
}

// NewTenantRepository creates a PostgreSQL-backed tenant repository.
func NewTenantRepository(db *sql.DB) domain.TenantRepository {
	return &tenantRepository{db: db}
}

func (r *tenantRepository) FindByID(ctx context.Context, id string) (*domain.Tenant, error) {
	query := `
        SELECT id, name, created_at, updated_at
        FROM tenants
        WHERE id = $1
    `

	var tenant domain.Tenant
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // not found
		}
		return nil, fmt.Errorf("find tenant by ID: %w", err)
	}

	return &tenant, nil
}

func (r *tenantRepository) Store(ctx context.Context, t *domain.Tenant) error {
	query := `
        INSERT INTO tenants (id, name, created_at, updated_at)
        VALUES ($1, $2, $3, $4)
    `

	_, err := r.db.ExecContext(ctx, query, t.ID, t.Name, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store tenant: %w", err)
	}

	return nil
}
