package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/pkg/secrets"
)

type secretRepository struct {
	db     *sql.DB
	sealer *secrets.Sealer
}

// NewSecretRepository creates a PostgreSQL-backed secret store. Secrets are
// sealed with the master key before they touch the database and opened on
// fetch; plaintext never leaves this repository boundary at rest.
func NewSecretRepository(db *sql.DB, sealer *secrets.Sealer) domain.SecretRepository {
	return &secretRepository{db: db, sealer: sealer}
}

func (r *secretRepository) Store(ctx context.Context, tenantID, secret string) error {
	sealed, err := r.sealer.Seal(secret)
	if err != nil {
		return fmt.Errorf("seal tenant secret: %w", err)
	}

	query := `
        INSERT INTO tenant_secrets (tenant_id, jwt_secret, created_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (tenant_id) DO UPDATE SET jwt_secret = EXCLUDED.jwt_secret
    `
	if _, err := r.db.ExecContext(ctx, query, tenantID, sealed); err != nil {
		return fmt.Errorf("store tenant secret: %w", err)
	}

	return nil
}

func (r *secretRepository) Fetch(ctx context.Context, tenantID string) (string, error) {
	query := `
        SELECT jwt_secret
        FROM tenant_secrets
        WHERE tenant_id = $1
    `

	var sealed []byte
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrNotFound
		}
		return "", fmt.Errorf("fetch tenant secret: %w", err)
	}

	secret, err := r.sealer.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("open tenant secret: %w", err)
	}

	return secret, nil
}
