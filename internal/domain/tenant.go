package domain

import (
	"context"
	"time"
)

// Tenant represents an isolated customer (a hospital or clinic). Tenant ids
// are opaque strings; a tenant is never deleted through this service.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantRepository defines the interface for tenant persistence.
type TenantRepository interface {
	FindByID(ctx context.Context, id string) (*Tenant, error)
	Store(ctx context.Context, t *Tenant) error
}

// SecretRepository stores per-tenant JWT signing secrets. Implementations
// encrypt the secret at rest and return plaintext from Fetch.
type SecretRepository interface {
	Store(ctx context.Context, tenantID, secret string) error
	Fetch(ctx context.Context, tenantID string) (string, error)
}
