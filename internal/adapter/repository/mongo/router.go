package mongo

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/user/medrecord-proxy/internal/domain"
)

const tenantDatabasePrefix = "tenant_"

// PartitionRouter maps a tenant id to its isolated database. Handles are
// cached and reused across calls but never shared across tenants. The router
// fails closed: it never falls back to a default or shared partition.
type PartitionRouter struct {
	client *mongo.Client

	mu         sync.RWMutex
	partitions map[string]*mongo.Database

	logger *slog.Logger
}

// NewPartitionRouter creates a router over an established client.
func NewPartitionRouter(client *mongo.Client, logger *slog.Logger) *PartitionRouter {
	return &PartitionRouter{
		client:     client,
		partitions: make(map[string]*mongo.Database),
		logger:     logger,
	}
}

// Route returns the tenant's partition handle.
func (r *PartitionRouter) Route(ctx context.Context, tenantID string) (*mongo.Database, error) {
	if tenantID == "" {
		return nil, &domain.InfrastructureError{Op: "router.Route", Err: errors.New("empty tenant id")}
	}
	if r.client == nil {
		return nil, &domain.InfrastructureError{Op: "router.Route", Err: errors.New("storage client not initialized")}
	}

	r.mu.RLock()
	db, ok := r.partitions[tenantID]
	r.mu.RUnlock()
	if ok {
		return db, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check in case another goroutine opened the partition while we
	// waited for the lock.
	if db, ok := r.partitions[tenantID]; ok {
		return db, nil
	}

	db = r.client.Database(tenantDatabasePrefix + tenantID)
	r.partitions[tenantID] = db
	r.logger.Debug("opened tenant partition", "tenant_id", tenantID, "database", db.Name())

	return db, nil
}

// Evict drops a cached partition handle, e.g. after a tenant is offboarded
// by the owning system.
func (r *PartitionRouter) Evict(tenantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.partitions, tenantID)
}
