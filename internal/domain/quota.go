package domain

import (
	"context"
	"time"
)

// QuotaDimension identifies one independently tracked and limited resource.
type QuotaDimension string

const (
	DimensionDocuments QuotaDimension = "documents"
	DimensionDataSize  QuotaDimension = "data_size_kb"
	DimensionQueries   QuotaDimension = "queries"
)

// Default limits applied at tenant onboarding.
const (
	DefaultMaxDocuments   int64 = 1000
	DefaultMaxDataSizeKB  int64 = 51200 // 50 MB
	DefaultMonthlyQueries int64 = 1000
)

// QuotaLimits holds the per-tenant ceilings, one row per tenant.
// Mutations are last-writer-wins overwrites.
type QuotaLimits struct {
	TenantID       string    `json:"tenant_id"`
	MaxDocuments   int64     `json:"max_documents"`
	MaxDataSizeKB  int64     `json:"max_data_size_kb"`
	MonthlyQueries int64     `json:"monthly_queries"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultQuotaLimits returns the onboarding limits for a tenant.
func DefaultQuotaLimits(tenantID string) *QuotaLimits {
	return &QuotaLimits{
		TenantID:       tenantID,
		MaxDocuments:   DefaultMaxDocuments,
		MaxDataSizeKB:  DefaultMaxDataSizeKB,
		MonthlyQueries: DefaultMonthlyQueries,
	}
}

// Limit returns the ceiling for a dimension.
func (l *QuotaLimits) Limit(dim QuotaDimension) int64 {
	switch dim {
	case DimensionDocuments:
		return l.MaxDocuments
	case DimensionDataSize:
		return l.MaxDataSizeKB
	case DimensionQueries:
		return l.MonthlyQueries
	}
	return 0
}

// QuotaUsage holds the per-tenant counters. Created lazily on first use and
// mutated only through the quota store's conditional increment.
type QuotaUsage struct {
	TenantID       string    `json:"tenant_id"`
	DocumentsCount int64     `json:"documents_count"`
	DataSizeKB     int64     `json:"data_size_kb"`
	QueriesCount   int64     `json:"queries_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Value returns the counter for a dimension.
func (u *QuotaUsage) Value(dim QuotaDimension) int64 {
	switch dim {
	case DimensionDocuments:
		return u.DocumentsCount
	case DimensionDataSize:
		return u.DataSizeKB
	case DimensionQueries:
		return u.QueriesCount
	}
	return 0
}

// QuotaRepository is the durable quota store. TryIncrement is the single
// atomic admission primitive: it increments the dimension counter by delta
// only while the result stays within max (strictly below max for the queries
// dimension, which always moves in steps of one). It reports the new counter
// value when the write applied and ok=false when the conditional write
// matched no row.
type QuotaRepository interface {
	GetLimits(ctx context.Context, tenantID string) (*QuotaLimits, error)
	UpsertLimits(ctx context.Context, limits *QuotaLimits) error
	GetUsage(ctx context.Context, tenantID string) (*QuotaUsage, error)
	TryIncrement(ctx context.Context, tenantID string, dim QuotaDimension, delta, max int64) (newValue int64, ok bool, err error)

	// Release decrements the documents and data-size counters, clamped at
	// zero. Freeing resources is never rejected.
	Release(ctx context.Context, tenantID string, documents, dataSizeKB int64) error

	// ResetQueries zeroes the monthly query counter. Invoked by operational
	// tooling at the start of a billing month, never from the hot path.
	ResetQueries(ctx context.Context, tenantID string) error
}

// RateDecision is the outcome of one fixed-window admission.
type RateDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// RateLimiter admits requests per subject (caller IP or tenant id) within a
// fixed window. Implementations must be safe for concurrent use.
type RateLimiter interface {
	Allow(subject string) RateDecision
}
