package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/medrecord-proxy/internal/domain"
)

// Conditional-increment statements. Admission and increment are one atomic
// write: the UPDATE applies only while the predicate holds, and an
// unsatisfied predicate matches zero rows. The queries dimension uses a
// strict predicate since each query consumes exactly one unit.
const (
	incrementDocumentsQuery = `
        UPDATE tenant_quota_usage
        SET documents_count = documents_count + $2, updated_at = NOW()
        WHERE tenant_id = $1 AND documents_count + $2 <= $3
        RETURNING documents_count
    `
	incrementDataSizeQuery = `
        UPDATE tenant_quota_usage
        SET data_size_kb = data_size_kb + $2, updated_at = NOW()
        WHERE tenant_id = $1 AND data_size_kb + $2 <= $3
        RETURNING data_size_kb
    `
	incrementQueriesQuery = `
        UPDATE tenant_quota_usage
        SET queries_count = queries_count + $2, updated_at = NOW()
        WHERE tenant_id = $1 AND queries_count < $3
        RETURNING queries_count
    `
)

type quotaRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewQuotaRepository creates the durable quota store backed by PostgreSQL.
func NewQuotaRepository(db *sql.DB, logger *slog.Logger) domain.QuotaRepository {
	return &quotaRepository{db: db, logger: logger}
}

func (r *quotaRepository) GetLimits(ctx context.Context, tenantID string) (*domain.QuotaLimits, error) {
	query := `
        SELECT tenant_id, max_documents, max_data_size_kb, monthly_queries, updated_at
        FROM tenant_quota_limits
        WHERE tenant_id = $1
    `

	var limits domain.QuotaLimits
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&limits.TenantID,
		&limits.MaxDocuments,
		&limits.MaxDataSizeKB,
		&limits.MonthlyQueries,
		&limits.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // no limits configured
		}
		return nil, fmt.Errorf("get limits: %w", err)
	}

	return &limits, nil
}

func (r *quotaRepository) UpsertLimits(ctx context.Context, limits *domain.QuotaLimits) error {
	query := `
        INSERT INTO tenant_quota_limits (tenant_id, max_documents, max_data_size_kb, monthly_queries, updated_at)
        VALUES ($1, $2, $3, $4, NOW())
        ON CONFLICT (tenant_id) DO UPDATE
        SET max_documents = EXCLUDED.max_documents,
            max_data_size_kb = EXCLUDED.max_data_size_kb,
            monthly_queries = EXCLUDED.monthly_queries,
            updated_at = NOW()
    `

	_, err := r.db.ExecContext(ctx, query,
		limits.TenantID,
		limits.MaxDocuments,
		limits.MaxDataSizeKB,
		limits.MonthlyQueries,
	)
	if err != nil {
		return fmt.Errorf("upsert limits: %w", err)
	}

	return nil
}

func (r *quotaRepository) GetUsage(ctx context.Context, tenantID string) (*domain.QuotaUsage, error) {
	query := `
        SELECT tenant_id, documents_count, data_size_kb, queries_count, updated_at
        FROM tenant_quota_usage
        WHERE tenant_id = $1
    `

	var usage domain.QuotaUsage
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&usage.TenantID,
		&usage.DocumentsCount,
		&usage.DataSizeKB,
		&usage.QueriesCount,
		&usage.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // created lazily on first admission
		}
		return nil, fmt.Errorf("get usage: %w", err)
	}

	return &usage, nil
}

func (r *quotaRepository) TryIncrement(ctx context.Context, tenantID string, dim domain.QuotaDimension, delta, max int64) (int64, bool, error) {
	if err := r.ensureUsageRow(ctx, tenantID); err != nil {
		return 0, false, err
	}

	var query string
	switch dim {
	case domain.DimensionDocuments:
		query = incrementDocumentsQuery
	case domain.DimensionDataSize:
		query = incrementDataSizeQuery
	case domain.DimensionQueries:
		query = incrementQueriesQuery
	default:
		return 0, false, fmt.Errorf("unknown quota dimension %q", dim)
	}

	var newValue int64
	err := r.db.QueryRowContext(ctx, query, tenantID, delta, max).Scan(&newValue)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The conditional write matched no row: admission rejected.
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("conditional increment %s: %w", dim, err)
	}

	return newValue, true, nil
}

// ensureUsageRow lazily creates the usage row so the conditional UPDATE has a
// row to match on a tenant's first request.
func (r *quotaRepository) ensureUsageRow(ctx context.Context, tenantID string) error {
	query := `
        INSERT INTO tenant_quota_usage (tenant_id, documents_count, data_size_kb, queries_count, updated_at)
        VALUES ($1, 0, 0, 0, NOW())
        ON CONFLICT (tenant_id) DO NOTHING
    `
	if _, err := r.db.ExecContext(ctx, query, tenantID); err != nil {
		return fmt.Errorf("ensure usage row: %w", err)
	}
	return nil
}

func (r *quotaRepository) Release(ctx context.Context, tenantID string, documents, dataSizeKB int64) error {
	query := `
        UPDATE tenant_quota_usage
        SET documents_count = GREATEST(documents_count - $2, 0),
            data_size_kb = GREATEST(data_size_kb - $3, 0),
            updated_at = NOW()
        WHERE tenant_id = $1
    `
	if _, err := r.db.ExecContext(ctx, query, tenantID, documents, dataSizeKB); err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

func (r *quotaRepository) ResetQueries(ctx context.Context, tenantID string) error {
	query := `
        UPDATE tenant_quota_usage
        SET queries_count = 0, updated_at = NOW()
        WHERE tenant_id = $1
    `
	if _, err := r.db.ExecContext(ctx, query, tenantID); err != nil {
		return fmt.Errorf("reset queries: %w", err)
	}
	return nil
}
