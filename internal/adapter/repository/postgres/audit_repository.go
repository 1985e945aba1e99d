package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/user/medrecord-proxy/internal/domain"
)

type auditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewAuditRepository creates the PostgreSQL audit sink used by the worker.
func NewAuditRepository(db *sql.DB, logger *slog.Logger) domain.AuditSink {
	return &auditRepository{db: db, logger: logger}
}

// WriteBatch persists a batch of audit events in one transaction. The insert
// is keyed on the broker stream id so redelivered events are deduplicated.
func (r *auditRepository) WriteBatch(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	query := `
        INSERT INTO audit_events (
            stream_id, occurred_at, level, request_id, user_id, tenant_id,
            method, path, status_code, duration_ms, ip, user_agent,
            message, event_type, limit_type, limit_data, request
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
        ON CONFLICT (stream_id) DO NOTHING
    `
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		limitData, err := marshalNullable(event.LimitData)
		if err != nil {
			r.logger.Warn("failed to marshal limit data, storing null", "error", err)
		}
		request, err := marshalNullable(event.Request)
		if err != nil {
			r.logger.Warn("failed to marshal request payload, storing null", "error", err)
		}

		_, err = stmt.ExecContext(ctx,
			event.StreamID,
			event.Timestamp,
			event.Level,
			nullString(event.RequestID),
			nullString(event.UserID),
			nullString(event.TenantID),
			nullString(event.Method),
			nullString(event.Path),
			event.StatusCode,
			event.DurationMs,
			nullString(event.IP),
			nullString(event.UserAgent),
			event.Message,
			event.EventType,
			nullString(string(event.LimitType)),
			limitData,
			request,
		)
		if err != nil {
			return fmt.Errorf("insert audit event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}

	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalNullable(v any) ([]byte, error) {
	switch value := v.(type) {
	case *domain.LimitData:
		if value == nil {
			return nil, nil
		}
	case map[string]any:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
