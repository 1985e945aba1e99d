package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
)

// Per-call ceilings bounding worst-case abuse of a single request.
const (
	MaxDocumentsPerCall  int64 = 1000
	MaxDataSizePerCallKB int64 = 10240 // 10 MB
)

// warningThreshold is the usage fraction whose upward crossing emits a
// warning event.
const warningThreshold = 0.8

// QuotaService is the quota engine: it admits or rejects quota-consuming
// operations through a single atomic conditional write against the durable
// quota store. A rejected admission is final for the call; only the
// diagnostic re-read happens afterwards and it never feeds back into the
// decision.
type QuotaService struct {
	repo    domain.QuotaRepository
	audit   domain.AuditEmitter
	metrics domain.MetricsRecorder
	logger  *slog.Logger
}

// NewQuotaService creates a new QuotaService. audit and metrics may be nil.
func NewQuotaService(repo domain.QuotaRepository, audit domain.AuditEmitter, metrics domain.MetricsRecorder, logger *slog.Logger) *QuotaService {
	return &QuotaService{
		repo:    repo,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
	}
}

// Admit atomically reserves delta units of dim for the tenant. It returns nil
// when the reservation applied, a ValidationError for out-of-range deltas, a
// QuotaExceededError when the conditional write matched no row, and an
// InfrastructureError when the store is unreachable. Tenants without a limits
// row are unlimited.
func (s *QuotaService) Admit(ctx context.Context, tenantID string, dim domain.QuotaDimension, delta int64, rc domain.RequestContext) error {
	if err := validateDelta(dim, delta); err != nil {
		return err
	}

	limits, err := s.repo.GetLimits(ctx, tenantID)
	if err != nil {
		return &domain.InfrastructureError{Op: "quota.GetLimits", Err: err}
	}
	if limits == nil {
		// No limits configured for this tenant: the dimension is unlimited.
		return nil
	}

	max := limits.Limit(dim)
	newValue, ok, err := s.repo.TryIncrement(ctx, tenantID, dim, delta, max)
	if err != nil {
		return &domain.InfrastructureError{Op: "quota.TryIncrement", Err: err}
	}

	if !ok {
		return s.reject(ctx, tenantID, dim, delta, max, rc)
	}

	percentage := float64(newValue) / float64(max) * 100
	s.recordUsage(tenantID, dim, percentage)

	// Warn exactly once per upward crossing of the threshold.
	threshold := warningThreshold * float64(max)
	if float64(newValue) >= threshold && float64(newValue-delta) < threshold {
		s.emitWarning(ctx, tenantID, dim, newValue, max, rc)
	}

	return nil
}

// reject builds the rich rejection: the usage re-read is best-effort and
// serves only the error payload and audit event.
func (s *QuotaService) reject(ctx context.Context, tenantID string, dim domain.QuotaDimension, delta, max int64, rc domain.RequestContext) error {
	var current int64
	usage, err := s.repo.GetUsage(ctx, tenantID)
	if err != nil {
		s.logger.Warn("quota diagnostics read failed", "tenant_id", tenantID, "dimension", dim, "error", err)
	} else if usage != nil {
		current = usage.Value(dim)
	}

	percentage := 0
	if max > 0 {
		percentage = int(math.Round(float64(current+delta) / float64(max) * 100))
	}

	if s.metrics != nil {
		s.metrics.RecordLimitViolation(tenantID, dim)
	}
	s.emit(ctx, domain.AuditEvent{
		Timestamp:  time.Now().UTC(),
		Level:      "error",
		RequestID:  rc.RequestID,
		UserID:     rc.UserID,
		TenantID:   tenantID,
		Method:     rc.Method,
		Path:       rc.Path,
		StatusCode: 403,
		IP:         rc.IP,
		UserAgent:  rc.UserAgent,
		Message:    fmt.Sprintf("%s limit exceeded for tenant %s", dim, tenantID),
		EventType:  domain.EventLimitExceeded,
		LimitType:  dim,
		LimitData: &domain.LimitData{
			CurrentValue:   current,
			LimitValue:     max,
			AttemptedValue: delta,
			Percentage:     percentage,
		},
	})

	return &domain.QuotaExceededError{
		Dimension:  dim,
		Current:    current,
		Limit:      max,
		Attempted:  delta,
		Percentage: percentage,
	}
}

func (s *QuotaService) emitWarning(ctx context.Context, tenantID string, dim domain.QuotaDimension, current, max int64, rc domain.RequestContext) {
	percentage := int(math.Round(float64(current) / float64(max) * 100))
	s.emit(ctx, domain.AuditEvent{
		Timestamp: time.Now().UTC(),
		Level:     "warn",
		RequestID: rc.RequestID,
		UserID:    rc.UserID,
		TenantID:  tenantID,
		Method:    rc.Method,
		Path:      rc.Path,
		IP:        rc.IP,
		UserAgent: rc.UserAgent,
		Message:   fmt.Sprintf("%s usage reached %d%% of the limit for tenant %s", dim, percentage, tenantID),
		EventType: domain.EventLimitWarning,
		LimitType: dim,
		LimitData: &domain.LimitData{
			CurrentValue: current,
			LimitValue:   max,
			Percentage:   percentage,
		},
	})
}

// Release returns previously consumed documents/data-size units, clamped at
// zero by the store. Freeing resources is never rejected by admission.
func (s *QuotaService) Release(ctx context.Context, tenantID string, documents, dataSizeKB int64) error {
	if documents < 0 || dataSizeKB < 0 {
		return &domain.ValidationError{Msg: "release amounts cannot be negative"}
	}
	if documents == 0 && dataSizeKB == 0 {
		return nil
	}
	if err := s.repo.Release(ctx, tenantID, documents, dataSizeKB); err != nil {
		return &domain.InfrastructureError{Op: "quota.Release", Err: err}
	}
	return nil
}

// Limits returns the tenant's limits, creating the default row on first read
// so administrators always see a concrete value.
func (s *QuotaService) Limits(ctx context.Context, tenantID string) (*domain.QuotaLimits, error) {
	limits, err := s.repo.GetLimits(ctx, tenantID)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "quota.GetLimits", Err: err}
	}
	if limits == nil {
		limits = domain.DefaultQuotaLimits(tenantID)
		if err := s.repo.UpsertLimits(ctx, limits); err != nil {
			return nil, &domain.InfrastructureError{Op: "quota.UpsertLimits", Err: err}
		}
	}
	return limits, nil
}

// SetLimits overwrites the tenant's limits (last-writer-wins) and audits the
// change.
func (s *QuotaService) SetLimits(ctx context.Context, limits *domain.QuotaLimits, rc domain.RequestContext) error {
	if limits.MaxDocuments < 0 || limits.MaxDataSizeKB < 0 || limits.MonthlyQueries < 0 {
		return &domain.ValidationError{Msg: "limits cannot be negative"}
	}
	if err := s.repo.UpsertLimits(ctx, limits); err != nil {
		return &domain.InfrastructureError{Op: "quota.UpsertLimits", Err: err}
	}

	s.emit(ctx, domain.AuditEvent{
		Timestamp: time.Now().UTC(),
		Level:     "info",
		RequestID: rc.RequestID,
		UserID:    rc.UserID,
		TenantID:  limits.TenantID,
		Method:    rc.Method,
		Path:      rc.Path,
		Message:   fmt.Sprintf("limits updated for tenant %s", limits.TenantID),
		EventType: domain.EventLimitUpdated,
	})
	return nil
}

// ResetQueries zeroes the monthly query counter. Called from operational
// tooling at the start of a billing month.
func (s *QuotaService) ResetQueries(ctx context.Context, tenantID string) error {
	if err := s.repo.ResetQueries(ctx, tenantID); err != nil {
		return &domain.InfrastructureError{Op: "quota.ResetQueries", Err: err}
	}
	s.logger.Info("monthly query counter reset", "tenant_id", tenantID)
	return nil
}

// Usage returns the tenant's current counters; a tenant that never consumed
// anything reads as zero.
func (s *QuotaService) Usage(ctx context.Context, tenantID string) (*domain.QuotaUsage, error) {
	usage, err := s.repo.GetUsage(ctx, tenantID)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "quota.GetUsage", Err: err}
	}
	if usage == nil {
		usage = &domain.QuotaUsage{TenantID: tenantID}
	}
	return usage, nil
}

func (s *QuotaService) emit(ctx context.Context, event domain.AuditEvent) {
	if s.audit != nil {
		s.audit.Emit(ctx, event)
	}
}

func (s *QuotaService) recordUsage(tenantID string, dim domain.QuotaDimension, percentage float64) {
	if s.metrics != nil {
		s.metrics.RecordResourceUsage(tenantID, dim, percentage)
	}
}

func validateDelta(dim domain.QuotaDimension, delta int64) error {
	if delta < 0 {
		return &domain.ValidationError{Msg: fmt.Sprintf("%s delta cannot be negative", dim)}
	}
	switch dim {
	case domain.DimensionDocuments:
		if delta > MaxDocumentsPerCall {
			return &domain.ValidationError{Msg: fmt.Sprintf("cannot add more than %d documents at once", MaxDocumentsPerCall)}
		}
	case domain.DimensionDataSize:
		if delta > MaxDataSizePerCallKB {
			return &domain.ValidationError{Msg: fmt.Sprintf("cannot add more than %dKB at once", MaxDataSizePerCallKB)}
		}
	case domain.DimensionQueries:
		if delta != 1 {
			return &domain.ValidationError{Msg: "queries are consumed one at a time"}
		}
	}
	return nil
}
