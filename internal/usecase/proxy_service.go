package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/user/medrecord-proxy/internal/adapter/phi"
	"github.com/user/medrecord-proxy/internal/domain"
)

// identityResolver is the front door's view of the identity service.
type identityResolver interface {
	Resolve(ctx context.Context, bearerToken, tenantHeader string) (*domain.Identity, error)
}

// quotaAdmitter is the front door's view of the quota engine.
type quotaAdmitter interface {
	Admit(ctx context.Context, tenantID string, dim domain.QuotaDimension, delta int64, rc domain.RequestContext) error
	Release(ctx context.Context, tenantID string, documents, dataSizeKB int64) error
}

// ProxyRequest is one inbound call to the front door.
type ProxyRequest struct {
	Collection   string
	Op           *domain.OperationRequest
	BearerToken  string
	TenantHeader string
	BodySizeKB   int64

	RequestID string
	Method    string
	Path      string
	RemoteIP  string
	UserAgent string
}

// ProxyService is the front door: the only component callers talk to
// directly. For each request it runs the gates strictly in sequence (IP rate
// limit, identity, tenant rate limit, quota) and then dispatches the
// operation against the tenant's partition. Audit emission happens after the
// terminal outcome and never blocks the response.
type ProxyService struct {
	identity      identityResolver
	quota         quotaAdmitter
	globalLimiter domain.RateLimiter
	tenantLimiter domain.RateLimiter
	store         domain.DataStore
	audit         domain.AuditEmitter
	metrics       domain.MetricsRecorder
	redactor      *phi.Redactor

	storageTimeout time.Duration
	logger         *slog.Logger
}

// NewProxyService creates the front door. audit, metrics and redactor may be
// nil.
func NewProxyService(
	identity identityResolver,
	quota quotaAdmitter,
	globalLimiter, tenantLimiter domain.RateLimiter,
	store domain.DataStore,
	audit domain.AuditEmitter,
	metrics domain.MetricsRecorder,
	redactor *phi.Redactor,
	storageTimeout time.Duration,
	logger *slog.Logger,
) *ProxyService {
	return &ProxyService{
		identity:       identity,
		quota:          quota,
		globalLimiter:  globalLimiter,
		tenantLimiter:  tenantLimiter,
		store:          store,
		audit:          audit,
		metrics:        metrics,
		redactor:       redactor,
		storageTimeout: storageTimeout,
		logger:         logger,
	}
}

// Execute runs one request through the gate sequence. The returned identity
// is non-nil whenever resolution succeeded, including on later rejections, so
// the handler can label metrics per tenant.
func (s *ProxyService) Execute(ctx context.Context, req *ProxyRequest) (*domain.OperationResult, *domain.Identity, error) {
	// Cheap DoS backstop: the per-IP window is checked before identity is
	// even resolved.
	if d := s.globalLimiter.Allow(req.RemoteIP); !d.Allowed {
		s.recordRateLimited("ip")
		return nil, nil, &domain.RateLimitError{
			Scope:      "ip",
			Subject:    req.RemoteIP,
			Limit:      d.Limit,
			RetryAfter: d.RetryAfter,
			ResetAt:    d.ResetAt,
		}
	}

	ident, err := s.identity.Resolve(ctx, req.BearerToken, req.TenantHeader)
	if err != nil {
		return nil, nil, err
	}

	if d := s.tenantLimiter.Allow(ident.TenantID); !d.Allowed {
		s.recordRateLimited("tenant")
		return nil, ident, &domain.RateLimitError{
			Scope:      "tenant",
			Subject:    ident.TenantID,
			Limit:      d.Limit,
			RetryAfter: d.RetryAfter,
			ResetAt:    d.ResetAt,
		}
	}

	if req.Op == nil {
		return nil, ident, &domain.ValidationError{Msg: "missing operation payload"}
	}
	opName := domain.NormalizeOperation(req.Op.Operation)
	if !domain.IsSupportedOperation(opName) {
		return nil, ident, &domain.UnsupportedOperationError{Operation: req.Op.Operation}
	}
	req.Op.Operation = opName

	rc := domain.RequestContext{
		RequestID: req.RequestID,
		UserID:    ident.CallerID,
		Method:    req.Method,
		Path:      req.Path,
		IP:        req.RemoteIP,
		UserAgent: req.UserAgent,
	}

	// Quota admission happens strictly before the write is attempted.
	if err := s.admitQuotas(ctx, ident.TenantID, req, rc); err != nil {
		return nil, ident, err
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
	defer cancel()

	result, err := s.store.Execute(storeCtx, ident.TenantID, req.Collection, req.Op)
	if err != nil {
		if isTypedRejection(err) {
			return nil, ident, err
		}
		return nil, ident, &domain.InfrastructureError{Op: "dispatch." + opName, Err: err}
	}

	// Logical deletes free document quota; the decrement is clamped and never
	// rejected.
	if result.DeletedCount > 0 {
		if err := s.quota.Release(ctx, ident.TenantID, result.DeletedCount, 0); err != nil {
			s.logger.Warn("quota release after delete failed", "tenant_id", ident.TenantID, "error", err)
		}
	}

	s.emitAccess(ident, req, rc)
	return result, ident, nil
}

// admitQuotas consumes the queries dimension for every operation and the
// documents/data-size dimensions for writes. Read operations only consume
// queries.
func (s *ProxyService) admitQuotas(ctx context.Context, tenantID string, req *ProxyRequest, rc domain.RequestContext) error {
	if docs := req.Op.DocumentsDelta(); docs > 0 {
		if err := s.quota.Admit(ctx, tenantID, domain.DimensionDocuments, docs, rc); err != nil {
			return err
		}
	}
	if domain.ConsumesDataSize(req.Op.Operation) && req.BodySizeKB > 0 {
		if err := s.quota.Admit(ctx, tenantID, domain.DimensionDataSize, req.BodySizeKB, rc); err != nil {
			return err
		}
	}
	return s.quota.Admit(ctx, tenantID, domain.DimensionQueries, 1, rc)
}

// emitAccess publishes the fire-and-forget access event with PHI redacted
// from the recorded payload.
func (s *ProxyService) emitAccess(ident *domain.Identity, req *ProxyRequest, rc domain.RequestContext) {
	if s.audit == nil {
		return
	}

	var recorded map[string]any
	if req.Op.Filter != nil || req.Op.Document != nil {
		recorded = map[string]any{}
		if req.Op.Filter != nil {
			recorded["filter"] = s.redact(req.Op.Filter)
		}
		if req.Op.Document != nil {
			recorded["document"] = s.redact(req.Op.Document)
		}
	}

	s.audit.Emit(context.Background(), domain.AuditEvent{
		Timestamp:  time.Now().UTC(),
		Level:      "info",
		RequestID:  rc.RequestID,
		UserID:     ident.CallerID,
		TenantID:   ident.TenantID,
		Method:     rc.Method,
		Path:       rc.Path,
		StatusCode: 200,
		IP:         rc.IP,
		UserAgent:  rc.UserAgent,
		Message:    fmt.Sprintf("%s on %s for tenant %s", req.Op.Operation, req.Collection, ident.TenantID),
		EventType:  domain.EventDataAccess,
		Request:    recorded,
	})
}

func (s *ProxyService) redact(doc map[string]any) map[string]any {
	if s.redactor == nil {
		return doc
	}
	return s.redactor.Redact(doc)
}

func (s *ProxyService) recordRateLimited(scope string) {
	if s.metrics != nil {
		s.metrics.RecordRateLimited(scope)
	}
}

func isTypedRejection(err error) bool {
	var (
		unsupported *domain.UnsupportedOperationError
		validation  *domain.ValidationError
		infra       *domain.InfrastructureError
	)
	return errors.As(err, &unsupported) || errors.As(err, &validation) || errors.As(err, &infra)
}
