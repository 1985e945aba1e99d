package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/user/medrecord-proxy/internal/domain"
)

// tokenClaims is the claim set carried by access tokens. Tokens are signed
// with the tenant's own secret, so the claims are only trusted after the
// secret-bound verification below.
type tokenClaims struct {
	UserID   string `json:"userId"`
	TenantID string `json:"tenantId,omitempty"`
	jwt.RegisteredClaims
}

// IdentityService resolves inbound credentials into a verified
// (tenant, caller) pair. Two admissible paths, tried in order: a bearer token
// verified against the owning tenant's signing secret, then an explicit
// tenant header for trusted service-to-service calls.
type IdentityService struct {
	users   domain.UserRepository
	tenants domain.TenantRepository
	secrets domain.SecretRepository
	timeout time.Duration
	logger  *slog.Logger
}

// NewIdentityService creates a new IdentityService. timeout bounds each
// collaborator call.
func NewIdentityService(users domain.UserRepository, tenants domain.TenantRepository, secrets domain.SecretRepository, timeout time.Duration, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:   users,
		tenants: tenants,
		secrets: secrets,
		timeout: timeout,
		logger:  logger,
	}
}

// Resolve authenticates the request. A valid token whose tenant disagrees
// with a supplied tenant header is a hard failure: a token for tenant A must
// never execute inside tenant B's scope. A failed or absent token falls back
// to the header path when a header is present.
func (s *IdentityService) Resolve(ctx context.Context, bearerToken, tenantHeader string) (*domain.Identity, error) {
	if bearerToken != "" {
		ident, err := s.resolveToken(ctx, bearerToken)
		if err == nil {
			if tenantHeader != "" && tenantHeader != ident.TenantID {
				return nil, &domain.AuthenticationError{Reason: "token tenant does not match X-Tenant-Id header"}
			}
			return ident, nil
		}

		var infra *domain.InfrastructureError
		if errors.As(err, &infra) {
			return nil, err
		}
		if tenantHeader == "" {
			return nil, err
		}
		s.logger.Debug("token resolution failed, falling back to tenant header", "error", err)
	}

	if tenantHeader != "" {
		return s.resolveHeader(ctx, tenantHeader)
	}

	return nil, &domain.AuthenticationError{Reason: "missing credentials: provide a bearer token or X-Tenant-Id header"}
}

func (s *IdentityService) resolveToken(ctx context.Context, token string) (*domain.Identity, error) {
	// Decode without trust to learn which tenant's secret to verify against.
	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, &domain.AuthenticationError{Reason: "malformed token"}
	}
	if claims.UserID == "" {
		return nil, &domain.AuthenticationError{Reason: "token carries no user id"}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.FindByID(callCtx, claims.UserID)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "identity.FindUser", Err: err}
	}
	if user == nil {
		return nil, &domain.AuthenticationError{Reason: "unknown user"}
	}

	secretCtx, cancelSecret := context.WithTimeout(ctx, s.timeout)
	defer cancelSecret()

	secret, err := s.secrets.Fetch(secretCtx, user.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &domain.AuthenticationError{Reason: "no signing secret for tenant"}
		}
		return nil, &domain.InfrastructureError{Op: "identity.FetchSecret", Err: err}
	}

	verified := &tokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, verified, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, &domain.AuthenticationError{Reason: "invalid token signature"}
	}

	return &domain.Identity{
		TenantID: user.TenantID,
		CallerID: user.ID,
		Source:   "token",
	}, nil
}

// resolveHeader admits trusted service-to-service calls that declare their
// tenant explicitly. The caller id is synthetic; these are not end users.
func (s *IdentityService) resolveHeader(ctx context.Context, tenantID string) (*domain.Identity, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tenant, err := s.tenants.FindByID(callCtx, tenantID)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "identity.FindTenant", Err: err}
	}
	if tenant == nil {
		return nil, &domain.AuthenticationError{Reason: "unknown tenant"}
	}

	return &domain.Identity{
		TenantID: tenant.ID,
		CallerID: "svc:" + tenant.ID,
		Source:   "header",
	}, nil
}
