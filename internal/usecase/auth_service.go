package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/pkg/secrets"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService issues access tokens and onboards tenants. Each tenant owns its
// signing secret; tokens are HS256 and verified by the identity resolver
// against that secret.
type AuthService struct {
	users   domain.UserRepository
	tenants domain.TenantRepository
	secrets domain.SecretRepository
	quotas  domain.QuotaRepository
	audit   domain.AuditEmitter

	jwtExpiry time.Duration
	logger    *slog.Logger
}

// NewAuthService creates a new AuthService. audit may be nil.
func NewAuthService(
	users domain.UserRepository,
	tenants domain.TenantRepository,
	secretRepo domain.SecretRepository,
	quotas domain.QuotaRepository,
	audit domain.AuditEmitter,
	jwtExpiry time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tenants:   tenants,
		secrets:   secretRepo,
		quotas:    quotas,
		audit:     audit,
		jwtExpiry: jwtExpiry,
		logger:    logger,
	}
}

// Login verifies the credentials and returns a signed access token plus the
// user's tenant id.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, string, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", "", &domain.InfrastructureError{Op: "auth.FindUser", Err: err}
	}
	if user == nil {
		return "", "", ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", "", ErrInvalidCredentials
	}

	secret, err := s.secrets.Fetch(ctx, user.TenantID)
	if err != nil {
		return "", "", &domain.InfrastructureError{Op: "auth.FetchSecret", Err: err}
	}

	now := time.Now()
	claims := &tokenClaims{
		UserID:   user.ID,
		TenantID: user.TenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}

	return token, user.TenantID, nil
}

// CreateTenant onboards a tenant: stores the record, generates and seals a
// fresh signing secret, and installs the default quota limits.
func (s *AuthService) CreateTenant(ctx context.Context, name string) (*domain.Tenant, error) {
	if name == "" {
		return nil, &domain.ValidationError{Msg: "tenant name is required"}
	}

	now := time.Now().UTC()
	tenant := &domain.Tenant{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.tenants.Store(ctx, tenant); err != nil {
		return nil, &domain.InfrastructureError{Op: "auth.StoreTenant", Err: err}
	}

	secret, err := secrets.NewTenantSecret()
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "auth.GenerateSecret", Err: err}
	}
	if err := s.secrets.Store(ctx, tenant.ID, secret); err != nil {
		return nil, &domain.InfrastructureError{Op: "auth.StoreSecret", Err: err}
	}

	if err := s.quotas.UpsertLimits(ctx, domain.DefaultQuotaLimits(tenant.ID)); err != nil {
		return nil, &domain.InfrastructureError{Op: "auth.InstallLimits", Err: err}
	}

	if s.audit != nil {
		s.audit.Emit(ctx, domain.AuditEvent{
			Timestamp: time.Now().UTC(),
			Level:     "info",
			TenantID:  tenant.ID,
			Message:   fmt.Sprintf("tenant %s onboarded", tenant.Name),
			EventType: domain.EventTenantCreated,
		})
	}

	return tenant, nil
}

// RegisterUser creates a staff account within a tenant.
func (s *AuthService) RegisterUser(ctx context.Context, tenantID, email, password string) (*domain.User, error) {
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Msg: "email and password are required"}
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, &domain.InfrastructureError{Op: "auth.FindTenant", Err: err}
	}
	if tenant == nil {
		return nil, domain.ErrNotFound
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Store(ctx, user); err != nil {
		return nil, &domain.InfrastructureError{Op: "auth.StoreUser", Err: err}
	}

	return user, nil
}
