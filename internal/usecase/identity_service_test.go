package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/domain/mocks"
)

const testTimeout = 2 * time.Second

func signedToken(t *testing.T, userID, tenantID, secret string) string {
	t.Helper()
	claims := &tokenClaims{
		UserID:   userID,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return token
}

func identityFixture() (*mocks.MockUserRepository, *mocks.MockTenantRepository, *mocks.MockSecretRepository) {
	users := mocks.NewMockUserRepository()
	tenants := mocks.NewMockTenantRepository()
	secrets := mocks.NewMockSecretRepository()

	tenants.Tenants["hospital-a"] = &domain.Tenant{ID: "hospital-a", Name: "Hospital A"}
	users.Users["u1"] = &domain.User{ID: "u1", TenantID: "hospital-a", Email: "doc@a.example"}
	secrets.Secrets["hospital-a"] = "secret-a"

	return users, tenants, secrets
}

func TestIdentityService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Valid Token", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "u1", "hospital-a", "secret-a")
		ident, err := svc.Resolve(ctx, token, "")
		if err != nil {
			t.Fatalf("expected resolution, got %v", err)
		}
		if ident.TenantID != "hospital-a" || ident.CallerID != "u1" || ident.Source != "token" {
			t.Errorf("unexpected identity: %+v", ident)
		}
	})

	t.Run("Valid Token With Matching Header", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "u1", "hospital-a", "secret-a")
		ident, err := svc.Resolve(ctx, token, "hospital-a")
		if err != nil {
			t.Fatalf("expected resolution, got %v", err)
		}
		if ident.Source != "token" {
			t.Errorf("token path must win when both agree, got %q", ident.Source)
		}
	})

	t.Run("Valid Token With Mismatched Header", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		tenants.Tenants["hospital-b"] = &domain.Tenant{ID: "hospital-b", Name: "Hospital B"}
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "u1", "hospital-a", "secret-a")
		_, err := svc.Resolve(ctx, token, "hospital-b")
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			t.Fatalf("a valid token must never execute under another tenant, got %v", err)
		}
	})

	t.Run("Bad Signature Falls Back To Header", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "u1", "hospital-a", "wrong-secret")
		ident, err := svc.Resolve(ctx, token, "hospital-a")
		if err != nil {
			t.Fatalf("expected header fallback, got %v", err)
		}
		if ident.Source != "header" || ident.CallerID != "svc:hospital-a" {
			t.Errorf("unexpected identity: %+v", ident)
		}
	})

	t.Run("Bad Signature Without Header Fails", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "u1", "hospital-a", "wrong-secret")
		_, err := svc.Resolve(ctx, token, "")
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthenticationError, got %v", err)
		}
	})

	t.Run("Header Only", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		ident, err := svc.Resolve(ctx, "", "hospital-a")
		if err != nil {
			t.Fatalf("expected header resolution, got %v", err)
		}
		if ident.TenantID != "hospital-a" || ident.Source != "header" {
			t.Errorf("unexpected identity: %+v", ident)
		}
	})

	t.Run("Unknown Tenant Header", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		_, err := svc.Resolve(ctx, "", "no-such-tenant")
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthenticationError, got %v", err)
		}
	})

	t.Run("Missing Credentials", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		_, err := svc.Resolve(ctx, "", "")
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthenticationError, got %v", err)
		}
	})

	t.Run("Unknown User In Token", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "ghost", "hospital-a", "secret-a")
		_, err := svc.Resolve(ctx, token, "")
		var authErr *domain.AuthenticationError
		if !errors.As(err, &authErr) {
			t.Fatalf("expected AuthenticationError, got %v", err)
		}
	})

	t.Run("Repository Failure Does Not Fall Back", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		users.FindErr = errors.New("connection refused")
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		token := signedToken(t, "u1", "hospital-a", "secret-a")
		_, err := svc.Resolve(ctx, token, "hospital-a")
		var infraErr *domain.InfrastructureError
		if !errors.As(err, &infraErr) {
			t.Fatalf("an outage must surface as InfrastructureError, not silently degrade, got %v", err)
		}
	})

	t.Run("Expired Token", func(t *testing.T) {
		users, tenants, secrets := identityFixture()
		svc := NewIdentityService(users, tenants, secrets, testTimeout, testLogger())

		claims := &tokenClaims{
			UserID: "u1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret-a"))
		if err != nil {
			t.Fatalf("failed to sign token: %v", err)
		}

		_, resolveErr := svc.Resolve(ctx, token, "")
		var authErr *domain.AuthenticationError
		if !errors.As(resolveErr, &authErr) {
			t.Fatalf("expected AuthenticationError for expired token, got %v", resolveErr)
		}
	})
}
