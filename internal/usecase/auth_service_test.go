package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/domain/mocks"
)

func authFixture(t *testing.T) (*AuthService, *mocks.MockUserRepository, *mocks.MockTenantRepository, *mocks.MockSecretRepository, *mocks.MockQuotaRepository, *mocks.MockAuditEmitter) {
	t.Helper()
	users := mocks.NewMockUserRepository()
	tenants := mocks.NewMockTenantRepository()
	secrets := mocks.NewMockSecretRepository()
	quotas := mocks.NewMockQuotaRepository()
	audit := &mocks.MockAuditEmitter{}
	svc := NewAuthService(users, tenants, secrets, quotas, audit, time.Hour, testLogger())
	return svc, users, tenants, secrets, quotas, audit
}

func TestAuthService_CreateTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("Onboards With Secret And Default Limits", func(t *testing.T) {
		svc, _, tenants, secrets, quotas, audit := authFixture(t)

		tenant, err := svc.CreateTenant(ctx, "Hospital A")
		if err != nil {
			t.Fatalf("expected tenant, got %v", err)
		}
		if tenant.ID == "" || tenant.Name != "Hospital A" {
			t.Errorf("unexpected tenant: %+v", tenant)
		}
		if _, ok := tenants.Tenants[tenant.ID]; !ok {
			t.Error("tenant not persisted")
		}
		if secrets.Secrets[tenant.ID] == "" {
			t.Error("signing secret not generated")
		}
		limits := quotas.Limits[tenant.ID]
		if limits == nil || limits.MaxDocuments != domain.DefaultMaxDocuments {
			t.Errorf("default limits not installed: %+v", limits)
		}
		if len(audit.EventsOfType(domain.EventTenantCreated)) != 1 {
			t.Error("expected one TENANT_CREATED event")
		}
	})

	t.Run("Rejects Empty Name", func(t *testing.T) {
		svc, _, _, _, _, _ := authFixture(t)
		_, err := svc.CreateTenant(ctx, "")
		var validationErr *domain.ValidationError
		if !errors.As(err, &validationErr) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	seedUser := func(t *testing.T, users *mocks.MockUserRepository, secrets *mocks.MockSecretRepository) {
		t.Helper()
		hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
		if err != nil {
			t.Fatalf("failed to hash password: %v", err)
		}
		users.Users["u1"] = &domain.User{
			ID:           "u1",
			TenantID:     "hospital-a",
			Email:        "doc@a.example",
			PasswordHash: string(hash),
		}
		secrets.Secrets["hospital-a"] = "secret-a"
	}

	t.Run("Issues Token For Valid Credentials", func(t *testing.T) {
		svc, users, _, secrets, _, _ := authFixture(t)
		seedUser(t, users, secrets)

		token, tenantID, err := svc.Login(ctx, "doc@a.example", "hunter2")
		if err != nil {
			t.Fatalf("expected token, got %v", err)
		}
		if token == "" || tenantID != "hospital-a" {
			t.Errorf("unexpected login result: token=%q tenant=%q", token, tenantID)
		}
	})

	t.Run("Issued Token Resolves", func(t *testing.T) {
		svc, users, tenants, secrets, _, _ := authFixture(t)
		seedUser(t, users, secrets)
		tenants.Tenants["hospital-a"] = &domain.Tenant{ID: "hospital-a"}

		token, _, err := svc.Login(ctx, "doc@a.example", "hunter2")
		if err != nil {
			t.Fatalf("login failed: %v", err)
		}

		identity := NewIdentityService(users, tenants, secrets, time.Second, testLogger())
		ident, err := identity.Resolve(ctx, token, "")
		if err != nil {
			t.Fatalf("issued token must resolve, got %v", err)
		}
		if ident.TenantID != "hospital-a" || ident.CallerID != "u1" {
			t.Errorf("unexpected identity: %+v", ident)
		}
	})

	t.Run("Rejects Wrong Password", func(t *testing.T) {
		svc, users, _, secrets, _, _ := authFixture(t)
		seedUser(t, users, secrets)

		_, _, err := svc.Login(ctx, "doc@a.example", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})

	t.Run("Rejects Unknown Email", func(t *testing.T) {
		svc, _, _, _, _, _ := authFixture(t)
		_, _, err := svc.Login(ctx, "nobody@example.com", "hunter2")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
	})
}

func TestAuthService_RegisterUser(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates User With Hashed Password", func(t *testing.T) {
		svc, users, tenants, _, _, _ := authFixture(t)
		tenants.Tenants["hospital-a"] = &domain.Tenant{ID: "hospital-a"}

		user, err := svc.RegisterUser(ctx, "hospital-a", "nurse@a.example", "s3cret")
		if err != nil {
			t.Fatalf("expected user, got %v", err)
		}
		stored := users.Users[user.ID]
		if stored == nil || stored.TenantID != "hospital-a" {
			t.Fatalf("user not persisted: %+v", stored)
		}
		if stored.PasswordHash == "s3cret" || stored.PasswordHash == "" {
			t.Error("password must be stored hashed")
		}
		if err := bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")); err != nil {
			t.Errorf("stored hash does not verify: %v", err)
		}
	})

	t.Run("Rejects Unknown Tenant", func(t *testing.T) {
		svc, _, _, _, _, _ := authFixture(t)
		_, err := svc.RegisterUser(ctx, "no-such-tenant", "nurse@a.example", "s3cret")
		if !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
