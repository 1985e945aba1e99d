package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
)

// MockQuotaRepository is an in-memory implementation of domain.QuotaRepository
// for testing. TryIncrement performs the conditional write under a mutex so
// concurrency tests exercise real admission semantics.
type MockQuotaRepository struct {
	mu     sync.Mutex
	Limits map[string]*domain.QuotaLimits
	Usage  map[string]*domain.QuotaUsage

	GetLimitsErr    error
	UpsertLimitsErr error
	GetUsageErr     error
	IncrementErr    error
	ReleaseErr      error
}

func NewMockQuotaRepository() *MockQuotaRepository {
	return &MockQuotaRepository{
		Limits: make(map[string]*domain.QuotaLimits),
		Usage:  make(map[string]*domain.QuotaUsage),
	}
}

func (m *MockQuotaRepository) GetLimits(ctx context.Context, tenantID string) (*domain.QuotaLimits, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetLimitsErr != nil {
		return nil, m.GetLimitsErr
	}
	limits, ok := m.Limits[tenantID]
	if !ok {
		return nil, nil
	}
	copied := *limits
	return &copied, nil
}

func (m *MockQuotaRepository) UpsertLimits(ctx context.Context, limits *domain.QuotaLimits) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpsertLimitsErr != nil {
		return m.UpsertLimitsErr
	}
	copied := *limits
	copied.UpdatedAt = time.Now()
	m.Limits[limits.TenantID] = &copied
	return nil
}

func (m *MockQuotaRepository) GetUsage(ctx context.Context, tenantID string) (*domain.QuotaUsage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetUsageErr != nil {
		return nil, m.GetUsageErr
	}
	usage, ok := m.Usage[tenantID]
	if !ok {
		return nil, nil
	}
	copied := *usage
	return &copied, nil
}

func (m *MockQuotaRepository) TryIncrement(ctx context.Context, tenantID string, dim domain.QuotaDimension, delta, max int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.IncrementErr != nil {
		return 0, false, m.IncrementErr
	}

	usage, ok := m.Usage[tenantID]
	if !ok {
		usage = &domain.QuotaUsage{TenantID: tenantID}
		m.Usage[tenantID] = usage
	}

	current := usage.Value(dim)
	if dim == domain.DimensionQueries {
		if current >= max {
			return 0, false, nil
		}
	} else if current+delta > max {
		return 0, false, nil
	}

	newValue := current + delta
	switch dim {
	case domain.DimensionDocuments:
		usage.DocumentsCount = newValue
	case domain.DimensionDataSize:
		usage.DataSizeKB = newValue
	case domain.DimensionQueries:
		usage.QueriesCount = newValue
	}
	return newValue, true, nil
}

func (m *MockQuotaRepository) Release(ctx context.Context, tenantID string, documents, dataSizeKB int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	usage, ok := m.Usage[tenantID]
	if !ok {
		return nil
	}
	usage.DocumentsCount = maxInt64(usage.DocumentsCount-documents, 0)
	usage.DataSizeKB = maxInt64(usage.DataSizeKB-dataSizeKB, 0)
	return nil
}

func (m *MockQuotaRepository) ResetQueries(ctx context.Context, tenantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if usage, ok := m.Usage[tenantID]; ok {
		usage.QueriesCount = 0
	}
	return nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// MockTenantRepository is a mock implementation of domain.TenantRepository.
type MockTenantRepository struct {
	mu      sync.Mutex
	Tenants map[string]*domain.Tenant
	FindErr error
	SaveErr error
}

func NewMockTenantRepository() *MockTenantRepository {
	return &MockTenantRepository{Tenants: make(map[string]*domain.Tenant)}
}

func (m *MockTenantRepository) FindByID(ctx context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	return m.Tenants[id], nil
}

func (m *MockTenantRepository) Store(ctx context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Tenants[t.ID] = t
	return nil
}

// MockUserRepository is a mock implementation of domain.UserRepository.
type MockUserRepository struct {
	mu      sync.Mutex
	Users   map[string]*domain.User
	FindErr error
	SaveErr error
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{Users: make(map[string]*domain.User)}
}

func (m *MockUserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	return m.Users[id], nil
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	for _, u := range m.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MockUserRepository) Store(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.Users[u.ID] = u
	return nil
}

// MockSecretRepository is a mock implementation of domain.SecretRepository.
type MockSecretRepository struct {
	mu       sync.Mutex
	Secrets  map[string]string
	StoreErr error
	FetchErr error
}

func NewMockSecretRepository() *MockSecretRepository {
	return &MockSecretRepository{Secrets: make(map[string]string)}
}

func (m *MockSecretRepository) Store(ctx context.Context, tenantID, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StoreErr != nil {
		return m.StoreErr
	}
	m.Secrets[tenantID] = secret
	return nil
}

func (m *MockSecretRepository) Fetch(ctx context.Context, tenantID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FetchErr != nil {
		return "", m.FetchErr
	}
	secret, ok := m.Secrets[tenantID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return secret, nil
}
