package mocks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
)

// MockAuditEmitter records emitted events for inspection.
type MockAuditEmitter struct {
	mu     sync.Mutex
	Events []domain.AuditEvent
}

func (m *MockAuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
}

// EventsOfType returns the recorded events with the given event type.
func (m *MockAuditEmitter) EventsOfType(eventType string) []domain.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEvent
	for _, e := range m.Events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockAuditStream is an in-memory implementation of domain.AuditStream.
type MockAuditStream struct {
	mu         sync.Mutex
	Published  []domain.AuditEvent
	Pending    []domain.AuditEvent
	AckedIDs   []string
	PublishErr error
	ReadErr    error
	AckErr     error
}

func (m *MockAuditStream) Publish(ctx context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PublishErr != nil {
		return m.PublishErr
	}
	m.Published = append(m.Published, event)
	return nil
}

func (m *MockAuditStream) ReadBatch(ctx context.Context, count int64) ([]domain.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReadErr != nil {
		return nil, m.ReadErr
	}
	if int64(len(m.Pending)) < count {
		count = int64(len(m.Pending))
	}
	batch := m.Pending[:count]
	m.Pending = m.Pending[count:]
	return batch, nil
}

func (m *MockAuditStream) Ack(ctx context.Context, streamIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedIDs = append(m.AckedIDs, streamIDs...)
	return nil
}

// MockAuditSink records written batches. Set FailFirst to reject the first N
// writes before succeeding, for retry tests; WriteErr fails every write.
type MockAuditSink struct {
	mu        sync.Mutex
	Written   []domain.AuditEvent
	WriteErr  error
	FailFirst int
}

func (m *MockAuditSink) WriteBatch(ctx context.Context, events []domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailFirst > 0 {
		m.FailFirst--
		return errors.New("transient sink failure")
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Written = append(m.Written, events...)
	return nil
}

// MockDataStore records executed operations and returns a canned result.
type MockDataStore struct {
	mu       sync.Mutex
	Calls    []DataStoreCall
	Result   *domain.OperationResult
	ExecErr  error
	ExecFunc func(ctx context.Context, tenantID, collection string, req *domain.OperationRequest) (*domain.OperationResult, error)
}

type DataStoreCall struct {
	TenantID   string
	Collection string
	Request    *domain.OperationRequest
}

func (m *MockDataStore) Execute(ctx context.Context, tenantID, collection string, req *domain.OperationRequest) (*domain.OperationResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, DataStoreCall{TenantID: tenantID, Collection: collection, Request: req})
	m.mu.Unlock()
	if m.ExecFunc != nil {
		return m.ExecFunc(ctx, tenantID, collection, req)
	}
	if m.ExecErr != nil {
		return nil, m.ExecErr
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &domain.OperationResult{Operation: req.Operation}, nil
}

// MockMetrics counts recorder calls.
type MockMetrics struct {
	mu              sync.Mutex
	Requests        int
	LimitViolations []domain.QuotaDimension
	UsageRecords    map[domain.QuotaDimension]float64
	RateLimited     []string
}

func (m *MockMetrics) RecordRequest(tenantID, operation, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests++
}

func (m *MockMetrics) RecordLimitViolation(tenantID string, dim domain.QuotaDimension) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LimitViolations = append(m.LimitViolations, dim)
}

func (m *MockMetrics) RecordResourceUsage(tenantID string, dim domain.QuotaDimension, percentage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UsageRecords == nil {
		m.UsageRecords = make(map[domain.QuotaDimension]float64)
	}
	m.UsageRecords[dim] = percentage
}

func (m *MockMetrics) RecordRateLimited(scope string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RateLimited = append(m.RateLimited, scope)
}

// AllowAllLimiter is a rate limiter stub that admits everything.
type AllowAllLimiter struct{}

func (AllowAllLimiter) Allow(subject string) domain.RateDecision {
	return domain.RateDecision{Allowed: true, Limit: 1 << 30, Remaining: 1 << 30}
}

// DenyAllLimiter is a rate limiter stub that rejects everything.
type DenyAllLimiter struct {
	RetryAfter time.Duration
}

func (d DenyAllLimiter) Allow(subject string) domain.RateDecision {
	return domain.RateDecision{Allowed: false, Limit: 0, RetryAfter: d.RetryAfter, ResetAt: time.Now().Add(d.RetryAfter)}
}
