package domain

import (
	"context"
	"time"
)

// Audit event types.
const (
	EventDataAccess    = "DATA_ACCESS"
	EventLimitExceeded = "LIMIT_EXCEEDED"
	EventLimitWarning  = "LIMIT_WARNING"
	EventLimitUpdated  = "LIMIT_UPDATED"
	EventTenantCreated = "TENANT_CREATED"
	EventAuthFailure   = "AUTH_FAILURE"
)

// LimitData carries the machine-readable numbers of a quota event.
type LimitData struct {
	CurrentValue   int64 `json:"currentValue"`
	LimitValue     int64 `json:"limitValue"`
	AttemptedValue int64 `json:"attemptedValue,omitempty"`
	Percentage     int   `json:"percentage,omitempty"`
}

// AuditEvent is the canonical audit record emitted by the proxy. Emission is
// fire-and-forget; persistence is owned by the audit worker.
type AuditEvent struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"` // info, warn, error
	RequestID  string         `json:"request_id,omitempty"`
	UserID     string         `json:"user_id,omitempty"`
	TenantID   string         `json:"tenant_id,omitempty"`
	Method     string         `json:"method,omitempty"`
	Path       string         `json:"path,omitempty"`
	StatusCode int            `json:"status_code,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
	IP         string         `json:"ip,omitempty"`
	UserAgent  string         `json:"user_agent,omitempty"`
	Message    string         `json:"message"`
	EventType  string         `json:"event_type"`
	LimitType  QuotaDimension `json:"limit_type,omitempty"`
	LimitData  *LimitData     `json:"limit_data,omitempty"`
	Request    map[string]any `json:"request,omitempty"`

	// StreamID is the broker-assigned id used for acknowledgement; it is not
	// part of the event payload.
	StreamID string `json:"-"`
}

// RequestContext carries per-request identifiers into side-channel emissions.
type RequestContext struct {
	RequestID string
	UserID    string
	Method    string
	Path      string
	IP        string
	UserAgent string
}

// AuditEmitter delivers events to the audit side channel. Emit must never
// block the request path and its failure must never affect the response.
type AuditEmitter interface {
	Emit(ctx context.Context, event AuditEvent)
}

// AuditStream is the durable buffer between the proxy and the audit worker.
type AuditStream interface {
	Publish(ctx context.Context, event AuditEvent) error
	ReadBatch(ctx context.Context, count int64) ([]AuditEvent, error)
	Ack(ctx context.Context, streamIDs ...string) error
}

// AuditSink is the final persistence target for audit events.
type AuditSink interface {
	WriteBatch(ctx context.Context, events []AuditEvent) error
}

// MetricsRecorder is the fire-and-forget metrics collaborator.
type MetricsRecorder interface {
	RecordRequest(tenantID, operation, status string, duration time.Duration)
	RecordLimitViolation(tenantID string, dim QuotaDimension)
	RecordResourceUsage(tenantID string, dim QuotaDimension, percentage float64)
	RecordRateLimited(scope string)
}

// Identity is a verified (tenant, caller) pair produced by the resolver.
type Identity struct {
	TenantID string
	CallerID string
	Source   string // "token" or "header"
}

// DataStore executes a sanitized operation against a tenant's isolated
// partition.
type DataStore interface {
	Execute(ctx context.Context, tenantID, collection string, req *OperationRequest) (*OperationResult, error)
}
