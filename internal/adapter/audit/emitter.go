package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
)

const (
	emitQueueSize = 1024
	emitTimeout   = 3 * time.Second
)

// Emitter decouples audit emission from the request path. Emit enqueues and
// returns immediately; a single background worker publishes to the durable
// stream. When the queue is full the event is dropped and logged, since audit
// delivery failure must never affect a response.
type Emitter struct {
	stream domain.AuditStream
	queue  chan domain.AuditEvent
	logger *slog.Logger
}

// NewEmitter starts the background publisher; it stops when ctx is
// cancelled.
func NewEmitter(ctx context.Context, stream domain.AuditStream, logger *slog.Logger) *Emitter {
	e := &Emitter{
		stream: stream,
		queue:  make(chan domain.AuditEvent, emitQueueSize),
		logger: logger,
	}
	go e.run(ctx)
	return e
}

// Emit enqueues the event without blocking.
func (e *Emitter) Emit(_ context.Context, event domain.AuditEvent) {
	select {
	case e.queue <- event:
	default:
		e.logger.Warn("audit queue full, dropping event", "event_type", event.EventType, "tenant_id", event.TenantID)
	}
}

func (e *Emitter) run(ctx context.Context) {
	for {
		select {
		case event := <-e.queue:
			publishCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
			if err := e.stream.Publish(publishCtx, event); err != nil {
				e.logger.Warn("failed to publish audit event", "event_type", event.EventType, "error", err)
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}

var _ domain.AuditEmitter = (*Emitter)(nil)
