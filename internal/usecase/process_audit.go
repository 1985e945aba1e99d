package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
)

const (
	defaultAuditBatchSize    = 500
	defaultAuditRetryCount   = 3
	defaultAuditRetryBackoff = 1 * time.Second
)

// ProcessAuditUseCase drains audit events from the durable stream buffer into
// the final sink. Events are acknowledged only after the sink write succeeds;
// unacknowledged events are redelivered on the next pass.
type ProcessAuditUseCase struct {
	stream domain.AuditStream
	sink   domain.AuditSink
	logger *slog.Logger
}

// NewProcessAuditUseCase creates a new use case for persisting audit events.
func NewProcessAuditUseCase(stream domain.AuditStream, sink domain.AuditSink, logger *slog.Logger) *ProcessAuditUseCase {
	return &ProcessAuditUseCase{
		stream: stream,
		sink:   sink,
		logger: logger,
	}
}

// ProcessBatch reads one batch from the stream, writes it to the sink with
// retries, and acknowledges on success. Returns the number of events
// persisted.
func (uc *ProcessAuditUseCase) ProcessBatch(ctx context.Context) (int, error) {
	events, err := uc.stream.ReadBatch(ctx, defaultAuditBatchSize)
	if err != nil {
		uc.logger.Error("failed to read audit batch from stream", "error", err)
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	if err := uc.writeWithRetry(ctx, events); err != nil {
		uc.logger.Error("failed to write audit batch after retries", "error", err)
		// Not acknowledged: the batch will be redelivered.
		return 0, err
	}

	streamIDs := make([]string, len(events))
	for i, event := range events {
		streamIDs[i] = event.StreamID
	}
	if err := uc.stream.Ack(ctx, streamIDs...); err != nil {
		uc.logger.Error("failed to acknowledge audit events", "error", err)
		// Events are persisted but will be redelivered; the sink insert is
		// idempotent on stream id.
		return 0, err
	}

	uc.logger.Debug("persisted audit batch", "count", len(events))
	return len(events), nil
}

func (uc *ProcessAuditUseCase) writeWithRetry(ctx context.Context, events []domain.AuditEvent) error {
	var lastErr error
	for i := 0; i < defaultAuditRetryCount; i++ {
		err := uc.sink.WriteBatch(ctx, events)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write audit batch to sink, retrying...", "attempt", i+1, "error", err)
		select {
		case <-time.After(defaultAuditRetryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
