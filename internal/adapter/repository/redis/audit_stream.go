package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/medrecord-proxy/internal/domain"
)

const eventField = "event"

// AuditStream buffers audit events in a Redis stream between the proxy and
// the audit worker.
type AuditStream struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	logger   *slog.Logger
}

// NewAuditStream creates the stream adapter. When group is non-empty the
// consumer group is created if it does not exist (worker side); the proxy
// side passes empty group/consumer and only publishes.
func NewAuditStream(client *redis.Client, stream, group, consumer string, logger *slog.Logger) (*AuditStream, error) {
	s := &AuditStream{
		client:   client,
		stream:   stream,
		group:    group,
		consumer: consumer,
		logger:   logger,
	}

	if group != "" {
		err := client.XGroupCreateMkStream(context.Background(), stream, group, "0").Err()
		if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
			return nil, fmt.Errorf("create consumer group: %w", err)
		}
	}

	return s, nil
}

// Publish appends one event to the stream.
func (s *AuditStream) Publish(ctx context.Context, event domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{eventField: payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}
	return nil
}

// ReadBatch reads up to count pending events for this consumer. A short block
// keeps the worker loop from busy-polling an empty stream.
func (s *AuditStream) ReadBatch(ctx context.Context, count int64) ([]domain.AuditEvent, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    count,
		Block:    2 * time.Second,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // no new events
		}
		return nil, fmt.Errorf("read audit batch: %w", err)
	}

	var events []domain.AuditEvent
	for _, stream := range streams {
		for _, message := range stream.Messages {
			raw, ok := message.Values[eventField].(string)
			if !ok {
				s.logger.Warn("skipping malformed stream entry", "stream_id", message.ID)
				continue
			}

			var event domain.AuditEvent
			if err := json.Unmarshal([]byte(raw), &event); err != nil {
				s.logger.Warn("skipping undecodable audit event", "stream_id", message.ID, "error", err)
				continue
			}
			event.StreamID = message.ID
			events = append(events, event)
		}
	}

	return events, nil
}

// Ack acknowledges processed events in the consumer group.
func (s *AuditStream) Ack(ctx context.Context, streamIDs ...string) error {
	if len(streamIDs) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, s.stream, s.group, streamIDs...).Err(); err != nil {
		return fmt.Errorf("ack audit events: %w", err)
	}
	return nil
}

var _ domain.AuditStream = (*AuditStream)(nil)
