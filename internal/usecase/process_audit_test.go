package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/medrecord-proxy/internal/domain"
	"github.com/user/medrecord-proxy/internal/domain/mocks"
)

func TestProcessAuditUseCase_ProcessBatch(t *testing.T) {
	testEvents := []domain.AuditEvent{
		{StreamID: "1-0", Timestamp: time.Now(), EventType: domain.EventDataAccess, Message: "event 1"},
		{StreamID: "2-0", Timestamp: time.Now(), EventType: domain.EventLimitExceeded, Message: "event 2"},
	}

	t.Run("Successful Processing", func(t *testing.T) {
		stream := &mocks.MockAuditStream{Pending: append([]domain.AuditEvent{}, testEvents...)}
		sink := &mocks.MockAuditSink{}
		uc := NewProcessAuditUseCase(stream, sink, testLogger())

		count, err := uc.ProcessBatch(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if count != len(testEvents) {
			t.Errorf("expected processed count %d, got %d", len(testEvents), count)
		}
		if len(sink.Written) != 2 {
			t.Errorf("expected 2 events written, got %d", len(sink.Written))
		}
		if len(stream.AckedIDs) != 2 || stream.AckedIDs[0] != "1-0" {
			t.Errorf("expected both stream ids acked, got %v", stream.AckedIDs)
		}
	})

	t.Run("Transient Sink Failure Retries", func(t *testing.T) {
		stream := &mocks.MockAuditStream{Pending: append([]domain.AuditEvent{}, testEvents...)}
		sink := &mocks.MockAuditSink{FailFirst: 1}
		uc := NewProcessAuditUseCase(stream, sink, testLogger())

		count, err := uc.ProcessBatch(context.Background())
		if err != nil {
			t.Fatalf("expected retry to succeed, got %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 events persisted after retry, got %d", count)
		}
	})

	t.Run("Persistent Sink Failure Leaves Events Unacked", func(t *testing.T) {
		stream := &mocks.MockAuditStream{Pending: append([]domain.AuditEvent{}, testEvents...)}
		sink := &mocks.MockAuditSink{WriteErr: errors.New("database is down")}
		uc := NewProcessAuditUseCase(stream, sink, testLogger())

		count, err := uc.ProcessBatch(context.Background())
		if err == nil {
			t.Fatal("expected an error, got nil")
		}
		if count != 0 {
			t.Errorf("expected 0 persisted, got %d", count)
		}
		if len(stream.AckedIDs) != 0 {
			t.Errorf("failed events must not be acked, got %v", stream.AckedIDs)
		}
	})

	t.Run("No Events To Process", func(t *testing.T) {
		stream := &mocks.MockAuditStream{}
		sink := &mocks.MockAuditSink{}
		uc := NewProcessAuditUseCase(stream, sink, testLogger())

		count, err := uc.ProcessBatch(context.Background())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 processed, got %d", count)
		}
		if len(sink.Written) != 0 {
			t.Error("sink should not be called with no events")
		}
	})

	t.Run("Stream Read Error", func(t *testing.T) {
		stream := &mocks.MockAuditStream{ReadErr: errors.New("redis connection failed")}
		uc := NewProcessAuditUseCase(stream, &mocks.MockAuditSink{}, testLogger())

		if _, err := uc.ProcessBatch(context.Background()); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}
