package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/outbox"
	"github.com/quillboard/quillboard-api/internal/store"
)

type outboxCall struct {
	op      string
	eventID uuid.UUID
	reason  string
	retryAt time.Time
}

type fakeOutboxStore struct {
	calls []outboxCall
}

func (f *fakeOutboxStore) Append(_ context.Context, _ *domain.OutboxEvent) error { return nil }

func (f *fakeOutboxStore) ClaimDue(_ context.Context, _ int) ([]*domain.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxStore) MarkProcessed(_ context.Context, eventID uuid.UUID) error {
	f.calls = append(f.calls, outboxCall{op: "processed", eventID: eventID})
	return nil
}

func (f *fakeOutboxStore) ScheduleRetry(_ context.Context, eventID uuid.UUID, lastError string, nextRetryAt time.Time) error {
	f.calls = append(f.calls, outboxCall{op: "retry", eventID: eventID, reason: lastError, retryAt: nextRetryAt})
	return nil
}

func (f *fakeOutboxStore) Park(_ context.Context, eventID uuid.UUID, lastError string) error {
	f.calls = append(f.calls, outboxCall{op: "park", eventID: eventID, reason: lastError})
	return nil
}

func (f *fakeOutboxStore) GetByID(_ context.Context, _ uuid.UUID) (*domain.OutboxEvent, error) {
	return nil, store.ErrEventNotFound
}

func (f *fakeOutboxStore) WithTx(_ *sql.Tx) store.OutboxStore { return f }

type stubExecutor struct {
	err            error
	calls          int
	failureCalls   int
	failureReasons []string
}

func (s *stubExecutor) Execute(_ context.Context, _ outbox.Command) error {
	s.calls = s.calls + 1
	return s.err
}

func (s *stubExecutor) RecordFailure(_ context.Context, _ outbox.Command, reason string) {
	s.failureCalls = s.failureCalls + 1
	s.failureReasons = append(s.failureReasons, reason)
}

func summaryEvent(t *testing.T, attemptCount int) *domain.OutboxEvent {
	t.Helper()

	principal := testPrincipal()
	payload, err := outbox.Encode(&outbox.CardSummaryPayload{
		Version: outbox.PayloadVersion,
		CardID:  uuid.New(),
		Actor:   principal,
	})
	require.NoError(t, err)

	event, err := domain.NewOutboxEvent(domain.EventTypeCardSummary, payload, principal.OrgID, nil)
	require.NoError(t, err)
	event.AttemptCount = attemptCount
	return event
}

func newTestPoller(executors map[domain.EventType]Executor) (*Poller, *fakeOutboxStore) {
	outboxSt := &fakeOutboxStore{}
	p := NewPoller(nil, outboxSt, executors, DefaultPollerConfig(), testLogger())
	return p, outboxSt
}

func TestProcessEvent(t *testing.T) {
	t.Parallel()

	t.Run("success marks the event processed", func(t *testing.T) {
		t.Parallel()

		exec := &stubExecutor{}
		p, outboxSt := newTestPoller(map[domain.EventType]Executor{domain.EventTypeCardSummary: exec})
		event := summaryEvent(t, 0)

		p.processEvent(context.Background(), outboxSt, event)

		require.Len(t, outboxSt.calls, 1)
		assert.Equal(t, "processed", outboxSt.calls[0].op)
		assert.Equal(t, event.ID, outboxSt.calls[0].eventID)
		assert.Equal(t, 1, exec.calls)
	})

	t.Run("transient failure schedules a backed-off retry", func(t *testing.T) {
		t.Parallel()

		exec := &stubExecutor{err: errors.New("connection refused")}
		p, outboxSt := newTestPoller(map[domain.EventType]Executor{domain.EventTypeCardSummary: exec})
		event := summaryEvent(t, 2)

		before := time.Now().UTC()
		p.processEvent(context.Background(), outboxSt, event)

		require.Len(t, outboxSt.calls, 1)
		call := outboxSt.calls[0]
		assert.Equal(t, "retry", call.op)
		assert.Contains(t, call.reason, "connection refused")

		// Third failure schedules the fourth attempt 2^3 seconds out.
		wantDelay := Backoff(3)
		assert.WithinDuration(t, before.Add(wantDelay), call.retryAt, 2*time.Second)
	})

	t.Run("permanent generation failure parks the event", func(t *testing.T) {
		t.Parallel()

		exec := &stubExecutor{err: fmt.Errorf("bad output: %w", generation.ErrInvalidResponse)}
		p, outboxSt := newTestPoller(map[domain.EventType]Executor{domain.EventTypeCardSummary: exec})

		p.processEvent(context.Background(), outboxSt, summaryEvent(t, 0))

		require.Len(t, outboxSt.calls, 1)
		assert.Equal(t, "park", outboxSt.calls[0].op)
		assert.True(t, strings.HasPrefix(outboxSt.calls[0].reason, deadLetterPrefix))

		// Parking also fails the result row so the job stops presenting
		// as queued.
		require.Equal(t, 1, exec.failureCalls)
		assert.Contains(t, exec.failureReasons[0], "bad output")
	})

	t.Run("malformed stored payload parks without reaching an executor", func(t *testing.T) {
		t.Parallel()

		exec := &stubExecutor{}
		p, outboxSt := newTestPoller(map[domain.EventType]Executor{domain.EventTypeCardSummary: exec})

		event := summaryEvent(t, 0)
		event.Payload = []byte(`{"version":1,"card_id":"not-a-uuid"}`)

		p.processEvent(context.Background(), outboxSt, event)

		require.Len(t, outboxSt.calls, 1)
		assert.Equal(t, "park", outboxSt.calls[0].op)
		assert.Zero(t, exec.calls)

		// The payload never routed, so there is no result row to fail.
		assert.Zero(t, exec.failureCalls)
	})

	t.Run("unregistered event type parks", func(t *testing.T) {
		t.Parallel()

		p, outboxSt := newTestPoller(map[domain.EventType]Executor{})

		p.processEvent(context.Background(), outboxSt, summaryEvent(t, 0))

		require.Len(t, outboxSt.calls, 1)
		assert.Equal(t, "park", outboxSt.calls[0].op)
	})

	t.Run("exhausted attempt budget parks a transient failure", func(t *testing.T) {
		t.Parallel()

		exec := &stubExecutor{err: errors.New("still flaky")}
		p, outboxSt := newTestPoller(map[domain.EventType]Executor{domain.EventTypeCardSummary: exec})

		p.processEvent(context.Background(), outboxSt, summaryEvent(t, p.config.MaxAttempts-1))

		require.Len(t, outboxSt.calls, 1)
		assert.Equal(t, "park", outboxSt.calls[0].op)
	})

	t.Run("not-found execution parks", func(t *testing.T) {
		t.Parallel()

		exec := &stubExecutor{err: fmt.Errorf("load card: %w", store.ErrCardNotFound)}
		p, outboxSt := newTestPoller(map[domain.EventType]Executor{domain.EventTypeCardSummary: exec})

		p.processEvent(context.Background(), outboxSt, summaryEvent(t, 0))

		require.Len(t, outboxSt.calls, 1)
		assert.Equal(t, "park", outboxSt.calls[0].op)
	})
}

func TestTickBusyGuard(t *testing.T) {
	t.Parallel()

	// With the busy flag held, Tick must return before touching the
	// database; the nil db would panic otherwise.
	p, _ := newTestPoller(nil)
	p.busy.Store(true)

	assert.NotPanics(t, func() {
		p.Tick(context.Background())
	})
}

func TestIsPoison(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		poison bool
	}{
		{name: "unknown event type", err: outbox.ErrUnknownEventType, poison: true},
		{name: "malformed payload", err: fmt.Errorf("route: %w", outbox.ErrMalformedPayload), poison: true},
		{name: "invalid model response", err: generation.ErrInvalidResponse, poison: true},
		{name: "content blocked", err: generation.ErrContentBlocked, poison: true},
		{name: "not found", err: store.ErrBoardNotFound, poison: true},
		{name: "transient generation", err: generation.ErrTransientFailure, poison: false},
		{name: "no contexts", err: ErrNoContexts, poison: false},
		{name: "plain error", err: errors.New("network blip"), poison: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.poison, isPoison(tc.err))
		})
	}
}
