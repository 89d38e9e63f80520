package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of work an outbox event requests.
type EventType string

// The closed set of event types the worker knows how to execute.
const (
	EventTypeCardSummary  EventType = "card_summary"
	EventTypeAskBoard     EventType = "ask_board"
	EventTypeThreadToCard EventType = "thread_to_card"
)

// Outbox event validation errors.
var (
	ErrEmptyEventID      = errors.New("event ID cannot be empty")
	ErrEmptyEventOrgID   = errors.New("event org ID cannot be empty")
	ErrEmptyEventPayload = errors.New("event payload cannot be empty")
	ErrInvalidEventType  = errors.New("invalid event type")
)

// OutboxEvent is one durable unit of background work, written in the same
// transaction as its result-row placeholder. Events are never deleted by
// normal operation; processed rows are retained for audit and replay.
type OutboxEvent struct {
	ID           uuid.UUID       `json:"id"`
	Type         EventType       `json:"type"`
	Payload      json.RawMessage `json:"payload"`
	OrgID        uuid.UUID       `json:"org_id"`
	BoardID      *uuid.UUID      `json:"board_id,omitempty"`
	AttemptCount int             `json:"attempt_count"`
	LastError    *string         `json:"last_error,omitempty"`
	NextRetryAt  *time.Time      `json:"next_retry_at,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewOutboxEvent creates a new OutboxEvent with the given type, payload and
// tenant scope. It generates a new UUID and sets the creation timestamp.
// Returns an error if validation fails.
func NewOutboxEvent(
	eventType EventType,
	payload json.RawMessage,
	orgID uuid.UUID,
	boardID *uuid.UUID,
) (*OutboxEvent, error) {
	event := &OutboxEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payload,
		OrgID:     orgID,
		BoardID:   boardID,
		CreatedAt: time.Now().UTC(),
	}

	if err := event.Validate(); err != nil {
		return nil, err
	}

	return event, nil
}

// Validate checks if the OutboxEvent has valid data.
func (e *OutboxEvent) Validate() error {
	if e.ID == uuid.Nil {
		return ErrEmptyEventID
	}
	if !IsValidEventType(e.Type) {
		return ErrInvalidEventType
	}
	if len(e.Payload) == 0 {
		return ErrEmptyEventPayload
	}
	if e.OrgID == uuid.Nil {
		return ErrEmptyEventOrgID
	}
	return nil
}

// Claimable reports whether the event is due for processing at the given
// instant: not yet processed, and past any scheduled retry time.
func (e *OutboxEvent) Claimable(now time.Time) bool {
	if e.ProcessedAt != nil {
		return false
	}
	return e.NextRetryAt == nil || !e.NextRetryAt.After(now)
}

// IsValidEventType checks if the given type is one of the known event types.
func IsValidEventType(t EventType) bool {
	switch t {
	case EventTypeCardSummary, EventTypeAskBoard, EventTypeThreadToCard:
		return true
	default:
		return false
	}
}
