package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOutboxEvent(t *testing.T) {
	orgID := uuid.New()
	boardID := uuid.New()
	payload := json.RawMessage(`{"card_id":"x"}`)

	t.Run("valid event", func(t *testing.T) {
		event, err := NewOutboxEvent(EventTypeCardSummary, payload, orgID, &boardID)
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, event.ID)
		assert.Equal(t, EventTypeCardSummary, event.Type)
		assert.Equal(t, orgID, event.OrgID)
		assert.Equal(t, &boardID, event.BoardID)
		assert.Zero(t, event.AttemptCount)
		assert.Nil(t, event.ProcessedAt)
		assert.Nil(t, event.NextRetryAt)
	})

	t.Run("unknown event type", func(t *testing.T) {
		_, err := NewOutboxEvent(EventType("reticulate_splines"), payload, orgID, nil)
		assert.ErrorIs(t, err, ErrInvalidEventType)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := NewOutboxEvent(EventTypeAskBoard, nil, orgID, &boardID)
		assert.ErrorIs(t, err, ErrEmptyEventPayload)
	})

	t.Run("missing org", func(t *testing.T) {
		_, err := NewOutboxEvent(EventTypeAskBoard, payload, uuid.Nil, &boardID)
		assert.ErrorIs(t, err, ErrEmptyEventOrgID)
	})
}

func TestOutboxEventClaimable(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name        string
		processedAt *time.Time
		nextRetryAt *time.Time
		want        bool
	}{
		{name: "fresh event is claimable", want: true},
		{name: "processed event is not claimable", processedAt: &past, want: false},
		{name: "due retry is claimable", nextRetryAt: &past, want: true},
		{name: "retry due exactly now is claimable", nextRetryAt: &now, want: true},
		{name: "future retry is not claimable", nextRetryAt: &future, want: false},
		{name: "processed wins over due retry", processedAt: &past, nextRetryAt: &past, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			event := &OutboxEvent{
				ID:          uuid.New(),
				Type:        EventTypeCardSummary,
				Payload:     json.RawMessage(`{}`),
				OrgID:       uuid.New(),
				ProcessedAt: tc.processedAt,
				NextRetryAt: tc.nextRetryAt,
				CreatedAt:   past,
			}
			assert.Equal(t, tc.want, event.Claimable(now))
		})
	}
}

func TestIsValidEventType(t *testing.T) {
	assert.True(t, IsValidEventType(EventTypeCardSummary))
	assert.True(t, IsValidEventType(EventTypeAskBoard))
	assert.True(t, IsValidEventType(EventTypeThreadToCard))
	assert.False(t, IsValidEventType(EventType("")))
	assert.False(t, IsValidEventType(EventType("card_summary_v2")))
}
