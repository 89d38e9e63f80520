package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// Routing errors. Both are permanent: redelivering the same stored bytes can
// never make them decode differently.
var (
	// ErrUnknownEventType is returned for event types outside the closed set.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMalformedPayload is returned when a stored payload fails to decode
	// or fails schema validation.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Route deserializes and validates an event's payload into its typed command.
// Unknown event types and schema-invalid payloads are rejected; the claim
// loop classifies both as poison rather than retrying them forever.
func Route(event *domain.OutboxEvent) (Command, error) {
	var cmd Command
	switch event.Type {
	case domain.EventTypeCardSummary:
		cmd = &CardSummaryPayload{}
	case domain.EventTypeAskBoard:
		cmd = &AskBoardPayload{}
	case domain.EventTypeThreadToCard:
		cmd = &ThreadToCardPayload{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}

	dec := json.NewDecoder(bytes.NewReader(event.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	return cmd, nil
}

// Encode validates and serializes a command for storage. Producers call this
// so every stored payload round-trips through the same schema the router
// validates.
func Encode(cmd Command) (json.RawMessage, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}
