package outbox

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// PayloadVersion is the current schema version stamped into every payload.
// The router rejects versions it does not know.
const PayloadVersion = 1

// Payload validation errors.
var (
	ErrUnsupportedVersion = errors.New("unsupported payload version")
	ErrEmptyJobID         = errors.New("payload job ID cannot be empty")
	ErrEmptyCardID        = errors.New("payload card ID cannot be empty")
	ErrEmptyBoardID       = errors.New("payload board ID cannot be empty")
	ErrEmptyListID        = errors.New("payload list ID cannot be empty")
	ErrEmptyQuestion      = errors.New("payload question cannot be empty")
	ErrEmptyTranscript    = errors.New("payload transcript cannot be empty")
	ErrInvalidTopK        = errors.New("payload top-k must be positive")
)

// Command is one decoded, validated outbox payload. The three payload types
// below are the only implementations.
type Command interface {
	// Kind returns the event type this command was decoded from.
	Kind() domain.EventType

	// Job returns the job id whose result row this command materializes.
	Job() uuid.UUID

	// Principal returns the actor captured at enqueue time. Executors run
	// all data access under this principal's tenant scope; they never
	// re-fetch caller context.
	Principal() domain.Principal

	// Validate checks the payload's schema invariants.
	Validate() error
}

// CardSummaryPayload requests a summary of one card. The job id is the card
// id: summaries are keyed per card, so re-summarizing overwrites.
type CardSummaryPayload struct {
	Version int              `json:"version"`
	CardID  uuid.UUID        `json:"card_id"`
	Reason  string           `json:"reason,omitempty"`
	Actor   domain.Principal `json:"actor"`
}

// Kind implements Command.
func (p *CardSummaryPayload) Kind() domain.EventType { return domain.EventTypeCardSummary }

// Job implements Command.
func (p *CardSummaryPayload) Job() uuid.UUID { return p.CardID }

// Principal implements Command.
func (p *CardSummaryPayload) Principal() domain.Principal { return p.Actor }

// Validate implements Command.
func (p *CardSummaryPayload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	if p.CardID == uuid.Nil {
		return ErrEmptyCardID
	}
	return p.Actor.Validate()
}

// AskBoardPayload requests a grounded answer to a question about a board.
type AskBoardPayload struct {
	Version  int              `json:"version"`
	JobID    uuid.UUID        `json:"job_id"`
	BoardID  uuid.UUID        `json:"board_id"`
	Question string           `json:"question"`
	TopK     int              `json:"top_k"`
	Actor    domain.Principal `json:"actor"`
}

// Kind implements Command.
func (p *AskBoardPayload) Kind() domain.EventType { return domain.EventTypeAskBoard }

// Job implements Command.
func (p *AskBoardPayload) Job() uuid.UUID { return p.JobID }

// Principal implements Command.
func (p *AskBoardPayload) Principal() domain.Principal { return p.Actor }

// Validate implements Command.
func (p *AskBoardPayload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	if p.JobID == uuid.Nil {
		return ErrEmptyJobID
	}
	if p.BoardID == uuid.Nil {
		return ErrEmptyBoardID
	}
	if p.Question == "" {
		return ErrEmptyQuestion
	}
	if p.TopK <= 0 {
		return ErrInvalidTopK
	}
	return p.Actor.Validate()
}

// ThreadToCardPayload requests extraction of a card draft from a chat thread.
type ThreadToCardPayload struct {
	Version      int              `json:"version"`
	JobID        uuid.UUID        `json:"job_id"`
	BoardID      uuid.UUID        `json:"board_id"`
	ListID       uuid.UUID        `json:"list_id"`
	Transcript   string           `json:"transcript"`
	Participants []string         `json:"participants,omitempty"`
	Actor        domain.Principal `json:"actor"`
}

// Kind implements Command.
func (p *ThreadToCardPayload) Kind() domain.EventType { return domain.EventTypeThreadToCard }

// Job implements Command.
func (p *ThreadToCardPayload) Job() uuid.UUID { return p.JobID }

// Principal implements Command.
func (p *ThreadToCardPayload) Principal() domain.Principal { return p.Actor }

// Validate implements Command.
func (p *ThreadToCardPayload) Validate() error {
	if p.Version != PayloadVersion {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, p.Version)
	}
	if p.JobID == uuid.Nil {
		return ErrEmptyJobID
	}
	if p.BoardID == uuid.Nil {
		return ErrEmptyBoardID
	}
	if p.ListID == uuid.Nil {
		return ErrEmptyListID
	}
	if p.Transcript == "" {
		return ErrEmptyTranscript
	}
	return p.Actor.Validate()
}
