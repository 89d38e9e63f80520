package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the processing state of an async job's result row.
type JobStatus string

// Possible job status values.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// FailureReasonMaxLen bounds the persisted human-readable failure reason.
const FailureReasonMaxLen = 1000

// Result row validation errors.
var (
	ErrEmptyResultID          = errors.New("result ID cannot be empty")
	ErrEmptyResultOrgID       = errors.New("result org ID cannot be empty")
	ErrCompletedWithoutResult = errors.New("completed result must have a payload")
	ErrFailedWithoutReason    = errors.New("failed result must have a failure reason")
)

// IsValidJobStatus checks if the given status is a valid JobStatus.
func IsValidJobStatus(status JobStatus) bool {
	switch status {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// TruncateFailureReason bounds a failure reason to the persisted maximum,
// backing the cut up to a rune boundary so the result stays valid UTF-8.
func TruncateFailureReason(reason string) string {
	if len(reason) <= FailureReasonMaxLen {
		return reason
	}
	cut := FailureReasonMaxLen
	for cut > 0 && reason[cut]&0xC0 == 0x80 {
		cut--
	}
	return reason[:cut]
}

// CardSummary is the materialized result of a card-summary job, keyed by the
// card id so repeated summarizations of the same card overwrite one row.
type CardSummary struct {
	CardID        uuid.UUID `json:"card_id"`
	OrgID         uuid.UUID `json:"org_id"`
	Status        JobStatus `json:"status"`
	Summary       *string   `json:"summary,omitempty"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the CardSummary's status/payload invariants.
func (s *CardSummary) Validate() error {
	if s.CardID == uuid.Nil {
		return ErrEmptyResultID
	}
	if s.OrgID == uuid.Nil {
		return ErrEmptyResultOrgID
	}
	if !IsValidJobStatus(s.Status) {
		return ErrInvalidStatus
	}
	if s.Status == JobStatusCompleted && (s.Summary == nil || *s.Summary == "") {
		return ErrCompletedWithoutResult
	}
	if s.Status == JobStatusFailed && (s.FailureReason == nil || *s.FailureReason == "") {
		return ErrFailedWithoutReason
	}
	return nil
}

// Citation is one reference from a generated board answer to a retrieved
// context chunk.
type Citation struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	SourceType string    `json:"source_type"`
	SourceID   uuid.UUID `json:"source_id"`
}

// BoardAnswer is the materialized result of an ask-board job, keyed by job id.
type BoardAnswer struct {
	JobID         uuid.UUID  `json:"job_id"`
	OrgID         uuid.UUID  `json:"org_id"`
	BoardID       uuid.UUID  `json:"board_id"`
	Status        JobStatus  `json:"status"`
	Answer        *string    `json:"answer,omitempty"`
	Citations     []Citation `json:"citations,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Validate checks the BoardAnswer's status/payload invariants.
func (a *BoardAnswer) Validate() error {
	if a.JobID == uuid.Nil {
		return ErrEmptyResultID
	}
	if a.OrgID == uuid.Nil {
		return ErrEmptyResultOrgID
	}
	if !IsValidJobStatus(a.Status) {
		return ErrInvalidStatus
	}
	if a.Status == JobStatusCompleted && (a.Answer == nil || *a.Answer == "") {
		return ErrCompletedWithoutResult
	}
	if a.Status == JobStatusFailed && (a.FailureReason == nil || *a.FailureReason == "") {
		return ErrFailedWithoutReason
	}
	return nil
}

// CardDraft is the structured draft a thread-to-card extraction produces.
// It is stored as JSONB on the extraction row and only turned into a real
// card on explicit confirmation.
type CardDraft struct {
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Checklist   []string    `json:"checklist,omitempty"`
	Labels      []string    `json:"labels,omitempty"`
	Assignees   []uuid.UUID `json:"assignees,omitempty"`
}

// ThreadExtraction is the materialized result of a thread-to-card job, keyed
// by job id. CreatedCardID is set once the draft has been confirmed into a
// real card, after which re-running the job is a no-op.
type ThreadExtraction struct {
	JobID         uuid.UUID       `json:"job_id"`
	OrgID         uuid.UUID       `json:"org_id"`
	BoardID       uuid.UUID       `json:"board_id"`
	ListID        uuid.UUID       `json:"list_id"`
	Status        JobStatus       `json:"status"`
	Transcript    string          `json:"transcript"`
	Participants  []string        `json:"participants,omitempty"`
	Draft         json.RawMessage `json:"draft,omitempty"`
	CreatedCardID *uuid.UUID      `json:"created_card_id,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks the ThreadExtraction's status/payload invariants.
func (x *ThreadExtraction) Validate() error {
	if x.JobID == uuid.Nil {
		return ErrEmptyResultID
	}
	if x.OrgID == uuid.Nil {
		return ErrEmptyResultOrgID
	}
	if !IsValidJobStatus(x.Status) {
		return ErrInvalidStatus
	}
	if x.Status == JobStatusCompleted && len(x.Draft) == 0 {
		return ErrCompletedWithoutResult
	}
	if x.Status == JobStatusFailed && (x.FailureReason == nil || *x.FailureReason == "") {
		return ErrFailedWithoutReason
	}
	return nil
}

// Settled reports whether a card has already been created from this
// extraction, making any further execution of its event a no-op.
func (x *ThreadExtraction) Settled() bool {
	return x.CreatedCardID != nil
}
