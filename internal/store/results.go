package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// SummaryStore persists card-summary result rows, keyed by card id so a
// retried executor overwrites rather than duplicates.
type SummaryStore interface {
	// Upsert inserts or replaces the summary row for its card id.
	Upsert(ctx context.Context, summary *domain.CardSummary) error

	// Get retrieves the summary row for a card.
	// Returns ErrResultNotFound if no row exists.
	Get(ctx context.Context, cardID uuid.UUID) (*domain.CardSummary, error)

	// WithTx returns a new SummaryStore bound to the provided transaction.
	WithTx(tx *sql.Tx) SummaryStore
}

// AnswerStore persists ask-board result rows, keyed by job id.
type AnswerStore interface {
	Upsert(ctx context.Context, answer *domain.BoardAnswer) error
	Get(ctx context.Context, jobID uuid.UUID) (*domain.BoardAnswer, error)
	WithTx(tx *sql.Tx) AnswerStore
}

// ExtractionStore persists thread-to-card result rows, keyed by job id.
type ExtractionStore interface {
	Upsert(ctx context.Context, extraction *domain.ThreadExtraction) error
	Get(ctx context.Context, jobID uuid.UUID) (*domain.ThreadExtraction, error)

	// SetCreatedCard records the card created from a completed extraction.
	// Returns ErrUpdateFailed if a different card id has already been set,
	// which keeps confirmation idempotent under concurrent calls.
	SetCreatedCard(ctx context.Context, jobID, cardID uuid.UUID) error

	WithTx(tx *sql.Tx) ExtractionStore
}
