package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresSummaryStore implements the store.SummaryStore interface
// using a PostgreSQL database as the storage backend.
type PostgresSummaryStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSummaryStore creates a new PostgreSQL implementation of the
// SummaryStore interface.
func NewPostgresSummaryStore(db store.DBTX, logger *slog.Logger) *PostgresSummaryStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSummaryStore{
		db:     db,
		logger: logger.With(slog.String("component", "summary_store")),
	}
}

// Ensure PostgresSummaryStore implements store.SummaryStore interface
var _ store.SummaryStore = (*PostgresSummaryStore)(nil)

// WithTx implements store.SummaryStore.WithTx
func (s *PostgresSummaryStore) WithTx(tx *sql.Tx) store.SummaryStore {
	return &PostgresSummaryStore{db: tx, logger: s.logger}
}

// Upsert implements store.SummaryStore.Upsert. Keyed by card id so a retried
// executor overwrites rather than duplicates.
func (s *PostgresSummaryStore) Upsert(ctx context.Context, summary *domain.CardSummary) error {
	if err := summary.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO card_summaries (card_id, org_id, status, summary, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (card_id) DO UPDATE
		SET status = EXCLUDED.status,
		    summary = EXCLUDED.summary,
		    failure_reason = EXCLUDED.failure_reason,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		summary.CardID,
		summary.OrgID,
		summary.Status,
		summary.Summary,
		summary.FailureReason,
		summary.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to upsert card summary",
			"card_id", summary.CardID,
			"status", summary.Status,
			"error", err)
		return MapError(err)
	}

	return nil
}

// Get implements store.SummaryStore.Get
func (s *PostgresSummaryStore) Get(ctx context.Context, cardID uuid.UUID) (*domain.CardSummary, error) {
	query := `
		SELECT card_id, org_id, status, summary, failure_reason, updated_at
		FROM card_summaries
		WHERE card_id = $1
	`
	var (
		summary       domain.CardSummary
		summaryText   sql.NullString
		failureReason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, cardID).Scan(
		&summary.CardID,
		&summary.OrgID,
		&summary.Status,
		&summaryText,
		&failureReason,
		&summary.UpdatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err, store.ErrResultNotFound)
	}

	if summaryText.Valid {
		summary.Summary = &summaryText.String
	}
	if failureReason.Valid {
		summary.FailureReason = &failureReason.String
	}

	return &summary, nil
}
