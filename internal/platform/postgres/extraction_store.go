package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresExtractionStore implements the store.ExtractionStore interface
// using a PostgreSQL database as the storage backend.
type PostgresExtractionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresExtractionStore creates a new PostgreSQL implementation of the
// ExtractionStore interface.
func NewPostgresExtractionStore(db store.DBTX, logger *slog.Logger) *PostgresExtractionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresExtractionStore{
		db:     db,
		logger: logger.With(slog.String("component", "extraction_store")),
	}
}

// Ensure PostgresExtractionStore implements store.ExtractionStore interface
var _ store.ExtractionStore = (*PostgresExtractionStore)(nil)

// WithTx implements store.ExtractionStore.WithTx
func (s *PostgresExtractionStore) WithTx(tx *sql.Tx) store.ExtractionStore {
	return &PostgresExtractionStore{db: tx, logger: s.logger}
}

// Upsert implements store.ExtractionStore.Upsert. The created_card_id column
// is deliberately not written here: once set by SetCreatedCard it must
// survive any executor re-run.
func (s *PostgresExtractionStore) Upsert(ctx context.Context, extraction *domain.ThreadExtraction) error {
	if err := extraction.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	var participants []byte
	if len(extraction.Participants) > 0 {
		var err error
		participants, err = json.Marshal(extraction.Participants)
		if err != nil {
			return fmt.Errorf("failed to serialize participants: %w", err)
		}
	}

	query := `
		INSERT INTO thread_extractions
			(job_id, org_id, board_id, list_id, status, transcript, participants, draft, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    draft = EXCLUDED.draft,
		    failure_reason = EXCLUDED.failure_reason,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		extraction.JobID,
		extraction.OrgID,
		extraction.BoardID,
		extraction.ListID,
		extraction.Status,
		extraction.Transcript,
		participants,
		[]byte(extraction.Draft),
		extraction.FailureReason,
		extraction.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to upsert thread extraction",
			"job_id", extraction.JobID,
			"status", extraction.Status,
			"error", err)
		return MapError(err)
	}

	return nil
}

// Get implements store.ExtractionStore.Get
func (s *PostgresExtractionStore) Get(ctx context.Context, jobID uuid.UUID) (*domain.ThreadExtraction, error) {
	query := `
		SELECT job_id, org_id, board_id, list_id, status, transcript,
		       participants, draft, created_card_id, failure_reason, updated_at
		FROM thread_extractions
		WHERE job_id = $1
	`
	var (
		extraction    domain.ThreadExtraction
		participants  []byte
		draft         []byte
		createdCardID uuid.NullUUID
		failureReason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&extraction.JobID,
		&extraction.OrgID,
		&extraction.BoardID,
		&extraction.ListID,
		&extraction.Status,
		&extraction.Transcript,
		&participants,
		&draft,
		&createdCardID,
		&failureReason,
		&extraction.UpdatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err, store.ErrResultNotFound)
	}

	if len(participants) > 0 {
		if err := json.Unmarshal(participants, &extraction.Participants); err != nil {
			return nil, fmt.Errorf("failed to deserialize participants for job %s: %w", jobID, err)
		}
	}
	if len(draft) > 0 {
		extraction.Draft = json.RawMessage(draft)
	}
	if createdCardID.Valid {
		extraction.CreatedCardID = &createdCardID.UUID
	}
	if failureReason.Valid {
		extraction.FailureReason = &failureReason.String
	}

	return &extraction, nil
}

// SetCreatedCard implements store.ExtractionStore.SetCreatedCard. The WHERE
// clause only matches when no different card id has been recorded, so under
// concurrent confirmations exactly one wins and the rest observe
// ErrUpdateFailed.
func (s *PostgresExtractionStore) SetCreatedCard(ctx context.Context, jobID, cardID uuid.UUID) error {
	query := `
		UPDATE thread_extractions
		SET created_card_id = $2, updated_at = now()
		WHERE job_id = $1
		  AND (created_card_id IS NULL OR created_card_id = $2)
	`
	result, err := s.db.ExecContext(ctx, query, jobID, cardID)
	if err != nil {
		s.logger.Error("failed to set created card",
			"job_id", jobID,
			"card_id", cardID,
			"error", err)
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := s.exists(ctx, jobID)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return store.ErrResultNotFound
		}
		return fmt.Errorf("%w: extraction %s already linked to a different card", store.ErrUpdateFailed, jobID)
	}

	return nil
}

func (s *PostgresExtractionStore) exists(ctx context.Context, jobID uuid.UUID) (bool, error) {
	var found bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM thread_extractions WHERE job_id = $1)`, jobID,
	).Scan(&found)
	if err != nil {
		return false, MapError(err)
	}
	return found, nil
}
