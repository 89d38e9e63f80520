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

// PostgresAnswerStore implements the store.AnswerStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAnswerStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresAnswerStore creates a new PostgreSQL implementation of the
// AnswerStore interface.
func NewPostgresAnswerStore(db store.DBTX, logger *slog.Logger) *PostgresAnswerStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAnswerStore{
		db:     db,
		logger: logger.With(slog.String("component", "answer_store")),
	}
}

// Ensure PostgresAnswerStore implements store.AnswerStore interface
var _ store.AnswerStore = (*PostgresAnswerStore)(nil)

// WithTx implements store.AnswerStore.WithTx
func (s *PostgresAnswerStore) WithTx(tx *sql.Tx) store.AnswerStore {
	return &PostgresAnswerStore{db: tx, logger: s.logger}
}

// Upsert implements store.AnswerStore.Upsert
func (s *PostgresAnswerStore) Upsert(ctx context.Context, answer *domain.BoardAnswer) error {
	if err := answer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	var citations []byte
	if len(answer.Citations) > 0 {
		var err error
		citations, err = json.Marshal(answer.Citations)
		if err != nil {
			return fmt.Errorf("failed to serialize citations: %w", err)
		}
	}

	query := `
		INSERT INTO board_answers (job_id, org_id, board_id, status, answer, citations, failure_reason, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE
		SET status = EXCLUDED.status,
		    answer = EXCLUDED.answer,
		    citations = EXCLUDED.citations,
		    failure_reason = EXCLUDED.failure_reason,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		answer.JobID,
		answer.OrgID,
		answer.BoardID,
		answer.Status,
		answer.Answer,
		citations,
		answer.FailureReason,
		answer.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to upsert board answer",
			"job_id", answer.JobID,
			"status", answer.Status,
			"error", err)
		return MapError(err)
	}

	return nil
}

// Get implements store.AnswerStore.Get
func (s *PostgresAnswerStore) Get(ctx context.Context, jobID uuid.UUID) (*domain.BoardAnswer, error) {
	query := `
		SELECT job_id, org_id, board_id, status, answer, citations, failure_reason, updated_at
		FROM board_answers
		WHERE job_id = $1
	`
	var (
		answer        domain.BoardAnswer
		answerText    sql.NullString
		citations     []byte
		failureReason sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&answer.JobID,
		&answer.OrgID,
		&answer.BoardID,
		&answer.Status,
		&answerText,
		&citations,
		&failureReason,
		&answer.UpdatedAt,
	)
	if err != nil {
		return nil, mapNotFound(err, store.ErrResultNotFound)
	}

	if answerText.Valid {
		answer.Answer = &answerText.String
	}
	if failureReason.Valid {
		answer.FailureReason = &failureReason.String
	}
	if len(citations) > 0 {
		if err := json.Unmarshal(citations, &answer.Citations); err != nil {
			return nil, fmt.Errorf("failed to deserialize citations for job %s: %w", jobID, err)
		}
	}

	return &answer, nil
}
