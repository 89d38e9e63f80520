package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresOutboxStore implements the store.OutboxStore interface
// using a PostgreSQL database as the storage backend.
type PostgresOutboxStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresOutboxStore creates a new PostgreSQL implementation of the
// OutboxStore interface. It accepts a database connection or transaction
// that should be initialized and managed by the caller.
func NewPostgresOutboxStore(db store.DBTX, logger *slog.Logger) *PostgresOutboxStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresOutboxStore{
		db:     db,
		logger: logger.With(slog.String("component", "outbox_store")),
	}
}

// Ensure PostgresOutboxStore implements store.OutboxStore interface
var _ store.OutboxStore = (*PostgresOutboxStore)(nil)

// WithTx implements store.OutboxStore.WithTx
func (s *PostgresOutboxStore) WithTx(tx *sql.Tx) store.OutboxStore {
	return &PostgresOutboxStore{
		db:     tx,
		logger: s.logger,
	}
}

// Append implements store.OutboxStore.Append
func (s *PostgresOutboxStore) Append(ctx context.Context, event *domain.OutboxEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO outbox_events (id, type, payload, org_id, board_id, attempt_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		[]byte(event.Payload),
		event.OrgID,
		event.BoardID,
		event.AttemptCount,
		event.CreatedAt,
	)
	if err != nil {
		s.logger.Error("failed to append outbox event",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err)
		return MapError(err)
	}

	return nil
}

// ClaimDue implements store.OutboxStore.ClaimDue. FOR UPDATE SKIP LOCKED
// locks the returned rows for this transaction while skipping rows already
// locked by a concurrent claimer, so multiple worker processes can poll the
// same table without a coordinator and without double-claiming.
func (s *PostgresOutboxStore) ClaimDue(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: claim limit must be positive", store.ErrInvalidEntity)
	}

	query := `
		SELECT id, type, payload, org_id, board_id, attempt_count,
		       last_error, next_retry_at, processed_at, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		  AND (next_retry_at IS NULL OR next_retry_at <= now())
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		s.logger.Error("failed to claim due events", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var events []*domain.OutboxEvent
	for rows.Next() {
		event, err := scanOutboxEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return events, nil
}

// MarkProcessed implements store.OutboxStore.MarkProcessed
func (s *PostgresOutboxStore) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	query := `
		UPDATE outbox_events
		SET processed_at = now(), last_error = NULL, next_retry_at = NULL
		WHERE id = $1
	`
	return s.execExpectingRow(ctx, query, eventID)
}

// ScheduleRetry implements store.OutboxStore.ScheduleRetry. The attempt
// counter increments here, in the same statement as the bookkeeping, so a
// crash between execution and update can never lose an attempt.
func (s *PostgresOutboxStore) ScheduleRetry(
	ctx context.Context,
	eventID uuid.UUID,
	lastError string,
	nextRetryAt time.Time,
) error {
	query := `
		UPDATE outbox_events
		SET attempt_count = attempt_count + 1, last_error = $2, next_retry_at = $3
		WHERE id = $1
	`
	return s.execExpectingRow(ctx, query, eventID, domain.TruncateFailureReason(lastError), nextRetryAt)
}

// Park implements store.OutboxStore.Park. Stamping processed_at retires the
// row from the claim query permanently while keeping it for audit.
func (s *PostgresOutboxStore) Park(ctx context.Context, eventID uuid.UUID, lastError string) error {
	query := `
		UPDATE outbox_events
		SET attempt_count = attempt_count + 1, last_error = $2, next_retry_at = NULL, processed_at = now()
		WHERE id = $1
	`
	return s.execExpectingRow(ctx, query, eventID, domain.TruncateFailureReason(lastError))
}

// GetByID implements store.OutboxStore.GetByID
func (s *PostgresOutboxStore) GetByID(ctx context.Context, eventID uuid.UUID) (*domain.OutboxEvent, error) {
	query := `
		SELECT id, type, payload, org_id, board_id, attempt_count,
		       last_error, next_retry_at, processed_at, created_at
		FROM outbox_events
		WHERE id = $1
	`
	event, err := scanOutboxEvent(s.db.QueryRowContext(ctx, query, eventID))
	if err != nil {
		return nil, mapNotFound(err, store.ErrEventNotFound)
	}
	return event, nil
}

func (s *PostgresOutboxStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("outbox update failed", "error", err)
		return MapError(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrEventNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan code.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxEvent(row rowScanner) (*domain.OutboxEvent, error) {
	var (
		event       domain.OutboxEvent
		boardID     uuid.NullUUID
		lastError   sql.NullString
		nextRetryAt sql.NullTime
		processedAt sql.NullTime
	)
	err := row.Scan(
		&event.ID,
		&event.Type,
		(*[]byte)(&event.Payload),
		&event.OrgID,
		&boardID,
		&event.AttemptCount,
		&lastError,
		&nextRetryAt,
		&processedAt,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if boardID.Valid {
		event.BoardID = &boardID.UUID
	}
	if lastError.Valid {
		event.LastError = &lastError.String
	}
	if nextRetryAt.Valid {
		t := nextRetryAt.Time
		event.NextRetryAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		event.ProcessedAt = &t
	}

	return &event, nil
}
