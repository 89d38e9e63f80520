package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// OutboxStore defines the persistence interface for the durable event queue.
type OutboxStore interface {
	// Append inserts a new outbox event. It is called inside the producer's
	// enqueue transaction, alongside the result-row placeholder write.
	Append(ctx context.Context, event *domain.OutboxEvent) error

	// ClaimDue locks and returns up to limit unprocessed events whose retry
	// time (if any) has passed, ordered by creation time. Rows locked by a
	// concurrent claimer are skipped, so multiple worker processes can poll
	// the same table without double-claiming. Must run inside a transaction.
	ClaimDue(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)

	// MarkProcessed stamps processed_at and clears retry bookkeeping.
	MarkProcessed(ctx context.Context, eventID uuid.UUID) error

	// ScheduleRetry records a failed attempt: increments the attempt count,
	// stores the truncated error, and sets the next retry time.
	ScheduleRetry(ctx context.Context, eventID uuid.UUID, lastError string, nextRetryAt time.Time) error

	// Park permanently retires a poison event: increments the attempt count,
	// stores the error, and stamps processed_at so the event is never
	// reclaimed. The row is kept for audit.
	Park(ctx context.Context, eventID uuid.UUID, lastError string) error

	// GetByID retrieves a single event regardless of processing state.
	GetByID(ctx context.Context, eventID uuid.UUID) (*domain.OutboxEvent, error)

	// WithTx returns a new OutboxStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) OutboxStore
}
