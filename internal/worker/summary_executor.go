package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/indexer"
	"github.com/quillboard/quillboard-api/internal/outbox"
	"github.com/quillboard/quillboard-api/internal/store"
)

// SummaryExecutor handles card-summary events: load the card under the
// actor's tenant scope, generate a summary, persist the completed result,
// then opportunistically re-index the card so the retrieval corpus stays
// fresh. The result row is keyed by card id, so a redelivered event
// overwrites the same row with the same content.
type SummaryExecutor struct {
	scope     store.ScopeRunner
	cards     store.CardStore
	summaries store.SummaryStore
	docs      store.DocumentStore
	index     *indexer.Indexer
	generator generation.Generator
	logger    *slog.Logger
}

// NewSummaryExecutor creates a SummaryExecutor.
func NewSummaryExecutor(
	scope store.ScopeRunner,
	cards store.CardStore,
	summaries store.SummaryStore,
	docs store.DocumentStore,
	index *indexer.Indexer,
	generator generation.Generator,
	logger *slog.Logger,
) *SummaryExecutor {
	return &SummaryExecutor{
		scope:     scope,
		cards:     cards,
		summaries: summaries,
		docs:      docs,
		index:     index,
		generator: generator,
		logger:    logger.With("executor", "card_summary"),
	}
}

// Execute implements Executor. The AI call runs between the read and write
// transactions so no database transaction spans a network call to the model.
func (e *SummaryExecutor) Execute(ctx context.Context, cmd outbox.Command) error {
	payload, ok := cmd.(*outbox.CardSummaryPayload)
	if !ok {
		return fmt.Errorf("%w: card-summary executor received %T", outbox.ErrMalformedPayload, cmd)
	}
	principal := cmd.Principal()

	var (
		card *domain.Card
		done bool
	)
	err := e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := e.summaries.WithTx(tx).Get(ctx, payload.CardID)
		if err != nil && !errors.Is(err, store.ErrResultNotFound) {
			return fmt.Errorf("failed to load summary row for card %s: %w", payload.CardID, err)
		}
		if existing != nil && existing.Status == domain.JobStatusCompleted {
			done = true
			return nil
		}
		card, err = e.cards.WithTx(tx).GetCard(ctx, payload.CardID)
		if err != nil {
			return fmt.Errorf("failed to load card %s: %w", payload.CardID, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if done {
		// Redelivery of an already-completed job: a fresh enqueue resets
		// the row to queued, so a completed row means this exact work ran.
		e.logger.Info("summary already completed, skipping", "card_id", payload.CardID)
		return nil
	}

	result, err := e.generator.GenerateSummary(ctx, card)
	if err != nil {
		return fmt.Errorf("summary generation failed for card %s: %w", payload.CardID, err)
	}

	summary := &domain.CardSummary{
		CardID:    card.ID,
		OrgID:     card.OrgID,
		Status:    domain.JobStatusCompleted,
		Summary:   &result.Summary,
		UpdatedAt: time.Now().UTC(),
	}
	if err := summary.Validate(); err != nil {
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	err = e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		return e.summaries.WithTx(tx).Upsert(ctx, summary)
	})
	if err != nil {
		return fmt.Errorf("failed to persist summary for card %s: %w", payload.CardID, err)
	}

	// Re-indexing is best-effort: the summary is already durable, and the
	// next board sync will pick the card up anyway.
	err = e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		return e.index.IndexSource(ctx, e.docs.WithTx(tx), indexer.CardSource(card))
	})
	if err != nil {
		e.logger.Warn("card re-index after summary failed",
			"card_id", card.ID,
			"error", err)
	}

	return nil
}

// RecordFailure implements Executor. Errors are logged and swallowed: the
// event itself is already parked with the full reason.
func (e *SummaryExecutor) RecordFailure(ctx context.Context, cmd outbox.Command, reason string) {
	payload, ok := cmd.(*outbox.CardSummaryPayload)
	if !ok {
		return
	}

	truncated := domain.TruncateFailureReason(reason)
	failed := &domain.CardSummary{
		CardID:        payload.CardID,
		OrgID:         cmd.Principal().OrgID,
		Status:        domain.JobStatusFailed,
		FailureReason: &truncated,
		UpdatedAt:     time.Now().UTC(),
	}
	err := e.scope.RunScoped(ctx, cmd.Principal(), func(ctx context.Context, tx *sql.Tx) error {
		return e.summaries.WithTx(tx).Upsert(ctx, failed)
	})
	if err != nil {
		e.logger.Error("failed to persist summary failure",
			"card_id", payload.CardID,
			"error", err)
	}
}
