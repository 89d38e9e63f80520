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
	"github.com/quillboard/quillboard-api/internal/retrieval"
	"github.com/quillboard/quillboard-api/internal/store"
)

// ErrNoContexts is returned when retrieval finds nothing to ground an answer
// in. It is transient: the corpus may simply not be indexed yet, and a later
// redelivery can succeed once cards have been synced.
var ErrNoContexts = errors.New("retrieval returned no contexts")

// defaultSyncCardLimit bounds how many recently-updated cards an ask-board
// execution re-indexes before retrieving.
const defaultSyncCardLimit = 50

// AskExecutor handles ask-board events: re-sync the board's most recently
// updated cards into the document index, retrieve top-K contexts, generate a
// grounded answer, and persist it with verified citations. All data access
// runs under the enqueuing actor's tenant scope.
type AskExecutor struct {
	scope         store.ScopeRunner
	boards        store.BoardStore
	cards         store.CardStore
	answers       store.AnswerStore
	docs          store.DocumentStore
	index         *indexer.Indexer
	retriever     *retrieval.Retriever
	generator     generation.Generator
	syncCardLimit int
	logger        *slog.Logger
}

// NewAskExecutor creates an AskExecutor. syncCardLimit <= 0 selects the
// default bound of 50 cards.
func NewAskExecutor(
	scope store.ScopeRunner,
	boards store.BoardStore,
	cards store.CardStore,
	answers store.AnswerStore,
	docs store.DocumentStore,
	index *indexer.Indexer,
	retriever *retrieval.Retriever,
	generator generation.Generator,
	syncCardLimit int,
	logger *slog.Logger,
) *AskExecutor {
	if syncCardLimit <= 0 {
		syncCardLimit = defaultSyncCardLimit
	}
	return &AskExecutor{
		scope:         scope,
		boards:        boards,
		cards:         cards,
		answers:       answers,
		docs:          docs,
		index:         index,
		retriever:     retriever,
		generator:     generator,
		syncCardLimit: syncCardLimit,
		logger:        logger.With("executor", "ask_board"),
	}
}

// Execute implements Executor. Corpus sync and retrieval share one scoped
// transaction so row-level security bounds everything the prompt can see;
// the generation call runs outside any transaction.
func (e *AskExecutor) Execute(ctx context.Context, cmd outbox.Command) error {
	payload, ok := cmd.(*outbox.AskBoardPayload)
	if !ok {
		return fmt.Errorf("%w: ask-board executor received %T", outbox.ErrMalformedPayload, cmd)
	}
	principal := cmd.Principal()

	var (
		board    *domain.Board
		contexts []domain.RetrievedContext
		done     bool
	)
	err := e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		existing, err := e.answers.WithTx(tx).Get(ctx, payload.JobID)
		if err != nil && !errors.Is(err, store.ErrResultNotFound) {
			return fmt.Errorf("failed to load answer row for job %s: %w", payload.JobID, err)
		}
		if existing != nil && existing.Status == domain.JobStatusCompleted {
			done = true
			return nil
		}

		board, err = e.boards.WithTx(tx).GetBoard(ctx, payload.BoardID)
		if err != nil {
			return fmt.Errorf("failed to load board %s: %w", payload.BoardID, err)
		}

		txDocs := e.docs.WithTx(tx)

		recent, err := e.cards.WithTx(tx).RecentByBoard(ctx, payload.BoardID, e.syncCardLimit)
		if err != nil {
			return fmt.Errorf("failed to list recent cards: %w", err)
		}
		if err := e.index.IndexCards(ctx, txDocs, recent); err != nil {
			return fmt.Errorf("corpus sync failed: %w", err)
		}

		contexts, err = e.retriever.Retrieve(ctx, txDocs, payload.BoardID, payload.Question, payload.TopK)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if done {
		// Redelivery of an already-answered job id; the answer is durable.
		e.logger.Info("answer already completed, skipping", "job_id", payload.JobID)
		return nil
	}

	if len(contexts) == 0 {
		return fmt.Errorf("%w: board %s", ErrNoContexts, payload.BoardID)
	}

	result, err := e.generator.AnswerQuestion(ctx, board.Name, payload.Question, contexts)
	if err != nil {
		return fmt.Errorf("answer generation failed for job %s: %w", payload.JobID, err)
	}

	answer := &domain.BoardAnswer{
		JobID:     payload.JobID,
		OrgID:     principal.OrgID,
		BoardID:   payload.BoardID,
		Status:    domain.JobStatusCompleted,
		Answer:    &result.Answer,
		Citations: retrieval.GroundCitations(result, contexts),
		UpdatedAt: time.Now().UTC(),
	}
	if err := answer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	err = e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		return e.answers.WithTx(tx).Upsert(ctx, answer)
	})
	if err != nil {
		return fmt.Errorf("failed to persist answer for job %s: %w", payload.JobID, err)
	}

	return nil
}

// RecordFailure implements Executor. Errors are logged and swallowed: the
// event itself is already parked with the full reason.
func (e *AskExecutor) RecordFailure(ctx context.Context, cmd outbox.Command, reason string) {
	payload, ok := cmd.(*outbox.AskBoardPayload)
	if !ok {
		return
	}

	truncated := domain.TruncateFailureReason(reason)
	failed := &domain.BoardAnswer{
		JobID:         payload.JobID,
		OrgID:         cmd.Principal().OrgID,
		BoardID:       payload.BoardID,
		Status:        domain.JobStatusFailed,
		FailureReason: &truncated,
		UpdatedAt:     time.Now().UTC(),
	}
	err := e.scope.RunScoped(ctx, cmd.Principal(), func(ctx context.Context, tx *sql.Tx) error {
		return e.answers.WithTx(tx).Upsert(ctx, failed)
	})
	if err != nil {
		e.logger.Error("failed to persist answer failure",
			"job_id", payload.JobID,
			"error", err)
	}
}
