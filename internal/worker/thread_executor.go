package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/outbox"
	"github.com/quillboard/quillboard-api/internal/store"
)

// ThreadExecutor handles thread-to-card events: draft a card from a chat
// transcript, resolve mentioned participants to org members, and persist the
// draft on the extraction row. The draft only becomes a real card on
// explicit confirmation, which happens outside this executor.
//
// Unlike the other executors, a generation failure here is persisted onto
// the result row as failed before the error is rethrown for retry
// bookkeeping, so pollers of the job see the failure reason while the outbox
// row backs off.
type ThreadExecutor struct {
	scope       store.ScopeRunner
	extractions store.ExtractionStore
	members     store.MemberStore
	generator   generation.Generator
	logger      *slog.Logger
}

// NewThreadExecutor creates a ThreadExecutor.
func NewThreadExecutor(
	scope store.ScopeRunner,
	extractions store.ExtractionStore,
	members store.MemberStore,
	generator generation.Generator,
	logger *slog.Logger,
) *ThreadExecutor {
	return &ThreadExecutor{
		scope:       scope,
		extractions: extractions,
		members:     members,
		generator:   generator,
		logger:      logger.With("executor", "thread_to_card"),
	}
}

// Execute implements Executor. Redelivery of an extraction that already has
// a draft, or was settled into a card, is a no-op.
func (e *ThreadExecutor) Execute(ctx context.Context, cmd outbox.Command) error {
	payload, ok := cmd.(*outbox.ThreadToCardPayload)
	if !ok {
		return fmt.Errorf("%w: thread-to-card executor received %T", outbox.ErrMalformedPayload, cmd)
	}
	principal := cmd.Principal()

	var existing *domain.ThreadExtraction
	err := e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		existing, err = e.extractions.WithTx(tx).Get(ctx, payload.JobID)
		if err != nil {
			return fmt.Errorf("failed to load extraction %s: %w", payload.JobID, err)
		}
		if existing.Settled() || existing.Status == domain.JobStatusCompleted {
			return nil
		}

		processing := *existing
		processing.Status = domain.JobStatusProcessing
		processing.UpdatedAt = time.Now().UTC()
		return e.extractions.WithTx(tx).Upsert(ctx, &processing)
	})
	if err != nil {
		return err
	}
	if existing.Settled() || existing.Status == domain.JobStatusCompleted {
		// Redelivery after the draft was already produced; re-drafting
		// would clobber the draft a user may be about to confirm.
		e.logger.Info("extraction already drafted, skipping", "job_id", payload.JobID)
		return nil
	}

	result, err := e.generator.DraftCard(ctx, payload.Transcript, payload.Participants)
	if err != nil {
		e.markFailed(ctx, principal, existing, fmt.Sprintf("card drafting failed: %v", err))
		return fmt.Errorf("card drafting failed for job %s: %w", payload.JobID, err)
	}

	draft, err := e.buildDraft(ctx, principal, result)
	if err != nil {
		e.markFailed(ctx, principal, existing, fmt.Sprintf("draft post-processing failed: %v", err))
		return fmt.Errorf("draft post-processing failed for job %s: %w", payload.JobID, err)
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to serialize draft for job %s: %w", payload.JobID, err)
	}

	completed := *existing
	completed.Status = domain.JobStatusCompleted
	completed.Draft = raw
	completed.FailureReason = nil
	completed.UpdatedAt = time.Now().UTC()
	if err := completed.Validate(); err != nil {
		return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}

	err = e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		return e.extractions.WithTx(tx).Upsert(ctx, &completed)
	})
	if err != nil {
		return fmt.Errorf("failed to persist draft for job %s: %w", payload.JobID, err)
	}

	return nil
}

// RecordFailure implements Executor. The row is rebuilt from the payload so
// a dead letter leaves a failed result even when the placeholder row was
// never loaded.
func (e *ThreadExecutor) RecordFailure(ctx context.Context, cmd outbox.Command, reason string) {
	payload, ok := cmd.(*outbox.ThreadToCardPayload)
	if !ok {
		return
	}

	extraction := &domain.ThreadExtraction{
		JobID:        payload.JobID,
		OrgID:        cmd.Principal().OrgID,
		BoardID:      payload.BoardID,
		ListID:       payload.ListID,
		Transcript:   payload.Transcript,
		Participants: payload.Participants,
	}
	e.markFailed(ctx, cmd.Principal(), extraction, reason)
}

// buildDraft normalizes the model's draft and resolves participant
// identities to member user ids. Identities with no matching membership are
// dropped silently: chat threads routinely mention people outside the org.
func (e *ThreadExecutor) buildDraft(
	ctx context.Context,
	principal domain.Principal,
	result *generation.DraftResult,
) (*domain.CardDraft, error) {
	var assignees []uuid.UUID
	identities := normalizeStrings(result.ParticipantIdentities)
	if len(identities) > 0 {
		err := e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
			resolved, err := e.members.WithTx(tx).ResolveIdentities(ctx, identities)
			if err != nil {
				return err
			}
			for _, identity := range identities {
				if userID, ok := resolved[identity]; ok {
					assignees = append(assignees, userID)
				}
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to resolve participants: %w", err)
		}
	}

	return &domain.CardDraft{
		Title:       strings.TrimSpace(result.Title),
		Description: strings.TrimSpace(result.Description),
		Checklist:   normalizeStrings(result.Checklist),
		Labels:      normalizeStrings(result.Labels),
		Assignees:   assignees,
	}, nil
}

// markFailed persists the failed status with a truncated reason. Errors here
// are logged and swallowed: the caller is already propagating the original
// failure to the claim loop.
func (e *ThreadExecutor) markFailed(
	ctx context.Context,
	principal domain.Principal,
	extraction *domain.ThreadExtraction,
	reason string,
) {
	truncated := domain.TruncateFailureReason(reason)
	failed := *extraction
	failed.Status = domain.JobStatusFailed
	failed.FailureReason = &truncated
	failed.UpdatedAt = time.Now().UTC()

	err := e.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		return e.extractions.WithTx(tx).Upsert(ctx, &failed)
	})
	if err != nil {
		e.logger.Error("failed to persist extraction failure",
			"job_id", extraction.JobID,
			"error", err)
	}
}

// normalizeStrings trims entries, drops empties, and deduplicates while
// preserving first-seen order.
func normalizeStrings(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || seen[trimmed] {
			continue
		}
		seen[trimmed] = true
		out = append(out, trimmed)
	}
	return out
}
