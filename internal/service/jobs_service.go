package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/outbox"
	"github.com/quillboard/quillboard-api/internal/store"
)

// Service-level sentinel errors.
var (
	// ErrExtractionNotReady indicates a confirmation attempt against an
	// extraction that has not produced a draft yet.
	ErrExtractionNotReady = errors.New("extraction has no confirmed draft yet")
)

// JobTicket is the producer's receipt for an enqueued job. The caller polls
// the matching status endpoint with the job id.
type JobTicket struct {
	JobID     uuid.UUID        `json:"job_id"`
	EventType domain.EventType `json:"event_type"`
	Status    domain.JobStatus `json:"status"`
	QueuedAt  time.Time        `json:"queued_at"`
}

// ConfirmResult reports the outcome of confirming a thread extraction.
// Created is false when the extraction had already been confirmed; CardID
// then names the card created by the earlier confirmation.
type ConfirmResult struct {
	CardID  uuid.UUID `json:"card_id"`
	Created bool      `json:"created"`
}

// JobsService is the producer-side API for the three async job kinds.
// Every enqueue writes the queued result row and the outbox event in one
// tenant-scoped transaction, so a crash between "request accepted" and
// "work recorded" is impossible.
type JobsService interface {
	// EnqueueCardSummary requests a summary of one card. The job id is the
	// card id.
	EnqueueCardSummary(ctx context.Context, principal domain.Principal, cardID uuid.UUID, reason string) (*JobTicket, error)

	// EnqueueAskBoard requests a grounded answer to a question about a
	// board. A non-positive topK falls back to the service default.
	EnqueueAskBoard(ctx context.Context, principal domain.Principal, boardID uuid.UUID, question string, topK int) (*JobTicket, error)

	// EnqueueThreadToCard requests extraction of a card draft from a chat
	// thread transcript.
	EnqueueThreadToCard(ctx context.Context, principal domain.Principal, boardID, listID uuid.UUID, transcript string, participants []string) (*JobTicket, error)

	// GetCardSummary reads the summary result row for a card.
	GetCardSummary(ctx context.Context, principal domain.Principal, cardID uuid.UUID) (*domain.CardSummary, error)

	// GetBoardAnswer reads the ask-board result row for a job.
	GetBoardAnswer(ctx context.Context, principal domain.Principal, jobID uuid.UUID) (*domain.BoardAnswer, error)

	// GetThreadExtraction reads the thread-to-card result row for a job.
	GetThreadExtraction(ctx context.Context, principal domain.Principal, jobID uuid.UUID) (*domain.ThreadExtraction, error)

	// ConfirmThreadExtraction turns a completed extraction's draft into a
	// real card. Confirming twice returns the same card id with
	// Created=false; two racing confirmations create exactly one card.
	ConfirmThreadExtraction(ctx context.Context, principal domain.Principal, jobID uuid.UUID) (*ConfirmResult, error)
}

// jobsServiceImpl implements the JobsService interface.
type jobsServiceImpl struct {
	scope       store.ScopeRunner
	boards      store.BoardStore
	cards       store.CardStore
	events      store.OutboxStore
	summaries   store.SummaryStore
	answers     store.AnswerStore
	extractions store.ExtractionStore
	defaultTopK int
	logger      *slog.Logger
}

// NewJobsService creates a new JobsService.
// It returns an error if any of the required dependencies are nil.
func NewJobsService(
	scope store.ScopeRunner,
	boards store.BoardStore,
	cards store.CardStore,
	events store.OutboxStore,
	summaries store.SummaryStore,
	answers store.AnswerStore,
	extractions store.ExtractionStore,
	defaultTopK int,
	logger *slog.Logger,
) (JobsService, error) {
	if scope == nil {
		return nil, errors.New("scope runner cannot be nil")
	}
	if boards == nil {
		return nil, errors.New("board store cannot be nil")
	}
	if cards == nil {
		return nil, errors.New("card store cannot be nil")
	}
	if events == nil {
		return nil, errors.New("outbox store cannot be nil")
	}
	if summaries == nil {
		return nil, errors.New("summary store cannot be nil")
	}
	if answers == nil {
		return nil, errors.New("answer store cannot be nil")
	}
	if extractions == nil {
		return nil, errors.New("extraction store cannot be nil")
	}
	if defaultTopK <= 0 {
		return nil, errors.New("default top-k must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &jobsServiceImpl{
		scope:       scope,
		boards:      boards,
		cards:       cards,
		events:      events,
		summaries:   summaries,
		answers:     answers,
		extractions: extractions,
		defaultTopK: defaultTopK,
		logger:      logger.With(slog.String("component", "jobs_service")),
	}, nil
}

// EnqueueCardSummary implements JobsService.EnqueueCardSummary
func (s *jobsServiceImpl) EnqueueCardSummary(
	ctx context.Context,
	principal domain.Principal,
	cardID uuid.UUID,
	reason string,
) (*JobTicket, error) {
	if !principal.CanWrite() {
		return nil, fmt.Errorf("%w: role %q cannot enqueue jobs", domain.ErrForbidden, principal.Role)
	}
	if cardID == uuid.Nil {
		return nil, fmt.Errorf("%w: card id cannot be empty", domain.ErrValidation)
	}

	now := time.Now().UTC()
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		// Under row-level security a cross-tenant card id reads as missing,
		// so this lookup is both the existence check and the access check.
		card, err := s.cards.WithTx(tx).GetCard(ctx, cardID)
		if err != nil {
			return err
		}

		placeholder := &domain.CardSummary{
			CardID:    cardID,
			OrgID:     principal.OrgID,
			Status:    domain.JobStatusQueued,
			UpdatedAt: now,
		}
		if err := s.summaries.WithTx(tx).Upsert(ctx, placeholder); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, &outbox.CardSummaryPayload{
			Version: outbox.PayloadVersion,
			CardID:  cardID,
			Reason:  reason,
			Actor:   principal,
		}, &card.BoardID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Card summary job enqueued",
		slog.String("card_id", cardID.String()),
		slog.String("org_id", principal.OrgID.String()))

	return &JobTicket{
		JobID:     cardID,
		EventType: domain.EventTypeCardSummary,
		Status:    domain.JobStatusQueued,
		QueuedAt:  now,
	}, nil
}

// EnqueueAskBoard implements JobsService.EnqueueAskBoard
func (s *jobsServiceImpl) EnqueueAskBoard(
	ctx context.Context,
	principal domain.Principal,
	boardID uuid.UUID,
	question string,
	topK int,
) (*JobTicket, error) {
	if !principal.CanWrite() {
		return nil, fmt.Errorf("%w: role %q cannot enqueue jobs", domain.ErrForbidden, principal.Role)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", domain.ErrValidation)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	jobID := uuid.New()
	now := time.Now().UTC()
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.boards.WithTx(tx).GetBoard(ctx, boardID); err != nil {
			return err
		}

		placeholder := &domain.BoardAnswer{
			JobID:     jobID,
			OrgID:     principal.OrgID,
			BoardID:   boardID,
			Status:    domain.JobStatusQueued,
			UpdatedAt: now,
		}
		if err := s.answers.WithTx(tx).Upsert(ctx, placeholder); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, &outbox.AskBoardPayload{
			Version:  outbox.PayloadVersion,
			JobID:    jobID,
			BoardID:  boardID,
			Question: question,
			TopK:     topK,
			Actor:    principal,
		}, &boardID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Ask-board job enqueued",
		slog.String("job_id", jobID.String()),
		slog.String("board_id", boardID.String()))

	return &JobTicket{
		JobID:     jobID,
		EventType: domain.EventTypeAskBoard,
		Status:    domain.JobStatusQueued,
		QueuedAt:  now,
	}, nil
}

// EnqueueThreadToCard implements JobsService.EnqueueThreadToCard
func (s *jobsServiceImpl) EnqueueThreadToCard(
	ctx context.Context,
	principal domain.Principal,
	boardID, listID uuid.UUID,
	transcript string,
	participants []string,
) (*JobTicket, error) {
	if !principal.CanWrite() {
		return nil, fmt.Errorf("%w: role %q cannot enqueue jobs", domain.ErrForbidden, principal.Role)
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcript cannot be empty", domain.ErrValidation)
	}
	if listID == uuid.Nil {
		return nil, fmt.Errorf("%w: list id cannot be empty", domain.ErrValidation)
	}

	jobID := uuid.New()
	now := time.Now().UTC()
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := s.boards.WithTx(tx).GetBoard(ctx, boardID); err != nil {
			return err
		}

		placeholder := &domain.ThreadExtraction{
			JobID:        jobID,
			OrgID:        principal.OrgID,
			BoardID:      boardID,
			ListID:       listID,
			Status:       domain.JobStatusQueued,
			Transcript:   transcript,
			Participants: participants,
			UpdatedAt:    now,
		}
		if err := s.extractions.WithTx(tx).Upsert(ctx, placeholder); err != nil {
			return err
		}

		return s.appendEvent(ctx, tx, &outbox.ThreadToCardPayload{
			Version:      outbox.PayloadVersion,
			JobID:        jobID,
			BoardID:      boardID,
			ListID:       listID,
			Transcript:   transcript,
			Participants: participants,
			Actor:        principal,
		}, &boardID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Thread-to-card job enqueued",
		slog.String("job_id", jobID.String()),
		slog.String("board_id", boardID.String()))

	return &JobTicket{
		JobID:     jobID,
		EventType: domain.EventTypeThreadToCard,
		Status:    domain.JobStatusQueued,
		QueuedAt:  now,
	}, nil
}

// appendEvent encodes the command and appends its outbox event inside the
// caller's transaction.
func (s *jobsServiceImpl) appendEvent(
	ctx context.Context,
	tx *sql.Tx,
	cmd outbox.Command,
	boardID *uuid.UUID,
) error {
	payload, err := outbox.Encode(cmd)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	event, err := domain.NewOutboxEvent(cmd.Kind(), payload, cmd.Principal().OrgID, boardID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return s.events.WithTx(tx).Append(ctx, event)
}

// GetCardSummary implements JobsService.GetCardSummary
func (s *jobsServiceImpl) GetCardSummary(
	ctx context.Context,
	principal domain.Principal,
	cardID uuid.UUID,
) (*domain.CardSummary, error) {
	var summary *domain.CardSummary
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		summary, err = s.summaries.WithTx(tx).Get(ctx, cardID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// GetBoardAnswer implements JobsService.GetBoardAnswer
func (s *jobsServiceImpl) GetBoardAnswer(
	ctx context.Context,
	principal domain.Principal,
	jobID uuid.UUID,
) (*domain.BoardAnswer, error) {
	var answer *domain.BoardAnswer
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		answer, err = s.answers.WithTx(tx).Get(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// GetThreadExtraction implements JobsService.GetThreadExtraction
func (s *jobsServiceImpl) GetThreadExtraction(
	ctx context.Context,
	principal domain.Principal,
	jobID uuid.UUID,
) (*domain.ThreadExtraction, error) {
	var extraction *domain.ThreadExtraction
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		extraction, err = s.extractions.WithTx(tx).Get(ctx, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return extraction, nil
}

// ConfirmThreadExtraction implements JobsService.ConfirmThreadExtraction
func (s *jobsServiceImpl) ConfirmThreadExtraction(
	ctx context.Context,
	principal domain.Principal,
	jobID uuid.UUID,
) (*ConfirmResult, error) {
	if !principal.CanWrite() {
		return nil, fmt.Errorf("%w: role %q cannot confirm extractions", domain.ErrForbidden, principal.Role)
	}

	var result *ConfirmResult
	err := s.scope.RunScoped(ctx, principal, func(ctx context.Context, tx *sql.Tx) error {
		extractions := s.extractions.WithTx(tx)

		extraction, err := extractions.Get(ctx, jobID)
		if err != nil {
			return err
		}

		if extraction.Settled() {
			result = &ConfirmResult{CardID: *extraction.CreatedCardID, Created: false}
			return nil
		}

		if extraction.Status != domain.JobStatusCompleted || len(extraction.Draft) == 0 {
			return fmt.Errorf("%w: status is %q", ErrExtractionNotReady, extraction.Status)
		}

		var draft domain.CardDraft
		if err := json.Unmarshal(extraction.Draft, &draft); err != nil {
			return fmt.Errorf("failed to decode stored draft: %w", err)
		}

		card := &domain.Card{
			ID:          uuid.New(),
			OrgID:       extraction.OrgID,
			BoardID:     extraction.BoardID,
			ListID:      extraction.ListID,
			Title:       draft.Title,
			Description: draft.Description,
			UpdatedAt:   time.Now().UTC(),
		}
		if err := s.cards.WithTx(tx).CreateCard(ctx, card); err != nil {
			return err
		}

		// The conditional update loses against a concurrent confirmation
		// that already linked a different card, rolling back our insert.
		if err := extractions.SetCreatedCard(ctx, jobID, card.ID); err != nil {
			return err
		}

		result = &ConfirmResult{CardID: card.ID, Created: true}
		return nil
	})
	if err != nil {
		// A lost race means some confirmation succeeded; re-read so the
		// caller still gets the winning card id.
		if errors.Is(err, store.ErrUpdateFailed) {
			return s.settledResult(ctx, principal, jobID)
		}
		return nil, err
	}

	if result.Created {
		s.logger.InfoContext(ctx, "Thread extraction confirmed into card",
			slog.String("job_id", jobID.String()),
			slog.String("card_id", result.CardID.String()))
	}

	return result, nil
}

// settledResult re-reads an extraction after a lost confirmation race and
// returns the card the winning confirmation created.
func (s *jobsServiceImpl) settledResult(
	ctx context.Context,
	principal domain.Principal,
	jobID uuid.UUID,
) (*ConfirmResult, error) {
	extraction, err := s.GetThreadExtraction(ctx, principal, jobID)
	if err != nil {
		return nil, err
	}
	if !extraction.Settled() {
		return nil, fmt.Errorf("%w: extraction %s has no linked card after confirmation conflict",
			store.ErrUpdateFailed, jobID)
	}
	return &ConfirmResult{CardID: *extraction.CreatedCardID, Created: false}, nil
}
