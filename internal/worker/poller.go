package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/outbox"
	"github.com/quillboard/quillboard-api/internal/store"
)

// deadLetterPrefix marks last_error on events parked after classification as
// poison or after exhausting their attempt budget.
const deadLetterPrefix = "dead-letter: "

// PollerConfig holds configuration for the outbox claim loop.
type PollerConfig struct {
	// PollInterval is the tick interval between claim attempts.
	PollInterval time.Duration

	// BatchSize is the maximum number of events claimed per tick.
	BatchSize int

	// MaxAttempts is the attempt count at which a failing event is parked
	// as a dead letter instead of scheduled for another retry.
	MaxAttempts int
}

// DefaultPollerConfig returns a PollerConfig with reasonable defaults.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		PollInterval: 2 * time.Second,
		BatchSize:    25,
		MaxAttempts:  10,
	}
}

// Poller is the timer-driven claim loop. Each tick it claims a bounded batch
// of due events inside one transaction using a lock-and-skip-locked read, so
// multiple worker processes can run the same loop without double-claiming,
// and dispatches each row to its executor. Per-row failures are converted
// into retry bookkeeping updates inside the same transaction rather than
// propagated, so one bad event never rolls back its siblings' success.
type Poller struct {
	db        *sql.DB
	outboxSt  store.OutboxStore
	executors map[domain.EventType]Executor
	config    PollerConfig
	logger    *slog.Logger

	// busy is a non-blocking try-lock: a slow poll makes the next tick a
	// no-op instead of overlapping within the same process.
	busy atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoller creates a new Poller. Executors are registered per event type.
func NewPoller(
	db *sql.DB,
	outboxSt store.OutboxStore,
	executors map[domain.EventType]Executor,
	config PollerConfig,
	logger *slog.Logger,
) *Poller {
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 25
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 10
	}

	return &Poller{
		db:        db,
		outboxSt:  outboxSt,
		executors: executors,
		config:    config,
		logger:    logger.With("component", "outbox_poller"),
	}
}

// Start launches the polling loop. It returns immediately; polling runs in a
// background goroutine until Stop is called.
func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("outbox poller started",
		"poll_interval", p.config.PollInterval.String(),
		"batch_size", p.config.BatchSize,
		"max_attempts", p.config.MaxAttempts)
}

// Stop stops the ticker and waits for the loop goroutine to exit. A tick in
// progress finishes its current transaction before the loop returns.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("outbox poller stopped")
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick runs one claim-and-process cycle. It is exported so tests and manual
// drains can drive the loop without the ticker. If a previous tick is still
// in flight the call is a no-op.
func (p *Poller) Tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug("skipping tick, previous poll still in flight")
		return
	}
	defer p.busy.Store(false)

	err := store.RunInTransaction(ctx, p.db, func(ctx context.Context, tx *sql.Tx) error {
		txOutbox := p.outboxSt.WithTx(tx)

		events, err := txOutbox.ClaimDue(ctx, p.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to claim due events: %w", err)
		}

		if len(events) == 0 {
			return nil
		}

		p.logger.Debug("claimed outbox events", "count", len(events))

		// Rows are processed sequentially within the batch. A slow AI call
		// for one row delays the rest of the batch; horizontal scaling comes
		// from running more worker processes against the same table.
		for _, event := range events {
			p.processEvent(ctx, txOutbox, event)
		}

		return nil
	})
	if err != nil {
		p.logger.Error("poll tick failed", "error", err)
	}
}

// processEvent executes one claimed event and records its outcome on the
// outbox row. All errors are captured here and turned into row updates;
// nothing propagates to the batch transaction.
func (p *Poller) processEvent(ctx context.Context, txOutbox store.OutboxStore, event *domain.OutboxEvent) {
	logger := p.logger.With(
		"event_id", event.ID,
		"event_type", event.Type,
		"attempt_count", event.AttemptCount,
	)

	execErr := p.executeEvent(ctx, event)
	if execErr == nil {
		if err := txOutbox.MarkProcessed(ctx, event.ID); err != nil {
			logger.Error("failed to mark event processed", "error", err)
			return
		}
		logger.Info("event processed")
		return
	}

	attempts := event.AttemptCount + 1
	reason := domain.TruncateFailureReason(execErr.Error())

	if isPoison(execErr) || attempts >= p.config.MaxAttempts {
		if err := txOutbox.Park(ctx, event.ID, deadLetterPrefix+reason); err != nil {
			logger.Error("failed to park poison event", "error", err)
			return
		}
		p.recordDeadLetter(ctx, event, reason)
		logger.Error("event parked as dead letter",
			"error", execErr,
			"attempts", attempts,
			"poison", isPoison(execErr))
		return
	}

	delay := Backoff(attempts)
	nextRetryAt := time.Now().UTC().Add(delay)
	if err := txOutbox.ScheduleRetry(ctx, event.ID, reason, nextRetryAt); err != nil {
		logger.Error("failed to schedule retry", "error", err)
		return
	}
	logger.Warn("event execution failed, retry scheduled",
		"error", execErr,
		"attempts", attempts,
		"retry_delay", delay.String())
}

// recordDeadLetter pushes a parked event's failure onto its result row so
// clients polling the job see a terminal failed status. Events that cannot
// be routed have no locatable result row and are skipped.
func (p *Poller) recordDeadLetter(ctx context.Context, event *domain.OutboxEvent, reason string) {
	cmd, err := outbox.Route(event)
	if err != nil {
		p.logger.Warn("cannot record failure for unroutable event",
			"event_id", event.ID,
			"error", err)
		return
	}
	executor, ok := p.executors[cmd.Kind()]
	if !ok {
		return
	}
	executor.RecordFailure(ctx, cmd, reason)
}

// executeEvent routes the event's payload and dispatches the typed command
// to the registered executor.
func (p *Poller) executeEvent(ctx context.Context, event *domain.OutboxEvent) error {
	cmd, err := outbox.Route(event)
	if err != nil {
		return err
	}

	executor, ok := p.executors[cmd.Kind()]
	if !ok {
		return fmt.Errorf("%w: no executor registered for %q", outbox.ErrUnknownEventType, cmd.Kind())
	}

	return executor.Execute(ctx, cmd)
}

// isPoison classifies errors that can never succeed on redelivery: routing
// failures (unknown type, schema-invalid stored payload), permanent
// generation errors (malformed model output, safety blocks), and not-found
// reads. A row that is missing under the enqueuing actor's tenant scope was
// deleted or never theirs; row-level security guarantees redelivery sees the
// same nothing.
func isPoison(err error) bool {
	return errors.Is(err, outbox.ErrUnknownEventType) ||
		errors.Is(err, outbox.ErrMalformedPayload) ||
		generation.IsPermanent(err) ||
		store.IsNotFoundError(err)
}
