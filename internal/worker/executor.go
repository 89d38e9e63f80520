package worker

import (
	"context"

	"github.com/quillboard/quillboard-api/internal/outbox"
)

// Executor runs the work one event kind requests. Implementations must be
// idempotent: executing the same command twice leaves the result row in the
// same final state with the same content, so at-least-once delivery never
// duplicates results.
type Executor interface {
	Execute(ctx context.Context, cmd outbox.Command) error

	// RecordFailure marks the command's result row failed with the given
	// reason. The claim loop calls it when it parks an event as a dead
	// letter, so status polling surfaces the terminal failure instead of
	// a forever-pending queued row. Implementations log and swallow their
	// own persistence errors.
	RecordFailure(ctx context.Context, cmd outbox.Command, reason string)
}
