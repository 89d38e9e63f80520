package store

import (
	"context"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// ScopeRunner executes a unit of work inside a transaction that impersonates
// the given principal. Implementations downgrade to a restricted database
// role and set session-scoped claims so row-level security policies, not
// application WHERE clauses, decide row visibility for every query the
// function runs. This is the sole authorization boundary for data access
// during background execution.
type ScopeRunner interface {
	RunScoped(ctx context.Context, principal domain.Principal, fn TxFn) error
}

// ScopeRunnerFunc adapts a function to the ScopeRunner interface.
type ScopeRunnerFunc func(ctx context.Context, principal domain.Principal, fn TxFn) error

// RunScoped implements ScopeRunner.
func (f ScopeRunnerFunc) RunScoped(ctx context.Context, principal domain.Principal, fn TxFn) error {
	return f(ctx, principal, fn)
}
