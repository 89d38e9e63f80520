package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// Session claim keys read by the row-level security policies. They are set
// with set_config(..., true) so they vanish at transaction end and can never
// leak onto a pooled connection.
const (
	claimUserID = "app.user_id"
	claimOrgID  = "app.org_id"
	claimRole   = "app.role"
)

// TenantScope implements store.ScopeRunner. RunScoped wraps a unit of work
// in a transaction that downgrades to a restricted database role and sets
// session-scoped claims for the acting principal, so every query inside is
// filtered by the database's row-level security policies rather than by
// application WHERE clauses. Executors must never bypass it with an
// unscoped connection.
type TenantScope struct {
	db      *sql.DB
	appRole string
}

// NewTenantScope creates a TenantScope that downgrades to appRole. The role
// must exist, must not be a superuser, and must not carry BYPASSRLS.
func NewTenantScope(db *sql.DB, appRole string) (*TenantScope, error) {
	if appRole == "" {
		return nil, fmt.Errorf("app role cannot be empty")
	}
	return &TenantScope{db: db, appRole: appRole}, nil
}

// Ensure TenantScope implements store.ScopeRunner
var _ store.ScopeRunner = (*TenantScope)(nil)

// RunScoped implements store.ScopeRunner. SET LOCAL ROLE and the claims are
// transaction-local: commit or rollback restores the original role, so the
// connection returns to the pool unscoped.
func (s *TenantScope) RunScoped(ctx context.Context, principal domain.Principal, fn store.TxFn) error {
	if err := principal.Validate(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	return store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		// Role names cannot be bound as parameters; sanitize instead.
		setRole := fmt.Sprintf("SET LOCAL ROLE %s", pgx.Identifier{s.appRole}.Sanitize())
		if _, err := tx.ExecContext(ctx, setRole); err != nil {
			return fmt.Errorf("failed to downgrade to role %q: %w", s.appRole, err)
		}

		const setClaims = `
			SELECT
				set_config($1, $2, true),
				set_config($3, $4, true),
				set_config($5, $6, true)
		`
		_, err := tx.ExecContext(ctx, setClaims,
			claimUserID, principal.UserID.String(),
			claimOrgID, principal.OrgID.String(),
			claimRole, string(principal.Role),
		)
		if err != nil {
			return fmt.Errorf("failed to set session claims: %w", err)
		}

		return fn(ctx, tx)
	})
}
