package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresMemberStore implements the store.MemberStore interface
// using a PostgreSQL database as the storage backend.
type PostgresMemberStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresMemberStore creates a new PostgreSQL implementation of the
// MemberStore interface.
func NewPostgresMemberStore(db store.DBTX, logger *slog.Logger) *PostgresMemberStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresMemberStore{
		db:     db,
		logger: logger.With(slog.String("component", "member_store")),
	}
}

// Ensure PostgresMemberStore implements store.MemberStore interface
var _ store.MemberStore = (*PostgresMemberStore)(nil)

// WithTx implements store.MemberStore.WithTx
func (s *PostgresMemberStore) WithTx(tx *sql.Tx) store.MemberStore {
	return &PostgresMemberStore{db: tx, logger: s.logger}
}

// ResolveIdentities implements store.MemberStore.ResolveIdentities. Row-level
// security scopes the lookup to the current tenant, so an identity belonging
// to a member of another org is simply absent from the result.
func (s *PostgresMemberStore) ResolveIdentities(ctx context.Context, identities []string) (map[string]uuid.UUID, error) {
	resolved := make(map[string]uuid.UUID, len(identities))
	if len(identities) == 0 {
		return resolved, nil
	}

	query := `
		SELECT external_identity, user_id
		FROM org_members
		WHERE external_identity = ANY($1)
	`
	rows, err := s.db.QueryContext(ctx, query, identities)
	if err != nil {
		s.logger.Error("failed to resolve member identities", "error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			identity string
			userID   uuid.UUID
		)
		if err := rows.Scan(&identity, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan member identity: %w", err)
		}
		resolved[identity] = userID
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return resolved, nil
}
