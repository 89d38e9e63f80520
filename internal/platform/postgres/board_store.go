package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresBoardStore implements the store.BoardStore interface
// using a PostgreSQL database as the storage backend.
type PostgresBoardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresBoardStore creates a new PostgreSQL implementation of the
// BoardStore interface.
func NewPostgresBoardStore(db store.DBTX, logger *slog.Logger) *PostgresBoardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBoardStore{
		db:     db,
		logger: logger.With(slog.String("component", "board_store")),
	}
}

// Ensure PostgresBoardStore implements store.BoardStore interface
var _ store.BoardStore = (*PostgresBoardStore)(nil)

// WithTx implements store.BoardStore.WithTx
func (s *PostgresBoardStore) WithTx(tx *sql.Tx) store.BoardStore {
	return &PostgresBoardStore{db: tx, logger: s.logger}
}

// GetBoard implements store.BoardStore.GetBoard. Under the tenant scope, a
// cross-tenant board is filtered out by row-level security and surfaces here
// as ErrBoardNotFound, indistinguishable from a board that never existed.
func (s *PostgresBoardStore) GetBoard(ctx context.Context, boardID uuid.UUID) (*domain.Board, error) {
	query := `
		SELECT id, org_id, name
		FROM boards
		WHERE id = $1
	`
	var board domain.Board
	err := s.db.QueryRowContext(ctx, query, boardID).Scan(
		&board.ID,
		&board.OrgID,
		&board.Name,
	)
	if err != nil {
		return nil, mapNotFound(err, store.ErrBoardNotFound)
	}

	return &board, nil
}
