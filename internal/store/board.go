package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// BoardStore provides read access to boards. Board CRUD lives in another
// service; the worker only verifies existence and reads names for indexing.
type BoardStore interface {
	// GetBoard retrieves a board visible to the current tenant scope.
	// Returns ErrBoardNotFound for missing or cross-tenant boards.
	GetBoard(ctx context.Context, boardID uuid.UUID) (*domain.Board, error)

	// WithTx returns a new BoardStore bound to the provided transaction.
	WithTx(tx *sql.Tx) BoardStore
}

// CardStore provides the card reads the executors need, plus the single
// write used when a thread extraction is confirmed into a card.
type CardStore interface {
	// GetCard retrieves a card visible to the current tenant scope.
	// Returns ErrCardNotFound for missing or cross-tenant cards.
	GetCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error)

	// RecentByBoard returns the board's most recently updated cards, bounding
	// how much of the corpus an ask-board execution re-indexes.
	RecentByBoard(ctx context.Context, boardID uuid.UUID, limit int) ([]*domain.Card, error)

	// CreateCard inserts a card drafted by a confirmed thread extraction.
	CreateCard(ctx context.Context, card *domain.Card) error

	// WithTx returns a new CardStore bound to the provided transaction.
	WithTx(tx *sql.Tx) CardStore
}

// MemberStore resolves external chat identities to org members.
type MemberStore interface {
	// ResolveIdentities maps external identities to user ids for members of
	// the current tenant scope. Identities with no matching membership are
	// absent from the returned map, not an error.
	ResolveIdentities(ctx context.Context, identities []string) (map[string]uuid.UUID, error)

	// WithTx returns a new MemberStore bound to the provided transaction.
	WithTx(tx *sql.Tx) MemberStore
}
