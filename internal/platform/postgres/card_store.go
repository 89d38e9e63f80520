package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresCardStore implements the store.CardStore interface
// using a PostgreSQL database as the storage backend.
type PostgresCardStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresCardStore creates a new PostgreSQL implementation of the
// CardStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
func NewPostgresCardStore(db store.DBTX, logger *slog.Logger) *PostgresCardStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresCardStore{
		db:     db,
		logger: logger.With(slog.String("component", "card_store")),
	}
}

// Ensure PostgresCardStore implements store.CardStore interface
var _ store.CardStore = (*PostgresCardStore)(nil)

// WithTx implements store.CardStore.WithTx
func (s *PostgresCardStore) WithTx(tx *sql.Tx) store.CardStore {
	return &PostgresCardStore{db: tx, logger: s.logger}
}

const cardColumns = `id, org_id, board_id, list_id, title, description, updated_at`

// GetCard implements store.CardStore.GetCard
func (s *PostgresCardStore) GetCard(ctx context.Context, cardID uuid.UUID) (*domain.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE id = $1
	`
	card, err := scanCard(s.db.QueryRowContext(ctx, query, cardID))
	if err != nil {
		return nil, mapNotFound(err, store.ErrCardNotFound)
	}
	return card, nil
}

// RecentByBoard implements store.CardStore.RecentByBoard
func (s *PostgresCardStore) RecentByBoard(ctx context.Context, boardID uuid.UUID, limit int) ([]*domain.Card, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", store.ErrInvalidEntity)
	}

	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE board_id = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, boardID, limit)
	if err != nil {
		s.logger.Error("failed to list recent cards",
			"board_id", boardID,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var cards []*domain.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return cards, nil
}

// CreateCard implements store.CardStore.CreateCard
func (s *PostgresCardStore) CreateCard(ctx context.Context, card *domain.Card) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO cards (id, org_id, board_id, list_id, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		card.ID,
		card.OrgID,
		card.BoardID,
		card.ListID,
		card.Title,
		card.Description,
		now,
	)
	if err != nil {
		s.logger.Error("failed to create card",
			"card_id", card.ID,
			"board_id", card.BoardID,
			"error", err)
		return MapError(err)
	}

	card.UpdatedAt = now
	return nil
}

func scanCard(row rowScanner) (*domain.Card, error) {
	var card domain.Card
	err := row.Scan(
		&card.ID,
		&card.OrgID,
		&card.BoardID,
		&card.ListID,
		&card.Title,
		&card.Description,
		&card.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &card, nil
}
