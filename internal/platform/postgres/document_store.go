package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

// PostgresDocumentStore implements the store.DocumentStore interface
// using a PostgreSQL database as the storage backend. Vectors are stored as
// plain float8 arrays and cosine similarity is computed in SQL at query
// time, so no vector extension is required; the cost is an O(chunks) scan
// per query, acceptable at per-board corpus sizes.
type PostgresDocumentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDocumentStore creates a new PostgreSQL implementation of the
// DocumentStore interface.
func NewPostgresDocumentStore(db store.DBTX, logger *slog.Logger) *PostgresDocumentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDocumentStore{
		db:     db,
		logger: logger.With(slog.String("component", "document_store")),
	}
}

// Ensure PostgresDocumentStore implements store.DocumentStore interface
var _ store.DocumentStore = (*PostgresDocumentStore)(nil)

// WithTx implements store.DocumentStore.WithTx
func (s *PostgresDocumentStore) WithTx(tx *sql.Tx) store.DocumentStore {
	return &PostgresDocumentStore{db: tx, logger: s.logger}
}

// GetIndexState implements store.DocumentStore.GetIndexState
func (s *PostgresDocumentStore) GetIndexState(
	ctx context.Context,
	sourceType domain.SourceType,
	sourceID uuid.UUID,
	model string,
) (*store.IndexState, error) {
	query := `
		SELECT d.id, d.org_id, d.board_id, d.source_type, d.source_id,
		       d.content, d.content_hash, d.updated_at,
		       c.id, (e.chunk_id IS NOT NULL)
		FROM documents d
		LEFT JOIN document_chunks c ON c.document_id = d.id AND c.chunk_index = 0
		LEFT JOIN document_embeddings e ON e.chunk_id = c.id AND e.model = $3
		WHERE d.source_type = $1 AND d.source_id = $2
	`
	var (
		doc     domain.Document
		chunkID uuid.NullUUID
		state   store.IndexState
	)
	err := s.db.QueryRowContext(ctx, query, sourceType, sourceID, model).Scan(
		&doc.ID,
		&doc.OrgID,
		&doc.BoardID,
		&doc.SourceType,
		&doc.SourceID,
		&doc.Content,
		&doc.ContentHash,
		&doc.UpdatedAt,
		&chunkID,
		&state.HasEmbedding,
	)
	if err != nil {
		return nil, mapNotFound(err, store.ErrDocumentNotFound)
	}

	state.Document = &doc
	if chunkID.Valid {
		state.ChunkID = chunkID.UUID
	}

	return &state, nil
}

// UpsertDocument implements store.DocumentStore.UpsertDocument. Conflicts
// resolve on the (source_type, source_id) identity: the deterministic id
// derivation makes id collisions and identity collisions the same event.
func (s *PostgresDocumentStore) UpsertDocument(ctx context.Context, doc *domain.Document) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO documents (id, org_id, board_id, source_type, source_id, content, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_type, source_id) DO UPDATE
		SET content = EXCLUDED.content,
		    content_hash = EXCLUDED.content_hash,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.OrgID,
		doc.BoardID,
		doc.SourceType,
		doc.SourceID,
		doc.Content,
		doc.ContentHash,
		doc.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to upsert document",
			"document_id", doc.ID,
			"source_type", doc.SourceType,
			"source_id", doc.SourceID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// UpsertChunk implements store.DocumentStore.UpsertChunk
func (s *PostgresDocumentStore) UpsertChunk(ctx context.Context, chunk *domain.DocumentChunk) error {
	query := `
		INSERT INTO document_chunks (id, document_id, org_id, board_id, chunk_index, content, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id, chunk_index) DO UPDATE
		SET content = EXCLUDED.content,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		chunk.ID,
		chunk.DocumentID,
		chunk.OrgID,
		chunk.BoardID,
		chunk.ChunkIndex,
		chunk.Content,
		chunk.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to upsert document chunk",
			"chunk_id", chunk.ID,
			"document_id", chunk.DocumentID,
			"error", err)
		return MapError(err)
	}

	return nil
}

// UpsertEmbedding implements store.DocumentStore.UpsertEmbedding
func (s *PostgresDocumentStore) UpsertEmbedding(ctx context.Context, embedding *domain.DocumentEmbedding) error {
	if len(embedding.Vector) == 0 {
		return fmt.Errorf("%w: embedding vector cannot be empty", store.ErrInvalidEntity)
	}

	query := `
		INSERT INTO document_embeddings (chunk_id, org_id, board_id, model, vector, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id, model) DO UPDATE
		SET vector = EXCLUDED.vector,
		    updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		embedding.ChunkID,
		embedding.OrgID,
		embedding.BoardID,
		embedding.Model,
		embedding.Vector,
		embedding.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("failed to upsert embedding",
			"chunk_id", embedding.ChunkID,
			"model", embedding.Model,
			"error", err)
		return MapError(err)
	}

	return nil
}

// SearchByVector implements store.DocumentStore.SearchByVector. Cosine
// similarity is computed by pairing same-length vectors element-wise with
// unnest; length-mismatched or zero-magnitude vectors yield NULL similarity
// and sort last, and ties break by chunk id ascending for determinism.
func (s *PostgresDocumentStore) SearchByVector(
	ctx context.Context,
	boardID uuid.UUID,
	model string,
	vector []float64,
	topK int,
) ([]store.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector cannot be empty", store.ErrInvalidEntity)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", store.ErrInvalidEntity)
	}

	query := `
		SELECT c.id, d.source_type, d.source_id, c.content,
		       CASE WHEN cardinality(e.vector) = cardinality($3::float8[]) THEN
		           (SELECT CASE WHEN sqrt(sum(x * x)) > 0 AND sqrt(sum(y * y)) > 0
		                        THEN sum(x * y) / (sqrt(sum(x * x)) * sqrt(sum(y * y)))
		                   END
		            FROM unnest(e.vector, $3::float8[]) AS pair(x, y))
		       END AS similarity
		FROM document_embeddings e
		JOIN document_chunks c ON c.id = e.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE e.board_id = $1 AND e.model = $2
		ORDER BY similarity DESC NULLS LAST, c.id ASC
		LIMIT $4
	`
	rows, err := s.db.QueryContext(ctx, query, boardID, model, vector, topK)
	if err != nil {
		s.logger.Error("vector search failed",
			"board_id", boardID,
			"model", model,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return scanSearchResults(rows, true)
}

// SearchLexical implements store.DocumentStore.SearchLexical
func (s *PostgresDocumentStore) SearchLexical(
	ctx context.Context,
	boardID uuid.UUID,
	query string,
	topK int,
) ([]store.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", store.ErrInvalidEntity)
	}

	searchQuery := `
		SELECT c.id, d.source_type, d.source_id, c.content,
		       ts_rank(to_tsvector('english', c.content), plainto_tsquery('english', $2)) AS rank
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.board_id = $1
		  AND to_tsvector('english', c.content) @@ plainto_tsquery('english', $2)
		ORDER BY rank DESC, c.updated_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, searchQuery, boardID, query, topK)
	if err != nil {
		s.logger.Error("lexical search failed",
			"board_id", boardID,
			"error", err)
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	return scanSearchResults(rows, false)
}

// scanSearchResults reads search rows. Both search queries select a trailing
// score column; nullableScore marks the cosine variant where it can be NULL.
func scanSearchResults(rows *sql.Rows, nullableScore bool) ([]store.SearchResult, error) {
	var results []store.SearchResult
	for rows.Next() {
		var (
			result    store.SearchResult
			score     float64
			nullScore sql.NullFloat64
		)
		var scoreDest any = &score
		if nullableScore {
			scoreDest = &nullScore
		}
		err := rows.Scan(
			&result.ChunkID,
			&result.SourceType,
			&result.SourceID,
			&result.Content,
			scoreDest,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return results, nil
}
