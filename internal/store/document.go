package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// IndexState describes what already exists for a source entity in the
// document index. The indexer uses it to skip re-embedding unchanged content.
type IndexState struct {
	Document     *domain.Document
	ChunkID      uuid.UUID // uuid.Nil when no chunk exists
	HasEmbedding bool      // true when the chunk has a vector under the queried model
}

// SearchResult is one raw row returned by a vector or lexical search, before
// the retrieval engine normalizes and filters it.
type SearchResult struct {
	ChunkID    uuid.UUID
	SourceType string
	SourceID   uuid.UUID
	Content    string
}

// DocumentStore persists the document/chunk/embedding triple and runs the
// scoped similarity searches. The document indexer is the sole writer; the
// retrieval engine only reads.
type DocumentStore interface {
	// GetIndexState looks up the existing document, chunk, and embedding
	// presence for a source entity under the given embedding model.
	// Returns ErrDocumentNotFound when no document exists.
	GetIndexState(ctx context.Context, sourceType domain.SourceType, sourceID uuid.UUID, model string) (*IndexState, error)

	// UpsertDocument inserts or updates the document row for its
	// (source_type, source_id) identity.
	UpsertDocument(ctx context.Context, doc *domain.Document) error

	// UpsertChunk inserts or updates a chunk row for its
	// (document_id, chunk_index) identity.
	UpsertChunk(ctx context.Context, chunk *domain.DocumentChunk) error

	// UpsertEmbedding inserts or replaces a chunk's vector under a model.
	UpsertEmbedding(ctx context.Context, embedding *domain.DocumentEmbedding) error

	// SearchByVector ranks chunks of the given board by cosine similarity to
	// the query vector, computed in SQL over same-length stored vectors.
	// Zero-magnitude or length-mismatched vectors rank last; ties break by
	// chunk id ascending for determinism.
	SearchByVector(ctx context.Context, boardID uuid.UUID, model string, vector []float64, topK int) ([]SearchResult, error)

	// SearchLexical ranks chunks of the given board by full-text relevance to
	// the query, then recency.
	SearchLexical(ctx context.Context, boardID uuid.UUID, query string, topK int) ([]SearchResult, error)

	// WithTx returns a new DocumentStore bound to the provided transaction.
	WithTx(tx *sql.Tx) DocumentStore
}
