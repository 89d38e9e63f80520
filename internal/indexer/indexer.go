// Package indexer maintains the document/chunk/embedding triple that backs
// retrieval. Content is content-addressed: identical content short-circuits
// re-embedding, and document/chunk ids derive deterministically from the
// source identity so concurrent indexers converge instead of duplicating.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/store"
)

// embedConcurrency bounds concurrent embedding calls during a batch sync.
const embedConcurrency = 4

// Source is one entity's indexable content.
type Source struct {
	Type    domain.SourceType
	ID      uuid.UUID
	OrgID   uuid.UUID
	BoardID uuid.UUID
	Content string
}

// CardSource builds a Source from a card.
func CardSource(card *domain.Card) Source {
	return Source{
		Type:    domain.SourceTypeCard,
		ID:      card.ID,
		OrgID:   card.OrgID,
		BoardID: card.BoardID,
		Content: card.IndexableContent(),
	}
}

// Indexer writes documents, chunks, and embeddings. It is the sole writer of
// the document schema; retrieval only reads it.
type Indexer struct {
	embedder generation.Embedder
	logger   *slog.Logger
}

// New creates an Indexer.
func New(embedder generation.Embedder, logger *slog.Logger) *Indexer {
	return &Indexer{
		embedder: embedder,
		logger:   logger.With("component", "indexer"),
	}
}

// IndexSource upserts the document and single chunk for a source, then
// embeds the chunk. If the stored content is byte-identical and both a chunk
// and an embedding already exist, the call is a no-op; this bounds
// embedding-API cost under repeated syncs. An embedding failure is logged
// and swallowed: the chunk is still persisted, so lexical retrieval keeps
// working while vector retrieval degrades.
func (ix *Indexer) IndexSource(ctx context.Context, docs store.DocumentStore, src Source) error {
	if src.Content == "" {
		return nil
	}

	docID, chunkID, changed, err := ix.upsertDocumentChunk(ctx, docs, src)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	vector, err := ix.embedder.Embed(ctx, src.Content)
	if err != nil {
		ix.logger.Warn("embedding failed, chunk indexed without vector",
			"source_type", src.Type,
			"source_id", src.ID,
			"error", err)
		return nil
	}

	return ix.upsertEmbedding(ctx, docs, src, chunkID, vector, docID)
}

// IndexCards syncs a batch of cards, embedding changed content with bounded
// concurrency. Unchanged cards are skipped entirely.
func (ix *Indexer) IndexCards(ctx context.Context, docs store.DocumentStore, cards []*domain.Card) error {
	type pending struct {
		src     Source
		docID   uuid.UUID
		chunkID uuid.UUID
		vector  []float64
		embErr  error
	}

	var changed []*pending
	for _, card := range cards {
		src := CardSource(card)
		if src.Content == "" {
			continue
		}

		docID, chunkID, wasChanged, err := ix.upsertDocumentChunk(ctx, docs, src)
		if err != nil {
			return err
		}
		if !wasChanged {
			continue
		}
		changed = append(changed, &pending{src: src, docID: docID, chunkID: chunkID})
	}

	if len(changed) == 0 {
		return nil
	}

	// Embed concurrently; per-entry failures are recorded rather than
	// cancelling siblings, since a missing vector only degrades that chunk
	// to lexical search.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for _, entry := range changed {
		entry := entry
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			entry.vector, entry.embErr = ix.embedder.Embed(gCtx, entry.src.Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("embedding batch cancelled: %w", err)
	}

	for _, entry := range changed {
		if entry.embErr != nil {
			ix.logger.Warn("embedding failed, chunk indexed without vector",
				"source_type", entry.src.Type,
				"source_id", entry.src.ID,
				"error", entry.embErr)
			continue
		}
		if err := ix.upsertEmbedding(ctx, docs, entry.src, entry.chunkID, entry.vector, entry.docID); err != nil {
			return err
		}
	}

	return nil
}

// upsertDocumentChunk writes the document and chunk rows for a source and
// reports whether embedding work is needed. It returns changed=false only
// when stored content matches and both chunk and embedding already exist.
func (ix *Indexer) upsertDocumentChunk(
	ctx context.Context,
	docs store.DocumentStore,
	src Source,
) (docID, chunkID uuid.UUID, changed bool, err error) {
	state, err := docs.GetIndexState(ctx, src.Type, src.ID, ix.embedder.Model())
	if err != nil && !store.IsNotFoundError(err) {
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("failed to load index state: %w", err)
	}

	hash := domain.ContentHash(src.Content)
	if state != nil && state.Document != nil &&
		state.Document.ContentHash == hash &&
		state.ChunkID != uuid.Nil &&
		state.HasEmbedding {
		ix.logger.Debug("content unchanged, skipping re-index",
			"source_type", src.Type,
			"source_id", src.ID)
		return state.Document.ID, state.ChunkID, false, nil
	}

	docID = domain.DocumentIDFor(src.Type, src.ID)
	if state != nil && state.Document != nil {
		docID = state.Document.ID
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          docID,
		OrgID:       src.OrgID,
		BoardID:     src.BoardID,
		SourceType:  src.Type,
		SourceID:    src.ID,
		Content:     src.Content,
		ContentHash: hash,
		UpdatedAt:   now,
	}
	if err := doc.Validate(); err != nil {
		return uuid.Nil, uuid.Nil, false, err
	}
	if err := docs.UpsertDocument(ctx, doc); err != nil {
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("failed to upsert document: %w", err)
	}

	chunkID = domain.ChunkIDFor(docID, 0)
	chunk := &domain.DocumentChunk{
		ID:         chunkID,
		DocumentID: docID,
		OrgID:      src.OrgID,
		BoardID:    src.BoardID,
		ChunkIndex: 0,
		Content:    src.Content,
		UpdatedAt:  now,
	}
	if err := docs.UpsertChunk(ctx, chunk); err != nil {
		return uuid.Nil, uuid.Nil, false, fmt.Errorf("failed to upsert chunk: %w", err)
	}

	return docID, chunkID, true, nil
}

func (ix *Indexer) upsertEmbedding(
	ctx context.Context,
	docs store.DocumentStore,
	src Source,
	chunkID uuid.UUID,
	vector []float64,
	docID uuid.UUID,
) error {
	embedding := &domain.DocumentEmbedding{
		ChunkID:   chunkID,
		OrgID:     src.OrgID,
		BoardID:   src.BoardID,
		Model:     ix.embedder.Model(),
		Vector:    vector,
		UpdatedAt: time.Now().UTC(),
	}
	if err := docs.UpsertEmbedding(ctx, embedding); err != nil {
		return fmt.Errorf("failed to upsert embedding for document %s: %w", docID, err)
	}
	return nil
}
