// Package retrieval turns a question into tenant-scoped context snippets for
// answer generation. Vector similarity is the primary path; full-text search
// is the fallback when no vectors match or embedding is unavailable, so
// ask-board keeps working even when the embedding model is down.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/store"
)

// excerptMaxLen bounds how much of a chunk's content is carried into the
// prompt as one context snippet.
const excerptMaxLen = 500

// Retriever finds the chunks most relevant to a question within one board.
type Retriever struct {
	embedder generation.Embedder
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder generation.Embedder, logger *slog.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		logger:   logger.With("component", "retriever"),
	}
}

// Retrieve returns up to topK context snippets for the question, scoped to
// the given board. Embedding the question is best-effort: on failure the
// search degrades to lexical ranking instead of failing the job. Rows with
// an unknown source type are dropped rather than surfaced as citations.
func (r *Retriever) Retrieve(
	ctx context.Context,
	docs store.DocumentStore,
	boardID uuid.UUID,
	question string,
	topK int,
) ([]domain.RetrievedContext, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	var rows []store.SearchResult

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		r.logger.Warn("question embedding failed, falling back to lexical search",
			"board_id", boardID,
			"error", err)
	} else {
		rows, err = docs.SearchByVector(ctx, boardID, r.embedder.Model(), vector, topK)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
	}

	if len(rows) == 0 {
		rows, err = docs.SearchLexical(ctx, boardID, question, topK)
		if err != nil {
			return nil, fmt.Errorf("lexical search failed: %w", err)
		}
	}

	contexts := make([]domain.RetrievedContext, 0, len(rows))
	for _, row := range rows {
		sourceType := domain.SourceType(row.SourceType)
		if !domain.IsValidSourceType(sourceType) {
			r.logger.Warn("dropping search result with unknown source type",
				"chunk_id", row.ChunkID,
				"source_type", row.SourceType)
			continue
		}
		contexts = append(contexts, domain.RetrievedContext{
			ChunkID:    row.ChunkID,
			SourceType: sourceType,
			SourceID:   row.SourceID,
			Excerpt:    truncateExcerpt(row.Content),
		})
	}

	return contexts, nil
}

func truncateExcerpt(content string) string {
	if len(content) <= excerptMaxLen {
		return content
	}
	cut := excerptMaxLen
	// Back up to a rune boundary so truncation never splits a code point.
	for cut > 0 && content[cut]&0xC0 == 0x80 {
		cut = cut - 1
	}
	return content[:cut]
}
