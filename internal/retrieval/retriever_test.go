package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
	"github.com/quillboard/quillboard-api/internal/store"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float64{0.5, 0.5}, nil
}

func (f *fakeEmbedder) Model() string { return "test-embedding-001" }

type fakeSearchStore struct {
	vectorResults  []store.SearchResult
	vectorErr      error
	lexicalResults []store.SearchResult
	lexicalErr     error

	vectorCalls  int
	lexicalCalls int
}

func (f *fakeSearchStore) GetIndexState(_ context.Context, _ domain.SourceType, _ uuid.UUID, _ string) (*store.IndexState, error) {
	return nil, store.ErrDocumentNotFound
}

func (f *fakeSearchStore) UpsertDocument(_ context.Context, _ *domain.Document) error { return nil }

func (f *fakeSearchStore) UpsertChunk(_ context.Context, _ *domain.DocumentChunk) error { return nil }

func (f *fakeSearchStore) UpsertEmbedding(_ context.Context, _ *domain.DocumentEmbedding) error {
	return nil
}

func (f *fakeSearchStore) SearchByVector(_ context.Context, _ uuid.UUID, _ string, _ []float64, _ int) ([]store.SearchResult, error) {
	f.vectorCalls = f.vectorCalls + 1
	return f.vectorResults, f.vectorErr
}

func (f *fakeSearchStore) SearchLexical(_ context.Context, _ uuid.UUID, _ string, _ int) ([]store.SearchResult, error) {
	f.lexicalCalls = f.lexicalCalls + 1
	return f.lexicalResults, f.lexicalErr
}

func (f *fakeSearchStore) WithTx(_ *sql.Tx) store.DocumentStore { return f }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func cardResult(content string) store.SearchResult {
	return store.SearchResult{
		ChunkID:    uuid.New(),
		SourceType: string(domain.SourceTypeCard),
		SourceID:   uuid.New(),
		Content:    content,
	}
}

func TestRetrieve(t *testing.T) {
	t.Parallel()

	boardID := uuid.New()

	t.Run("returns vector results when available", func(t *testing.T) {
		t.Parallel()

		docs := &fakeSearchStore{
			vectorResults: []store.SearchResult{
				cardResult("Migrate billing to usage-based pricing"),
				cardResult("Fix invoice rounding"),
			},
		}
		r := New(&fakeEmbedder{}, testLogger())

		contexts, err := r.Retrieve(context.Background(), docs, boardID, "how does billing work?", 8)
		require.NoError(t, err)

		require.Len(t, contexts, 2)
		assert.Equal(t, 1, docs.vectorCalls)
		assert.Zero(t, docs.lexicalCalls, "lexical search must not run when vectors matched")
		assert.Equal(t, "Migrate billing to usage-based pricing", contexts[0].Excerpt)
		assert.Equal(t, domain.SourceTypeCard, contexts[0].SourceType)
	})

	t.Run("falls back to lexical when vector search is empty", func(t *testing.T) {
		t.Parallel()

		docs := &fakeSearchStore{
			lexicalResults: []store.SearchResult{cardResult("Quarterly roadmap review")},
		}
		r := New(&fakeEmbedder{}, testLogger())

		contexts, err := r.Retrieve(context.Background(), docs, boardID, "roadmap", 8)
		require.NoError(t, err)

		require.Len(t, contexts, 1)
		assert.Equal(t, 1, docs.vectorCalls)
		assert.Equal(t, 1, docs.lexicalCalls)
	})

	t.Run("falls back to lexical when embedding fails", func(t *testing.T) {
		t.Parallel()

		docs := &fakeSearchStore{
			lexicalResults: []store.SearchResult{cardResult("Harden webhook retries")},
		}
		r := New(&fakeEmbedder{err: errors.New("quota exceeded")}, testLogger())

		contexts, err := r.Retrieve(context.Background(), docs, boardID, "webhooks", 8)
		require.NoError(t, err)

		require.Len(t, contexts, 1)
		assert.Zero(t, docs.vectorCalls, "vector search needs a query vector")
		assert.Equal(t, 1, docs.lexicalCalls)
	})

	t.Run("drops rows with unknown source types", func(t *testing.T) {
		t.Parallel()

		docs := &fakeSearchStore{
			vectorResults: []store.SearchResult{
				{ChunkID: uuid.New(), SourceType: "attachment", SourceID: uuid.New(), Content: "binary blob"},
				cardResult("Real card content"),
			},
		}
		r := New(&fakeEmbedder{}, testLogger())

		contexts, err := r.Retrieve(context.Background(), docs, boardID, "content", 8)
		require.NoError(t, err)

		require.Len(t, contexts, 1)
		assert.Equal(t, "Real card content", contexts[0].Excerpt)
	})

	t.Run("truncates long excerpts", func(t *testing.T) {
		t.Parallel()

		docs := &fakeSearchStore{
			vectorResults: []store.SearchResult{cardResult(strings.Repeat("a", 2000))},
		}
		r := New(&fakeEmbedder{}, testLogger())

		contexts, err := r.Retrieve(context.Background(), docs, boardID, "aaa", 8)
		require.NoError(t, err)

		require.Len(t, contexts, 1)
		assert.Len(t, contexts[0].Excerpt, excerptMaxLen)
	})

	t.Run("propagates search errors", func(t *testing.T) {
		t.Parallel()

		docs := &fakeSearchStore{vectorErr: errors.New("connection reset")}
		r := New(&fakeEmbedder{}, testLogger())

		_, err := r.Retrieve(context.Background(), docs, boardID, "anything", 8)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "vector search failed")
	})

	t.Run("rejects non-positive topK", func(t *testing.T) {
		t.Parallel()

		r := New(&fakeEmbedder{}, testLogger())
		_, err := r.Retrieve(context.Background(), &fakeSearchStore{}, boardID, "anything", 0)
		require.Error(t, err)
	})
}

func TestTruncateExcerpt(t *testing.T) {
	t.Parallel()

	t.Run("keeps short content intact", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "short", truncateExcerpt("short"))
	})

	t.Run("never splits a multi-byte rune", func(t *testing.T) {
		t.Parallel()
		content := strings.Repeat("é", excerptMaxLen) // 2 bytes per rune
		got := truncateExcerpt(content)
		assert.True(t, len(got) <= excerptMaxLen)
		for _, r := range got {
			assert.NotEqual(t, '�', r)
		}
	})
}

func TestGroundCitations(t *testing.T) {
	t.Parallel()

	ctxA := domain.RetrievedContext{ChunkID: uuid.New(), SourceType: domain.SourceTypeCard, SourceID: uuid.New(), Excerpt: "a"}
	ctxB := domain.RetrievedContext{ChunkID: uuid.New(), SourceType: domain.SourceTypeCard, SourceID: uuid.New(), Excerpt: "b"}

	t.Run("keeps references to retrieved chunks in model order", func(t *testing.T) {
		t.Parallel()

		result := &generation.AnswerResult{
			Answer:     "answer",
			References: []uuid.UUID{ctxB.ChunkID, ctxA.ChunkID},
		}

		citations := GroundCitations(result, []domain.RetrievedContext{ctxA, ctxB})
		require.Len(t, citations, 2)
		assert.Equal(t, ctxB.ChunkID, citations[0].ChunkID)
		assert.Equal(t, ctxA.ChunkID, citations[1].ChunkID)
	})

	t.Run("discards fabricated references and deduplicates", func(t *testing.T) {
		t.Parallel()

		result := &generation.AnswerResult{
			Answer:     "answer",
			References: []uuid.UUID{uuid.New(), ctxA.ChunkID, ctxA.ChunkID},
		}

		citations := GroundCitations(result, []domain.RetrievedContext{ctxA, ctxB})
		require.Len(t, citations, 1)
		assert.Equal(t, ctxA.ChunkID, citations[0].ChunkID)
	})

	t.Run("substitutes the top context when nothing survives", func(t *testing.T) {
		t.Parallel()

		result := &generation.AnswerResult{
			Answer:     "answer",
			References: []uuid.UUID{uuid.New()},
		}

		citations := GroundCitations(result, []domain.RetrievedContext{ctxA, ctxB})
		require.Len(t, citations, 1)
		assert.Equal(t, ctxA.ChunkID, citations[0].ChunkID)
	})

	t.Run("returns nil without contexts", func(t *testing.T) {
		t.Parallel()

		result := &generation.AnswerResult{Answer: "answer"}
		assert.Nil(t, GroundCitations(result, nil))
	})
}
