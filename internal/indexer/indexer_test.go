package indexer

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/store"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	err    error
	vector []float64
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = f.calls + 1
	if f.err != nil {
		return nil, f.err
	}
	if f.vector != nil {
		return f.vector, nil
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) Model() string { return "test-embedding-001" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDocumentStore struct {
	mu         sync.Mutex
	states     map[string]*store.IndexState
	documents  []*domain.Document
	chunks     []*domain.DocumentChunk
	embeddings []*domain.DocumentEmbedding
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{states: make(map[string]*store.IndexState)}
}

func stateKey(sourceType domain.SourceType, sourceID uuid.UUID) string {
	return string(sourceType) + ":" + sourceID.String()
}

func (f *fakeDocumentStore) GetIndexState(_ context.Context, sourceType domain.SourceType, sourceID uuid.UUID, _ string) (*store.IndexState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.states[stateKey(sourceType, sourceID)]
	if !ok {
		return nil, store.ErrDocumentNotFound
	}
	return state, nil
}

func (f *fakeDocumentStore) UpsertDocument(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents = append(f.documents, doc)
	return nil
}

func (f *fakeDocumentStore) UpsertChunk(_ context.Context, chunk *domain.DocumentChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunk)
	return nil
}

func (f *fakeDocumentStore) UpsertEmbedding(_ context.Context, embedding *domain.DocumentEmbedding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embeddings = append(f.embeddings, embedding)
	return nil
}

func (f *fakeDocumentStore) SearchByVector(_ context.Context, _ uuid.UUID, _ string, _ []float64, _ int) ([]store.SearchResult, error) {
	return nil, nil
}

func (f *fakeDocumentStore) SearchLexical(_ context.Context, _ uuid.UUID, _ string, _ int) ([]store.SearchResult, error) {
	return nil, nil
}

func (f *fakeDocumentStore) WithTx(_ *sql.Tx) store.DocumentStore { return f }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource() Source {
	return Source{
		Type:    domain.SourceTypeCard,
		ID:      uuid.New(),
		OrgID:   uuid.New(),
		BoardID: uuid.New(),
		Content: "Fix login flow\n\nUsers are logged out after password reset.",
	}
}

func TestIndexSource(t *testing.T) {
	t.Parallel()

	t.Run("indexes new source with document chunk and embedding", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{}
		ix := New(embedder, testLogger())
		src := testSource()

		err := ix.IndexSource(context.Background(), docs, src)
		require.NoError(t, err)

		require.Len(t, docs.documents, 1)
		require.Len(t, docs.chunks, 1)
		require.Len(t, docs.embeddings, 1)

		doc := docs.documents[0]
		assert.Equal(t, domain.DocumentIDFor(src.Type, src.ID), doc.ID)
		assert.Equal(t, domain.ContentHash(src.Content), doc.ContentHash)
		assert.Equal(t, src.OrgID, doc.OrgID)

		chunk := docs.chunks[0]
		assert.Equal(t, domain.ChunkIDFor(doc.ID, 0), chunk.ID)
		assert.Equal(t, src.Content, chunk.Content)

		embedding := docs.embeddings[0]
		assert.Equal(t, chunk.ID, embedding.ChunkID)
		assert.Equal(t, "test-embedding-001", embedding.Model)
	})

	t.Run("skips unchanged content with existing chunk and embedding", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{}
		ix := New(embedder, testLogger())
		src := testSource()

		docID := domain.DocumentIDFor(src.Type, src.ID)
		docs.states[stateKey(src.Type, src.ID)] = &store.IndexState{
			Document: &domain.Document{
				ID:          docID,
				ContentHash: domain.ContentHash(src.Content),
			},
			ChunkID:      domain.ChunkIDFor(docID, 0),
			HasEmbedding: true,
		}

		err := ix.IndexSource(context.Background(), docs, src)
		require.NoError(t, err)

		assert.Empty(t, docs.documents)
		assert.Empty(t, docs.chunks)
		assert.Empty(t, docs.embeddings)
		assert.Zero(t, embedder.callCount())
	})

	t.Run("re-embeds when content changed", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{}
		ix := New(embedder, testLogger())
		src := testSource()

		docID := domain.DocumentIDFor(src.Type, src.ID)
		docs.states[stateKey(src.Type, src.ID)] = &store.IndexState{
			Document: &domain.Document{
				ID:          docID,
				ContentHash: domain.ContentHash("stale content"),
			},
			ChunkID:      domain.ChunkIDFor(docID, 0),
			HasEmbedding: true,
		}

		err := ix.IndexSource(context.Background(), docs, src)
		require.NoError(t, err)

		require.Len(t, docs.documents, 1)
		assert.Equal(t, docID, docs.documents[0].ID, "re-index must reuse the existing document id")
		assert.Equal(t, 1, embedder.callCount())
	})

	t.Run("embeds when chunk exists but embedding is missing", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{}
		ix := New(embedder, testLogger())
		src := testSource()

		docID := domain.DocumentIDFor(src.Type, src.ID)
		docs.states[stateKey(src.Type, src.ID)] = &store.IndexState{
			Document: &domain.Document{
				ID:          docID,
				ContentHash: domain.ContentHash(src.Content),
			},
			ChunkID:      domain.ChunkIDFor(docID, 0),
			HasEmbedding: false,
		}

		err := ix.IndexSource(context.Background(), docs, src)
		require.NoError(t, err)

		assert.Equal(t, 1, embedder.callCount())
		require.Len(t, docs.embeddings, 1)
	})

	t.Run("tolerates embedding failure and keeps the chunk", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{err: errors.New("quota exceeded")}
		ix := New(embedder, testLogger())

		err := ix.IndexSource(context.Background(), docs, testSource())
		require.NoError(t, err)

		assert.Len(t, docs.documents, 1)
		assert.Len(t, docs.chunks, 1)
		assert.Empty(t, docs.embeddings)
	})

	t.Run("ignores sources with empty content", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{}
		ix := New(embedder, testLogger())

		src := testSource()
		src.Content = ""

		err := ix.IndexSource(context.Background(), docs, src)
		require.NoError(t, err)
		assert.Empty(t, docs.documents)
		assert.Zero(t, embedder.callCount())
	})
}

func TestIndexCards(t *testing.T) {
	t.Parallel()

	newCard := func(orgID, boardID uuid.UUID, title string) *domain.Card {
		return &domain.Card{
			ID:      uuid.New(),
			OrgID:   orgID,
			BoardID: boardID,
			Title:   title,
		}
	}

	t.Run("indexes changed cards and skips unchanged ones", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{}
		ix := New(embedder, testLogger())

		orgID := uuid.New()
		boardID := uuid.New()
		fresh := newCard(orgID, boardID, "Ship onboarding emails")
		stale := newCard(orgID, boardID, "Update billing page copy")

		docID := domain.DocumentIDFor(domain.SourceTypeCard, fresh.ID)
		docs.states[stateKey(domain.SourceTypeCard, fresh.ID)] = &store.IndexState{
			Document: &domain.Document{
				ID:          docID,
				ContentHash: domain.ContentHash(fresh.IndexableContent()),
			},
			ChunkID:      domain.ChunkIDFor(docID, 0),
			HasEmbedding: true,
		}

		err := ix.IndexCards(context.Background(), docs, []*domain.Card{fresh, stale})
		require.NoError(t, err)

		require.Len(t, docs.documents, 1)
		assert.Equal(t, stale.ID, docs.documents[0].SourceID)
		assert.Equal(t, 1, embedder.callCount())
		assert.Len(t, docs.embeddings, 1)
	})

	t.Run("continues past per-card embedding failures", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		embedder := &fakeEmbedder{err: errors.New("model overloaded")}
		ix := New(embedder, testLogger())

		orgID := uuid.New()
		boardID := uuid.New()
		cards := []*domain.Card{
			newCard(orgID, boardID, "Refine search ranking"),
			newCard(orgID, boardID, "Add CSV export"),
		}

		err := ix.IndexCards(context.Background(), docs, cards)
		require.NoError(t, err)

		assert.Len(t, docs.documents, 2)
		assert.Len(t, docs.chunks, 2)
		assert.Empty(t, docs.embeddings)
	})

	t.Run("no-op for empty batch", func(t *testing.T) {
		t.Parallel()

		docs := newFakeDocumentStore()
		ix := New(&fakeEmbedder{}, testLogger())

		err := ix.IndexCards(context.Background(), docs, nil)
		require.NoError(t, err)
		assert.Empty(t, docs.documents)
	})
}
