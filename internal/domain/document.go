package domain

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
)

// SourceType identifies which kind of entity a document's content came from.
type SourceType string

// Known document source types. Retrieval drops rows whose source type is not
// in this set.
const (
	SourceTypeCard  SourceType = "card"
	SourceTypeBoard SourceType = "board"
)

// Document validation errors.
var (
	ErrEmptyDocumentID      = errors.New("document ID cannot be empty")
	ErrEmptyDocumentOrgID   = errors.New("document org ID cannot be empty")
	ErrEmptyDocumentBoardID = errors.New("document board ID cannot be empty")
	ErrEmptyDocumentSource  = errors.New("document source ID cannot be empty")
)

// documentNamespace is the fixed UUID namespace for deterministic document
// and chunk identity derivation. Concurrent indexers derive the same ids for
// the same source and converge on one row instead of creating duplicates.
var documentNamespace = uuid.MustParse("8f4f9f2a-1f5e-4f6b-9f50-54b0f9e2a6c1")

// DocumentIDFor derives the deterministic document id for a source entity.
func DocumentIDFor(sourceType SourceType, sourceID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(documentNamespace, []byte(string(sourceType)+":"+sourceID.String()))
}

// ChunkIDFor derives the deterministic chunk id for a document's chunk index.
func ChunkIDFor(documentID uuid.UUID, chunkIndex int) uuid.UUID {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], uint32(chunkIndex))
	return uuid.NewSHA1(documentID, idx[:])
}

// ContentHash returns the hex sha256 of content, used by the indexer to
// short-circuit re-embedding when content is unchanged.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Document holds one source entity's indexable content. ContentHash is the
// hex sha256 of Content, compared on re-index to decide whether embedding
// work can be skipped.
type Document struct {
	ID          uuid.UUID  `json:"id"`
	OrgID       uuid.UUID  `json:"org_id"`
	BoardID     uuid.UUID  `json:"board_id"`
	SourceType  SourceType `json:"source_type"`
	SourceID    uuid.UUID  `json:"source_id"`
	Content     string     `json:"content"`
	ContentHash string     `json:"content_hash"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Validate checks if the Document has valid data.
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return ErrEmptyDocumentID
	}
	if d.OrgID == uuid.Nil {
		return ErrEmptyDocumentOrgID
	}
	if d.BoardID == uuid.Nil {
		return ErrEmptyDocumentBoardID
	}
	if !IsValidSourceType(d.SourceType) {
		return ErrInvalidSourceType
	}
	if d.SourceID == uuid.Nil {
		return ErrEmptyDocumentSource
	}
	if d.Content == "" {
		return ErrEmptyContent
	}
	return nil
}

// DocumentChunk is a bounded slice of a document's content, the unit of
// embedding and retrieval. Currently documents decompose into one chunk.
type DocumentChunk struct {
	ID         uuid.UUID `json:"id"`
	DocumentID uuid.UUID `json:"document_id"`
	OrgID      uuid.UUID `json:"org_id"`
	BoardID    uuid.UUID `json:"board_id"`
	ChunkIndex int       `json:"chunk_index"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DocumentEmbedding is a chunk's vector under a named embedding model.
type DocumentEmbedding struct {
	ChunkID   uuid.UUID `json:"chunk_id"`
	OrgID     uuid.UUID `json:"org_id"`
	BoardID   uuid.UUID `json:"board_id"`
	Model     string    `json:"model"`
	Vector    []float64 `json:"vector"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RetrievedContext is one tenant-scoped context snippet returned by the
// retrieval engine. It is ephemeral and never persisted.
type RetrievedContext struct {
	ChunkID    uuid.UUID  `json:"chunk_id"`
	SourceType SourceType `json:"source_type"`
	SourceID   uuid.UUID  `json:"source_id"`
	Excerpt    string     `json:"excerpt"`
}

// IsValidSourceType checks if the given source type is one of the known types.
func IsValidSourceType(t SourceType) bool {
	switch t {
	case SourceTypeCard, SourceTypeBoard:
		return true
	default:
		return false
	}
}
