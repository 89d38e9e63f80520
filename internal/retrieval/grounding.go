package retrieval

import (
	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
)

// GroundCitations maps the chunk references the model claims onto the
// contexts that were actually retrieved. References to chunks the model was
// never shown are discarded; if nothing survives but contexts exist, the top
// context is cited instead so the stored answer is never unattributed.
func GroundCitations(result *generation.AnswerResult, contexts []domain.RetrievedContext) []domain.Citation {
	if len(contexts) == 0 {
		return nil
	}

	byChunk := make(map[uuid.UUID]domain.RetrievedContext, len(contexts))
	for _, rc := range contexts {
		byChunk[rc.ChunkID] = rc
	}

	var citations []domain.Citation
	seen := make(map[uuid.UUID]bool, len(result.References))
	for _, ref := range result.References {
		rc, ok := byChunk[ref]
		if !ok || seen[ref] {
			continue
		}
		seen[ref] = true
		citations = append(citations, domain.Citation{
			ChunkID:    rc.ChunkID,
			SourceType: string(rc.SourceType),
			SourceID:   rc.SourceID,
		})
	}

	if len(citations) == 0 {
		top := contexts[0]
		citations = append(citations, domain.Citation{
			ChunkID:    top.ChunkID,
			SourceType: string(top.SourceType),
			SourceID:   top.SourceID,
		})
	}

	return citations
}
