package generation

import (
	"context"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// SummaryResult is the structured output of a card summarization call.
type SummaryResult struct {
	Summary string `json:"summary"`
}

// AnswerResult is the structured output of a grounded question-answering
// call. References lists the chunk ids the model claims to have used; the
// executor verifies each against the contexts actually supplied before
// trusting it.
type AnswerResult struct {
	Answer     string      `json:"answer"`
	References []uuid.UUID `json:"references"`
}

// DraftResult is the structured output of a thread-to-card drafting call.
// ParticipantIdentities carries external chat identities the model believes
// should be assigned; the executor resolves them to internal user ids.
type DraftResult struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	Checklist             []string `json:"checklist"`
	Labels                []string `json:"labels"`
	ParticipantIdentities []string `json:"participant_identities"`
}

// Generator defines the interface for structured AI generation.
// This interface serves as a boundary between the application core and
// external AI/LLM services, following the hexagonal architecture pattern.
// Implementations must validate the model's output against the expected
// schema and return ErrInvalidResponse on non-conforming payloads.
type Generator interface {
	// GenerateSummary produces a short summary of one card.
	GenerateSummary(ctx context.Context, card *domain.Card) (*SummaryResult, error)

	// AnswerQuestion produces an answer grounded in the supplied contexts.
	AnswerQuestion(ctx context.Context, boardName, question string, contexts []domain.RetrievedContext) (*AnswerResult, error)

	// DraftCard extracts a card draft from a chat-thread transcript.
	DraftCard(ctx context.Context, transcript string, participants []string) (*DraftResult, error)
}

// Embedder defines the interface for embedding text to a fixed-length vector.
type Embedder interface {
	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)

	// Model returns the name of the embedding model, which keys stored
	// vectors so embeddings from different models are never compared.
	Model() string
}
