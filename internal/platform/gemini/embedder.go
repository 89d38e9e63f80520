package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/quillboard/quillboard-api/internal/config"
	"github.com/quillboard/quillboard-api/internal/generation"
)

// Embedder implements the generation.Embedder interface using Google's
// Gemini embedding models. The model name keys stored vectors, so changing
// it starts a fresh embedding space rather than polluting the old one.
type Embedder struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewEmbedder creates an Embedder and initializes the underlying Gemini
// client.
func NewEmbedder(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Embedder, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("%w: embedding model cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Embedder{
		logger: logger.With(slog.String("component", "gemini_embedder")),
		client: client,
		model:  cfg.EmbeddingModel,
	}, nil
}

// Ensure Embedder implements generation.Embedder
var _ generation.Embedder = (*Embedder)(nil)

// Embed implements generation.Embedder.Embed
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", generation.ErrGenerationFailed)
	}

	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding call failed: %v", generation.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", generation.ErrInvalidResponse)
	}

	values := resp.Embeddings[0].Values
	vector := make([]float64, len(values))
	for i, v := range values {
		vector[i] = float64(v)
	}

	return vector, nil
}

// Model implements generation.Embedder.Model
func (e *Embedder) Model() string {
	return e.model
}
