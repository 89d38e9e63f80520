package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"google.golang.org/genai"

	"github.com/quillboard/quillboard-api/internal/config"
	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/generation"
)

// Generator implements the generation.Generator interface using Google's
// Gemini API.
type Generator struct {
	logger *slog.Logger
	config config.LLMConfig
	client *genai.Client
	model  string
}

// NewGenerator creates a Generator and initializes the underlying Gemini
// client.
func NewGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Generator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Generator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure Generator implements generation.Generator
var _ generation.Generator = (*Generator)(nil)

// GenerateSummary implements generation.Generator.GenerateSummary
func (g *Generator) GenerateSummary(ctx context.Context, card *domain.Card) (*generation.SummaryResult, error) {
	if card == nil {
		return nil, fmt.Errorf("%w: card cannot be nil", generation.ErrGenerationFailed)
	}

	prompt, err := renderPrompt(summaryPrompt, summaryPromptData{
		Title:       card.Title,
		Description: card.Description,
	})
	if err != nil {
		return nil, err
	}

	text, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseSummaryResponse(text)
}

// AnswerQuestion implements generation.Generator.AnswerQuestion
func (g *Generator) AnswerQuestion(
	ctx context.Context,
	boardName, question string,
	contexts []domain.RetrievedContext,
) (*generation.AnswerResult, error) {
	if question == "" {
		return nil, fmt.Errorf("%w: question cannot be empty", generation.ErrGenerationFailed)
	}
	if len(contexts) == 0 {
		return nil, fmt.Errorf("%w: at least one context is required", generation.ErrGenerationFailed)
	}

	prompt, err := renderPrompt(answerPrompt, answerPromptData{
		BoardName: boardName,
		Question:  question,
		Contexts:  contexts,
	})
	if err != nil {
		return nil, err
	}

	text, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseAnswerResponse(text)
}

// DraftCard implements generation.Generator.DraftCard
func (g *Generator) DraftCard(
	ctx context.Context,
	transcript string,
	participants []string,
) (*generation.DraftResult, error) {
	if transcript == "" {
		return nil, fmt.Errorf("%w: transcript cannot be empty", generation.ErrGenerationFailed)
	}

	prompt, err := renderPrompt(draftPrompt, draftPromptData{
		Transcript:   transcript,
		Participants: participants,
	})
	if err != nil {
		return nil, err
	}

	text, err := g.callWithRetry(ctx, prompt)
	if err != nil {
		return nil, err
	}

	return parseDraftResponse(text)
}

// callWithRetry makes a generation call with exponential backoff retry for
// transient errors. Safety blocks and empty responses are permanent and
// returned immediately; the claim loop parks events that carry them.
func (g *Generator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := g.config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 3
	}
	baseDelaySeconds := g.config.RetryDelaySeconds
	if baseDelaySeconds < 1 {
		baseDelaySeconds = 2
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		text, err := g.generateOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if generation.IsPermanent(err) || errors.Is(err, generation.ErrContentBlocked) {
			g.logger.Warn("permanent generation error, not retrying", "error", err)
			return "", err
		}

		if attempt >= maxRetries {
			break
		}

		// delay = baseDelay * 2^attempt * jitter in [0.5, 1.0)
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		jitter := 0.5 + rng.Float64()*0.5
		delay := time.Duration(backoffSeconds * jitter * float64(time.Second))

		g.logger.Info("retrying Gemini call after delay",
			"attempt", attempt+1,
			"max_attempts", maxRetries+1,
			"delay", delay.String(),
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}

	return "", fmt.Errorf("%w: exceeded %d attempts: %v", generation.ErrTransientFailure, maxRetries+1, lastErr)
}

// generateOnce performs a single generation call and classifies its outcome.
func (g *Generator) generateOnce(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		// API-level failures are assumed transient; the retry loop bounds them.
		return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason safety", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}
	return text, nil
}
