package gemini

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/generation"
)

// summarySchema is the wire shape of a summarization response.
type summarySchema struct {
	Summary string `json:"summary"`
}

// answerSchema is the wire shape of a grounded-answer response. References
// carry the chunk ids the model claims to have used; the executor verifies
// them against the retrieved set.
type answerSchema struct {
	Answer     string   `json:"answer"`
	References []string `json:"references"`
}

// draftSchema is the wire shape of a thread-to-card drafting response.
type draftSchema struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description"`
	Checklist             []string `json:"checklist"`
	Labels                []string `json:"labels"`
	ParticipantIdentities []string `json:"participant_identities"`
}

// unwrapJSONFence strips a markdown code fence from around a JSON payload.
// Models regularly wrap structured output in ```json fences despite
// instructions not to; the fenced body must be parsed, not rejected.
func unwrapJSONFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// decodeStrict parses a model response into the target schema, rejecting
// unknown fields and trailing content. Any decode failure is permanent:
// resending the same prompt is not expected to fix a schema violation.
func decodeStrict(text string, target any) error {
	dec := json.NewDecoder(strings.NewReader(unwrapJSONFence(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: failed to parse JSON response: %v", generation.ErrInvalidResponse, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing content after JSON object", generation.ErrInvalidResponse)
	}
	return nil
}

func parseSummaryResponse(text string) (*generation.SummaryResult, error) {
	var schema summarySchema
	if err := decodeStrict(text, &schema); err != nil {
		return nil, err
	}
	if strings.TrimSpace(schema.Summary) == "" {
		return nil, fmt.Errorf("%w: empty summary", generation.ErrInvalidResponse)
	}
	return &generation.SummaryResult{Summary: strings.TrimSpace(schema.Summary)}, nil
}

func parseAnswerResponse(text string) (*generation.AnswerResult, error) {
	var schema answerSchema
	if err := decodeStrict(text, &schema); err != nil {
		return nil, err
	}
	if strings.TrimSpace(schema.Answer) == "" {
		return nil, fmt.Errorf("%w: empty answer", generation.ErrInvalidResponse)
	}

	// References that are not valid uuids are dropped rather than failing
	// the job; grounding treats missing references as "cite the top
	// context", which beats discarding an otherwise usable answer.
	references := make([]uuid.UUID, 0, len(schema.References))
	for _, ref := range schema.References {
		id, err := uuid.Parse(strings.TrimSpace(ref))
		if err != nil {
			continue
		}
		references = append(references, id)
	}

	return &generation.AnswerResult{
		Answer:     strings.TrimSpace(schema.Answer),
		References: references,
	}, nil
}

func parseDraftResponse(text string) (*generation.DraftResult, error) {
	var schema draftSchema
	if err := decodeStrict(text, &schema); err != nil {
		return nil, err
	}
	if strings.TrimSpace(schema.Title) == "" {
		return nil, fmt.Errorf("%w: draft missing title", generation.ErrInvalidResponse)
	}
	return &generation.DraftResult{
		Title:                 schema.Title,
		Description:           schema.Description,
		Checklist:             schema.Checklist,
		Labels:                schema.Labels,
		ParticipantIdentities: schema.ParticipantIdentities,
	}, nil
}
