package gemini

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/quillboard/quillboard-api/internal/domain"
)

// Prompt templates. Each instructs the model to answer with a bare JSON
// object matching the wire schema its caller decodes strictly.
var (
	summaryPrompt = template.Must(template.New("summary").Parse(
		`You are an assistant for a kanban project tool. Summarize the following card
in two to three sentences for a teammate who has not read it. Be concrete and
do not invent details that are not in the card.

Card title: {{.Title}}
{{- if .Description}}
Card description:
{{.Description}}
{{- end}}

Respond with only a JSON object in this exact shape, no markdown fences:
{"summary": "<two to three sentence summary>"}`))

	answerPrompt = template.Must(template.New("answer").Parse(
		`You are an assistant for a kanban project tool. Answer the question about the
board "{{.BoardName}}" using only the context snippets below. Each snippet has a
chunk id. If the context does not contain the answer, say so plainly instead of
guessing.

{{range .Contexts}}[chunk {{.ChunkID}}]
{{.Excerpt}}

{{end}}Question: {{.Question}}

Respond with only a JSON object in this exact shape, no markdown fences:
{"answer": "<answer text>", "references": ["<chunk id of every snippet you used>"]}`))

	draftPrompt = template.Must(template.New("draft").Parse(
		`You are an assistant for a kanban project tool. Read the chat thread below and
draft a task card capturing the work it discusses. Keep the title short and
imperative. Only list checklist items the thread actually mentions.
{{- if .Participants}}
Thread participants (external chat identities): {{range .Participants}}{{.}} {{end}}
Include in participant_identities only the identities of people the thread
assigns work to.
{{- end}}

Thread transcript:
{{.Transcript}}

Respond with only a JSON object in this exact shape, no markdown fences:
{"title": "<card title>", "description": "<card description>", "checklist": ["<item>"], "labels": ["<label>"], "participant_identities": ["<identity>"]}`))
)

type summaryPromptData struct {
	Title       string
	Description string
}

type answerPromptData struct {
	BoardName string
	Question  string
	Contexts  []domain.RetrievedContext
}

type draftPromptData struct {
	Transcript   string
	Participants []string
}

func renderPrompt(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute %s prompt template: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}
