package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/quillboard/quillboard-api/internal/api/shared"
	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/service"
)

// SummarizeCardRequest represents the request body for enqueueing a card summary
type SummarizeCardRequest struct {
	Reason string `json:"reason,omitempty" validate:"max=200"`
}

// AskBoardRequest represents the request body for asking a question about a board
type AskBoardRequest struct {
	Question string `json:"question" validate:"required,min=1,max=2000"`
	TopK     int    `json:"top_k,omitempty"  validate:"min=0,max=50"`
}

// ThreadToCardRequest represents the request body for extracting a card from a thread
type ThreadToCardRequest struct {
	ListID       string   `json:"list_id"      validate:"required,uuid"`
	Transcript   string   `json:"transcript"   validate:"required,min=1"`
	Participants []string `json:"participants" validate:"omitempty,dive,min=1"`
}

// TicketResponse represents the response data for an accepted job
type TicketResponse struct {
	JobID     string    `json:"job_id"`
	EventType string    `json:"event_type"`
	Status    string    `json:"status"`
	QueuedAt  time.Time `json:"queued_at"`
}

// SummaryResponse represents the response data for a card summary job
type SummaryResponse struct {
	CardID        string    `json:"card_id"`
	Status        string    `json:"status"`
	Summary       string    `json:"summary,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CitationResponse represents one citation in a board answer
type CitationResponse struct {
	ChunkID    string `json:"chunk_id"`
	SourceType string `json:"source_type"`
	SourceID   string `json:"source_id"`
}

// AnswerResponse represents the response data for an ask-board job
type AnswerResponse struct {
	JobID         string             `json:"job_id"`
	BoardID       string             `json:"board_id"`
	Status        string             `json:"status"`
	Answer        string             `json:"answer,omitempty"`
	Citations     []CitationResponse `json:"citations,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// ExtractionResponse represents the response data for a thread-to-card job
type ExtractionResponse struct {
	JobID         string          `json:"job_id"`
	BoardID       string          `json:"board_id"`
	ListID        string          `json:"list_id"`
	Status        string          `json:"status"`
	Draft         json.RawMessage `json:"draft,omitempty"`
	CreatedCardID string          `json:"created_card_id,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ConfirmResponse represents the response data for a confirmed extraction
type ConfirmResponse struct {
	CardID  string `json:"card_id"`
	Created bool   `json:"created"`
}

// JobsHandler handles async-job HTTP requests
type JobsHandler struct {
	jobs      service.JobsService
	validator *validator.Validate
}

// NewJobsHandler creates a new JobsHandler
func NewJobsHandler(jobs service.JobsService) *JobsHandler {
	return &JobsHandler{
		jobs:      jobs,
		validator: validator.New(),
	}
}

// principal extracts the authenticated principal set by the auth middleware.
func (h *JobsHandler) principal(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	principal, ok := shared.PrincipalFrom(r.Context())
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Principal not found")
		return domain.Principal{}, false
	}
	return principal, true
}

// pathUUID parses a uuid path parameter, responding with 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// SummarizeCard handles POST /api/cards/{id}/summarize requests
func (h *JobsHandler) SummarizeCard(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	cardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	// The body is optional; a bare POST summarizes with no stated reason.
	var req SummarizeCardRequest
	if r.ContentLength > 0 {
		if err := shared.DecodeJSON(r, &req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
			return
		}
	}

	ticket, err := h.jobs.EnqueueCardSummary(r.Context(), principal, cardID, req.Reason)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ticketToResponse(ticket))
}

// GetCardSummary handles GET /api/cards/{id}/summary requests
func (h *JobsHandler) GetCardSummary(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	cardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	summary, err := h.jobs.GetCardSummary(r.Context(), principal, cardID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	response := SummaryResponse{
		CardID:    summary.CardID.String(),
		Status:    string(summary.Status),
		UpdatedAt: summary.UpdatedAt,
	}
	if summary.Summary != nil {
		response.Summary = *summary.Summary
	}
	if summary.FailureReason != nil {
		response.FailureReason = *summary.FailureReason
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// AskBoard handles POST /api/boards/{id}/ask requests
func (h *JobsHandler) AskBoard(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	boardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req AskBoardRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	ticket, err := h.jobs.EnqueueAskBoard(r.Context(), principal, boardID, req.Question, req.TopK)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ticketToResponse(ticket))
}

// GetBoardAnswer handles GET /api/answers/{job_id} requests
func (h *JobsHandler) GetBoardAnswer(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	jobID, ok := pathUUID(w, r, "job_id")
	if !ok {
		return
	}

	answer, err := h.jobs.GetBoardAnswer(r.Context(), principal, jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	response := AnswerResponse{
		JobID:     answer.JobID.String(),
		BoardID:   answer.BoardID.String(),
		Status:    string(answer.Status),
		UpdatedAt: answer.UpdatedAt,
	}
	if answer.Answer != nil {
		response.Answer = *answer.Answer
	}
	if answer.FailureReason != nil {
		response.FailureReason = *answer.FailureReason
	}
	for _, citation := range answer.Citations {
		response.Citations = append(response.Citations, CitationResponse{
			ChunkID:    citation.ChunkID.String(),
			SourceType: citation.SourceType,
			SourceID:   citation.SourceID.String(),
		})
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// ExtractThread handles POST /api/boards/{id}/threads requests
func (h *JobsHandler) ExtractThread(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	boardID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	var req ThreadToCardRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	listID, err := uuid.Parse(req.ListID)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid list_id")
		return
	}

	ticket, err := h.jobs.EnqueueThreadToCard(
		r.Context(), principal, boardID, listID, req.Transcript, req.Participants)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, ticketToResponse(ticket))
}

// GetThreadExtraction handles GET /api/extractions/{job_id} requests
func (h *JobsHandler) GetThreadExtraction(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	jobID, ok := pathUUID(w, r, "job_id")
	if !ok {
		return
	}

	extraction, err := h.jobs.GetThreadExtraction(r.Context(), principal, jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	response := ExtractionResponse{
		JobID:     extraction.JobID.String(),
		BoardID:   extraction.BoardID.String(),
		ListID:    extraction.ListID.String(),
		Status:    string(extraction.Status),
		Draft:     extraction.Draft,
		UpdatedAt: extraction.UpdatedAt,
	}
	if extraction.CreatedCardID != nil {
		response.CreatedCardID = extraction.CreatedCardID.String()
	}
	if extraction.FailureReason != nil {
		response.FailureReason = *extraction.FailureReason
	}

	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// ConfirmExtraction handles POST /api/extractions/{job_id}/confirm requests
func (h *JobsHandler) ConfirmExtraction(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.principal(w, r)
	if !ok {
		return
	}
	jobID, ok := pathUUID(w, r, "job_id")
	if !ok {
		return
	}

	result, err := h.jobs.ConfirmThreadExtraction(r.Context(), principal, jobID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	shared.RespondWithJSON(w, r, status, ConfirmResponse{
		CardID:  result.CardID.String(),
		Created: result.Created,
	})
}

func ticketToResponse(ticket *service.JobTicket) TicketResponse {
	return TicketResponse{
		JobID:     ticket.JobID.String(),
		EventType: string(ticket.EventType),
		Status:    string(ticket.Status),
		QueuedAt:  ticket.QueuedAt,
	}
}
