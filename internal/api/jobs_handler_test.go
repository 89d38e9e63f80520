package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillboard/quillboard-api/internal/api/shared"
	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/service"
	"github.com/quillboard/quillboard-api/internal/store"
)

// stubJobsService returns canned values per method, recording the arguments
// that reached the service layer.
type stubJobsService struct {
	ticket     *service.JobTicket
	summary    *domain.CardSummary
	answer     *domain.BoardAnswer
	extraction *domain.ThreadExtraction
	confirm    *service.ConfirmResult
	err        error

	gotPrincipal domain.Principal
	gotQuestion  string
	gotTopK      int
}

func (s *stubJobsService) EnqueueCardSummary(_ context.Context, principal domain.Principal, _ uuid.UUID, _ string) (*service.JobTicket, error) {
	s.gotPrincipal = principal
	return s.ticket, s.err
}

func (s *stubJobsService) EnqueueAskBoard(_ context.Context, principal domain.Principal, _ uuid.UUID, question string, topK int) (*service.JobTicket, error) {
	s.gotPrincipal = principal
	s.gotQuestion = question
	s.gotTopK = topK
	return s.ticket, s.err
}

func (s *stubJobsService) EnqueueThreadToCard(_ context.Context, principal domain.Principal, _, _ uuid.UUID, _ string, _ []string) (*service.JobTicket, error) {
	s.gotPrincipal = principal
	return s.ticket, s.err
}

func (s *stubJobsService) GetCardSummary(_ context.Context, _ domain.Principal, _ uuid.UUID) (*domain.CardSummary, error) {
	return s.summary, s.err
}

func (s *stubJobsService) GetBoardAnswer(_ context.Context, _ domain.Principal, _ uuid.UUID) (*domain.BoardAnswer, error) {
	return s.answer, s.err
}

func (s *stubJobsService) GetThreadExtraction(_ context.Context, _ domain.Principal, _ uuid.UUID) (*domain.ThreadExtraction, error) {
	return s.extraction, s.err
}

func (s *stubJobsService) ConfirmThreadExtraction(_ context.Context, _ domain.Principal, _ uuid.UUID) (*service.ConfirmResult, error) {
	return s.confirm, s.err
}

// serveAuthed routes the request through a chi router with the principal
// already in context, mimicking a request past the auth middleware.
func serveAuthed(t *testing.T, svc service.JobsService, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	handler := NewJobsHandler(svc)
	router := chi.NewRouter()
	router.Post("/api/cards/{id}/summarize", handler.SummarizeCard)
	router.Get("/api/cards/{id}/summary", handler.GetCardSummary)
	router.Post("/api/boards/{id}/ask", handler.AskBoard)
	router.Get("/api/answers/{job_id}", handler.GetBoardAnswer)
	router.Post("/api/boards/{id}/threads", handler.ExtractThread)
	router.Get("/api/extractions/{job_id}", handler.GetThreadExtraction)
	router.Post("/api/extractions/{job_id}/confirm", handler.ConfirmExtraction)

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = &bytes.Buffer{}
	}

	req := httptest.NewRequest(method, path, reqBody)
	principal := domain.Principal{UserID: uuid.New(), OrgID: uuid.New(), Role: domain.RoleMember}
	req = req.WithContext(shared.WithPrincipal(req.Context(), principal))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func queuedTicket(eventType domain.EventType) *service.JobTicket {
	return &service.JobTicket{
		JobID:     uuid.New(),
		EventType: eventType,
		Status:    domain.JobStatusQueued,
		QueuedAt:  time.Now().UTC(),
	}
}

func TestSummarizeCardHandler(t *testing.T) {
	t.Parallel()

	t.Run("accepted with ticket", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{ticket: queuedTicket(domain.EventTypeCardSummary)}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/cards/"+uuid.NewString()+"/summarize",
			SummarizeCardRequest{Reason: "manual"})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		var ticket TicketResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
		assert.Equal(t, string(domain.EventTypeCardSummary), ticket.EventType)
		assert.Equal(t, "queued", ticket.Status)
	})

	t.Run("invalid card id", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{}

		rec := serveAuthed(t, svc, http.MethodPost, "/api/cards/not-a-uuid/summarize", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing card maps to 404", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{err: store.ErrCardNotFound}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/cards/"+uuid.NewString()+"/summarize", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("forbidden role maps to 403", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{err: domain.ErrForbidden}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/cards/"+uuid.NewString()+"/summarize", nil)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAskBoardHandler(t *testing.T) {
	t.Parallel()

	t.Run("accepted and passes question through", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{ticket: queuedTicket(domain.EventTypeAskBoard)}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/boards/"+uuid.NewString()+"/ask",
			AskBoardRequest{Question: "what shipped last week?", TopK: 5})

		assert.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "what shipped last week?", svc.gotQuestion)
		assert.Equal(t, 5, svc.gotTopK)
	})

	t.Run("empty question fails validation", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/boards/"+uuid.NewString()+"/ask",
			AskBoardRequest{Question: ""})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBoardAnswerHandler(t *testing.T) {
	t.Parallel()

	t.Run("completed answer with citations", func(t *testing.T) {
		t.Parallel()
		text := "Two cards cover the incident."
		answer := &domain.BoardAnswer{
			JobID:   uuid.New(),
			OrgID:   uuid.New(),
			BoardID: uuid.New(),
			Status:  domain.JobStatusCompleted,
			Answer:  &text,
			Citations: []domain.Citation{
				{ChunkID: uuid.New(), SourceType: "card", SourceID: uuid.New()},
			},
			UpdatedAt: time.Now().UTC(),
		}
		svc := &stubJobsService{answer: answer}

		rec := serveAuthed(t, svc, http.MethodGet, "/api/answers/"+answer.JobID.String(), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response AnswerResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.Equal(t, text, response.Answer)
		require.Len(t, response.Citations, 1)
		assert.Equal(t, "card", response.Citations[0].SourceType)
	})

	t.Run("missing job maps to 404", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{err: store.ErrResultNotFound}

		rec := serveAuthed(t, svc, http.MethodGet, "/api/answers/"+uuid.NewString(), nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestExtractThreadHandler(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{ticket: queuedTicket(domain.EventTypeThreadToCard)}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/boards/"+uuid.NewString()+"/threads",
			ThreadToCardRequest{
				ListID:       uuid.NewString(),
				Transcript:   "alice: deploy is broken",
				Participants: []string{"alice"},
			})

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("missing transcript fails validation", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/boards/"+uuid.NewString()+"/threads",
			ThreadToCardRequest{ListID: uuid.NewString()})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConfirmExtractionHandler(t *testing.T) {
	t.Parallel()

	t.Run("created card returns 201", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{confirm: &service.ConfirmResult{CardID: uuid.New(), Created: true}}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/extractions/"+uuid.NewString()+"/confirm", nil)

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("repeat confirmation returns 200", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{confirm: &service.ConfirmResult{CardID: uuid.New(), Created: false}}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/extractions/"+uuid.NewString()+"/confirm", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response ConfirmResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
		assert.False(t, response.Created)
	})

	t.Run("unfinished extraction maps to 409", func(t *testing.T) {
		t.Parallel()
		svc := &stubJobsService{err: service.ErrExtractionNotReady}

		rec := serveAuthed(t, svc, http.MethodPost,
			"/api/extractions/"+uuid.NewString()+"/confirm", nil)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}
