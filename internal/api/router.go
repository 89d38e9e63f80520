package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/quillboard/quillboard-api/internal/api/middleware"
)

// NewRouter assembles the HTTP routes. All job routes require a valid
// bearer token; role checks happen in the service layer where the
// principal is already typed.
func NewRouter(authMiddleware *middleware.AuthMiddleware, jobsHandler *JobsHandler) chi.Router {
	router := chi.NewRouter()

	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.TraceMiddleware)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	router.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/cards/{id}/summarize", jobsHandler.SummarizeCard)
		r.Get("/cards/{id}/summary", jobsHandler.GetCardSummary)

		r.Post("/boards/{id}/ask", jobsHandler.AskBoard)
		r.Get("/answers/{job_id}", jobsHandler.GetBoardAnswer)

		r.Post("/boards/{id}/threads", jobsHandler.ExtractThread)
		r.Get("/extractions/{job_id}", jobsHandler.GetThreadExtraction)
		r.Post("/extractions/{job_id}/confirm", jobsHandler.ConfirmExtraction)
	})

	return router
}
