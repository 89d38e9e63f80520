package api

import (
	"errors"
	"net/http"

	"github.com/quillboard/quillboard-api/internal/domain"
	"github.com/quillboard/quillboard-api/internal/service"
	"github.com/quillboard/quillboard-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authorization errors
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden

	// Not found errors. Under row-level security a cross-tenant id reads
	// as missing, so these cover both cases without leaking which one.
	case store.IsNotFoundError(err):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, service.ErrExtractionNotReady),
		errors.Is(err, store.ErrUpdateFailed):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, domain.ErrForbidden):
		return "Your role does not permit this operation"

	case errors.Is(err, store.ErrCardNotFound):
		return "Card not found"

	case errors.Is(err, store.ErrBoardNotFound):
		return "Board not found"

	case errors.Is(err, store.ErrResultNotFound):
		return "Job not found"

	case store.IsNotFoundError(err):
		return "Resource not found"

	case errors.Is(err, service.ErrExtractionNotReady):
		return "Extraction has not completed yet"

	case errors.Is(err, store.ErrUpdateFailed):
		return "Conflicting update, try again"

	case errors.Is(err, domain.ErrValidation), errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}
