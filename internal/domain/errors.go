package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity or command fails
	// validation. This is often wrapped with a more specific message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrEmptyContent is returned when required content is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrForbidden is returned when the acting principal's role disallows
	// the requested operation.
	ErrForbidden = errors.New("operation forbidden")

	// ErrInvalidStatus is returned when a job status value is not one of
	// the known statuses.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrInvalidSourceType is returned when a document source type is not
	// one of the known source types.
	ErrInvalidSourceType = errors.New("invalid document source type")
)
