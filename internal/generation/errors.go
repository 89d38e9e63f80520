package generation

import "errors"

// Common errors returned by the generation package.
var (
	// ErrGenerationFailed is returned when a generation call fails for any general reason.
	ErrGenerationFailed = errors.New("failed to generate structured output")

	// ErrInvalidResponse is returned when the LLM response cannot be parsed or is malformed.
	// This is a permanent error: retrying the same prompt is not expected to help.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the LLM blocks the content due to safety filters.
	// Permanent: the same input will be blocked again.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry.
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// IsPermanent reports whether a generation error should be treated as
// non-retryable. Unrecognized errors default to transient so genuinely
// intermittent failures keep their retry behavior.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrInvalidResponse) ||
		errors.Is(err, ErrContentBlocked) ||
		errors.Is(err, ErrInvalidConfig)
}
