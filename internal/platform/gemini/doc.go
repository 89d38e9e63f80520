// Package gemini provides implementations of the generation.Generator and
// generation.Embedder interfaces using Google's Gemini API.
//
// This package is an infrastructure adapter: it translates between the
// application's domain models and the Gemini API without exposing the
// external service to the core application. Structured outputs are requested
// as JSON, unwrapped from code fences when the model adds them, and decoded
// against a strict schema; non-conforming payloads are rejected as permanent
// errors rather than retried. Transient API failures retry with exponential
// backoff and jitter.
package gemini
