// Package generation defines the boundary between the application core and
// external AI/LLM services: interfaces for structured generation and text
// embedding, the typed outputs each operation produces, and the error
// taxonomy that separates transient failures (retried by the claim loop)
// from permanent ones.
package generation
