// Package domain defines the core business entities and errors: the outbox
// event, the per-job-type result rows, the document/chunk/embedding triple
// used for retrieval, and the principal carried through every scoped
// operation.
package domain
