// Package service contains the application services that sit between the
// transport layer and the stores. The jobs service is the producer side of
// the durable queue: it validates the caller, writes the result-row
// placeholder and the outbox event in one transaction, and reads results
// back for status polling. It never talks to the AI provider; that is the
// worker's job.
package service
