// Package worker implements the outbox claim loop: a timer-driven poller
// that claims due events with a lock-and-skip-locked read, dispatches each
// to its executor, and records retry/backoff bookkeeping for failures. The
// three executors (card summary, ask board, thread to card) also live here.
package worker
