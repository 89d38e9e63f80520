// Package outbox defines the typed payloads carried by outbox events and the
// router that turns a stored event back into a validated, typed command.
// Payloads form a closed sum over the fixed set of event kinds; nothing past
// the router boundary ever sees an untyped payload.
package outbox
