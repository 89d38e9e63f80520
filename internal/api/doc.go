// Package api contains the HTTP transport layer: request/response models,
// handlers for the async-job endpoints, and the error-to-status mapping that
// keeps internal error details out of client responses. Handlers stay thin;
// all authorization and persistence decisions live in the service layer and
// below.
package api
