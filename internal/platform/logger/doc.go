// Package logger configures the application's structured logging (slog with a
// JSON handler) and provides helpers for carrying request- and job-scoped
// loggers through context.Context.
package logger
