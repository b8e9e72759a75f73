// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

import (
	"context"
	"log/slog"
)

// LoggerKey is the context key type for the enriched logger.
// Used by WithLogger and LoggerFrom to store and retrieve the logger.
type LoggerKey struct{}

// WithLogger returns a child context carrying logger, retrievable with
// LoggerFrom. Used to thread an upstream-command-scoped logger (carrying
// e.g. "upstream" or a run id) through the middleware loop.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey{}, logger)
}

// LoggerFrom returns the logger stored by WithLogger, or slog.Default()
// if none was attached.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(LoggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	return slog.Default()
}
