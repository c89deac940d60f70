// Package ctxlog carries a slog.Logger through context.Context and adds the
// trace level used by the micro-block hot path.
package ctxlog

import (
	"context"
	"log/slog"
)

// LevelTrace sits below slog.LevelDebug. Trim and skip decisions inside the
// micro-block evaluator are logged at this level.
const LevelTrace = slog.Level(-8)

// key is an unexported type to prevent collisions with context keys from other packages.
type key struct{}

// loggerKey is the key for the slog.Logger in a context.Context.
var loggerKey = key{}

// WithLogger returns a new context with the provided logger embedded.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext extracts the slog.Logger from a context. It panics when no
// logger was attached; every entrypoint attaches one.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	panic("ctxlog: logger missing from context")
}

// TraceEnabled reports whether trace messages would be emitted. Callers on
// the hot path check it before formatting index tuples.
func TraceEnabled(ctx context.Context) bool {
	return FromContext(ctx).Enabled(ctx, LevelTrace)
}

// Trace logs msg at LevelTrace.
func Trace(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Log(ctx, LevelTrace, msg, args...)
}
