package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/balancedhttp/core/internal/core/constants"
)

// NewRequestContext establishes the per-request context the admission
// wrapper must provide before dispatching into the pipeline: request id,
// admission time, and a logger pre-bound with the request id so handlers
// and exception hooks never have to pass it explicitly (ss4.I).
func NewRequestContext(ctx context.Context, requestID string, baseLogger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, constants.ContextRequestIDKey, requestID)
	ctx = context.WithValue(ctx, constants.ContextRequestTimeKey, time.Now())
	logHandler := baseLogger.With(string(constants.ContextRequestIDKey), requestID)
	ctx = context.WithValue(ctx, logKey, logHandler)
	return ctx
}

// WithHandlerName stamps the concrete handler type name into ctx, for
// logging and the fail-fast method lookup (`{http_method}_page_fail_fast`).
func WithHandlerName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, constants.ContextHandlerNameKey, name)
}

type contextLogKey struct{}

var logKey = contextLogKey{}

// LogHandler returns the request-scoped logger established by
// NewRequestContext, or slog.Default() if none was set.
func LogHandler(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(logKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RequestID returns the request id stamped by NewRequestContext, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(constants.ContextRequestIDKey).(string); ok {
		return id
	}
	return ""
}

// HandlerName returns the handler name stamped by WithHandlerName, or "".
func HandlerName(ctx context.Context) string {
	if name, ok := ctx.Value(constants.ContextHandlerNameKey).(string); ok {
		return name
	}
	return ""
}

// AdmittedAt returns the admission timestamp stamped by NewRequestContext.
func AdmittedAt(ctx context.Context) time.Time {
	if t, ok := ctx.Value(constants.ContextRequestTimeKey).(time.Time); ok {
		return t
	}
	return time.Time{}
}
