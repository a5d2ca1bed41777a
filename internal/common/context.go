package common

import (
	"context"
	"log/slog"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRequestID contextKey = "request_id"
	ContextKeyUserID    contextKey = "user_id"
)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// RequestIDFromContext extracts the request ID from context
func RequestIDFromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return requestID
	}
	return ""
}

// WithUserID adds the calling user's ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}

// UserIDFromContext extracts the user ID from context
func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(ContextKeyUserID).(string); ok {
		return userID
	}
	return ""
}

// LogAttrs returns the request-scoped attributes every log line should carry.
func LogAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, 4)
	if id := RequestIDFromContext(ctx); id != "" {
		attrs = append(attrs, "req_id", id)
	}
	if id := UserIDFromContext(ctx); id != "" {
		attrs = append(attrs, "user_id", id)
	}
	return attrs
}

// LoggerFrom decorates logger with the request attributes found in ctx.
func LoggerFrom(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if attrs := LogAttrs(ctx); len(attrs) > 0 {
		return logger.With(attrs...)
	}
	return logger
}

// WithTimeout creates a context with the specified timeout. A non-positive timeout
// returns a cancelable child of parent without a deadline.
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}

// ElapsedMS is the elapsed_ms attribute value used in log lines.
func ElapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
