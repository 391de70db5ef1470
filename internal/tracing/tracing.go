// Package tracing provides trace ID generation and context propagation
// for structured logging across a session's tick loop, its webhook
// deliveries, and the admin API.
package tracing

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	traceIDKey contextKey = "trace_id"
	userIDKey  contextKey = "user_id"

	// TraceIDField is the zerolog field name used for trace IDs.
	TraceIDField = "trace_id"
	// UserIDField is the zerolog field name used for the owning session's user ID.
	UserIDField = "user_id"
)

// NewTraceID generates a cryptographically random trace ID: a
// 16-character lowercase hex string (64 bits of entropy).
func NewTraceID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return fmt.Sprintf("%x", b)
}

// WithTraceID returns a new context with the given trace ID attached.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceIDFromCtx extracts the trace ID from context, or "" if absent.
func TraceIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUserID returns a new context carrying the owning session's user ID,
// so every log line emitted while processing that session's tick can be
// filtered to one user without threading the ID through every call.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromCtx extracts the session user ID from context, or "" if absent.
func UserIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// Logger returns a zerolog sub-logger carrying the trace ID and user ID
// present in ctx. Either or both may be absent; missing fields are
// omitted rather than logged empty.
//
// Usage:
//
//	tracing.Logger(ctx).Info().Str("symbol", "BTCUSDT").Msg("tick started")
func Logger(ctx context.Context) zerolog.Logger {
	logCtx := log.Logger.With()
	if traceID := TraceIDFromCtx(ctx); traceID != "" {
		logCtx = logCtx.Str(TraceIDField, traceID)
	}
	if userID := UserIDFromCtx(ctx); userID != "" {
		logCtx = logCtx.Str(UserIDField, userID)
	}
	return logCtx.Logger()
}
