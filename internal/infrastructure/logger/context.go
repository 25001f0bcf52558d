package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// contextKey is a type for context keys used by the logger package
type contextKey string

const (
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
	// FamilyIDKey is the context key for the family scope
	FamilyIDKey contextKey = "family_id"
	// UserIDKey is the context key for user ID
	UserIDKey contextKey = "user_id"
)

// WithContext returns a new context with the logger attached
func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context, returns a no-op logger if not found
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}

// WithFamilyID adds the family ID to context and returns the enriched logger
func WithFamilyID(ctx context.Context, logger *zap.Logger, familyID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, FamilyIDKey, familyID)
	enriched := logger.With(zap.String("family_id", familyID))
	return WithContext(ctx, enriched), enriched
}

// WithUserID adds user ID to context and returns the enriched logger
func WithUserID(ctx context.Context, logger *zap.Logger, userID string) (context.Context, *zap.Logger) {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	enriched := logger.With(zap.String("user_id", userID))
	return WithContext(ctx, enriched), enriched
}

// GetFamilyID retrieves the family ID from context
func GetFamilyID(ctx context.Context) string {
	if familyID, ok := ctx.Value(FamilyIDKey).(string); ok {
		return familyID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

// WithTraceContext adds trace_id and span_id from the context's span.
// If no valid span exists, returns the original logger unchanged.
func WithTraceContext(ctx context.Context, logger *zap.Logger) *zap.Logger {
	spanCtx := trace.SpanFromContext(ctx).SpanContext()
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}

// L returns the logger attached to ctx with trace fields added.
// Usage: logger.L(ctx).Info("Coin adjusted", zap.Int64("delta", delta))
func L(ctx context.Context) *zap.Logger {
	return WithTraceContext(ctx, FromContext(ctx))
}

// For returns the logger attached to ctx, or base enriched with the family and
// user IDs stored in ctx when no logger is attached. Trace fields are always added.
func For(ctx context.Context, base *zap.Logger) *zap.Logger {
	if attached, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return WithTraceContext(ctx, attached)
	}
	if base == nil {
		base = zap.NewNop()
	}
	l := base
	if familyID := GetFamilyID(ctx); familyID != "" {
		l = l.With(zap.String("family_id", familyID))
	}
	if userID := GetUserID(ctx); userID != "" {
		l = l.With(zap.String("user_id", userID))
	}
	return WithTraceContext(ctx, l)
}
