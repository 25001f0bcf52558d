package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	l := zap.NewExample()
	assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
}

func TestWithFamilyAndUser(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, l := WithFamilyID(context.Background(), base, "family-1")
	ctx, l = WithUserID(ctx, l, "user-1")
	l.Info("Coin adjusted")

	assert.Equal(t, "family-1", GetFamilyID(ctx))
	assert.Equal(t, "user-1", GetUserID(ctx))
	assert.Same(t, l, FromContext(ctx))

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "family-1", fields["family_id"])
	assert.Equal(t, "user-1", fields["user_id"])
}

func TestGetters_NotFound(t *testing.T) {
	assert.Empty(t, GetFamilyID(context.Background()))
	assert.Empty(t, GetUserID(context.Background()))
}

func TestFor(t *testing.T) {
	t.Run("enriches base from context values", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		ctx := context.WithValue(context.Background(), FamilyIDKey, "family-1")

		For(ctx, zap.New(core)).Info("msg")

		logs := recorded.All()
		require.Len(t, logs, 1)
		assert.Equal(t, "family-1", logs[0].ContextMap()["family_id"])
	})

	t.Run("prefers the attached logger", func(t *testing.T) {
		attachedCore, attachedLogs := observer.New(zapcore.InfoLevel)
		baseCore, baseLogs := observer.New(zapcore.InfoLevel)
		ctx, _ := WithUserID(context.Background(), zap.New(attachedCore), "user-1")

		For(ctx, zap.New(baseCore)).Info("msg")

		assert.Empty(t, baseLogs.All())
		require.Len(t, attachedLogs.All(), 1)
		assert.Equal(t, "user-1", attachedLogs.All()[0].ContextMap()["user_id"])
	})

	t.Run("nil base", func(t *testing.T) {
		assert.NotNil(t, For(context.Background(), nil))
	})
}

func TestWithTraceContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	assert.Same(t, base, WithTraceContext(context.Background(), base))

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

	L(WithContext(ctx, base)).Info("traced")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, traceID.String(), logs[0].ContextMap()["trace_id"])
	assert.Equal(t, spanID.String(), logs[0].ContextMap()["span_id"])
}
