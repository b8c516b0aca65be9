package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ayush-ak-725/job-processor-distributed-task-queue/internal/observability"
)

func TestContextWithLogger_RoundTrip(t *testing.T) {
	t.Parallel()
	lg := slog.Default().With(slog.String("k", "v"))
	ctx := observability.ContextWithLogger(context.Background(), lg)
	assert.Same(t, lg, observability.LoggerFromContext(ctx))
}

func TestLoggerFromContext_Defaults(t *testing.T) {
	t.Parallel()
	assert.Same(t, slog.Default(), observability.LoggerFromContext(context.Background()))
	assert.Same(t, slog.Default(), observability.LoggerFromContext(nil)) //nolint:staticcheck // nil context tolerated on purpose
}

func TestContextWithLogger_NilLogger(t *testing.T) {
	t.Parallel()
	ctx := observability.ContextWithLogger(context.Background(), nil)
	assert.Same(t, slog.Default(), observability.LoggerFromContext(ctx))
}

func TestRequestID_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := observability.ContextWithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", observability.RequestIDFromContext(ctx))
	assert.Equal(t, "", observability.RequestIDFromContext(context.Background()))
}
