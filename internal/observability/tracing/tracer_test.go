package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenTelemetryTracer_Disabled(t *testing.T) {
	tracer, err := NewOpenTelemetryTracer(Config{Enabled: false})
	require.NoError(t, err)

	ctx, span := tracer.Start(context.Background(), "noop")
	assert.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestStartOperation_DefaultTracer(t *testing.T) {
	previous := DefaultTracer
	DefaultTracer = nil
	defer func() { DefaultTracer = previous }()

	ctx, span := StartOperation(context.Background(), "purge", "mailflow-dlq-dev", AttrItemCount.Int(3))
	require.NotNil(t, span)
	AddEvent(ctx, "confirmed")
	assert.NotPanics(t, func() { End(span, errors.New("failed")) })
	assert.NotNil(t, DefaultTracer)
	assert.NoError(t, Shutdown(context.Background()))
}
