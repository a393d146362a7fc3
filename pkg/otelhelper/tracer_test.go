package otelhelper

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewTracer_NoEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	t.Setenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", "")

	tracer, shutdown, err := NewTracer(context.Background(), "workflow-test")
	require.NoError(t, err)
	require.NotNil(t, tracer)

	_, span := StartSpan(context.Background(), tracer, "noop", attribute.String(InstanceIDKey, "inst-1"))
	SetError(span, errors.New("boom"))
	span.End()

	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, shutdown(context.Background()))
}
