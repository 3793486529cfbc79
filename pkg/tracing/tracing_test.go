package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitNone(t *testing.T) {
	shutdown, err := Init(context.Background(), "test", "dev", Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := StartSpan(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestInitUnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), "test", "dev", Config{Exporter: "zipkin"})
	assert.Error(t, err)
}

func TestInitStdout(t *testing.T) {
	shutdown, err := Init(context.Background(), "test", "dev", Config{Exporter: ExporterStdout, SampleRatio: 0.5})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestEndRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := StartSpan(context.Background(), "provider.stop", attribute.String("instance.id", "i-1"))
	End(span, errors.New("throttled"))

	_, ok := StartSpan(context.Background(), "provider.start")
	End(ok, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "provider.stop", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "throttled", spans[0].Status().Description)
	assert.Contains(t, spans[0].Attributes(), attribute.String("instance.id", "i-1"))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)
}
