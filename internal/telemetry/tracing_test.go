package telemetry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gosuda/deskchat/internal/telemetry"
)

// Not parallel: Setup replaces the global tracer provider.
func TestSetup_ExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()

	p, err := telemetry.Setup(t.Context(), telemetry.Config{
		ServiceName:    "deskchat-test",
		ServiceVersion: "test",
		Exporter:       exporter,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(t.Context(), "unit")
	span.End()

	require.NoError(t, p.ForceFlush(t.Context()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "unit", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "deskchat-test", service)

	require.NoError(t, p.Shutdown(t.Context()))
}

func TestSetup_NoEndpoint(t *testing.T) {
	p, err := telemetry.Setup(t.Context(), telemetry.Config{ServiceName: "deskchat-test"})
	require.NoError(t, err)
	assert.NoError(t, p.Shutdown(t.Context()))
}

func TestProvider_NilSafe(t *testing.T) {
	t.Parallel()

	var p *telemetry.Provider
	assert.NoError(t, p.Shutdown(t.Context()))
	assert.NoError(t, p.ForceFlush(t.Context()))
}
