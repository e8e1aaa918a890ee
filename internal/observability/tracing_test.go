package observability

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestTracerProvider_ExportsToWriter(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider("mcp-openai-test", "test", &buf)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "unit-span")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "unit-span")
	assert.Contains(t, buf.String(), "mcp-openai-test")
}

func TestTracerProvider_NamedTracer(t *testing.T) {
	var buf bytes.Buffer
	tp, err := NewTracerProvider("mcp-openai-test", "test", &buf)
	require.NoError(t, err)

	_, span := tp.Tracer("retry").Start(context.Background(), "invoke ask-openai")
	span.End()

	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "invoke ask-openai")
}
