package logger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("WARN", false))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel(" error ", true))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("", false))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("", true))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("chatty", false))
}

func TestEnrichContextWithLoggerWithoutSpan(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, EnrichContextWithLogger(ctx))
}

func TestEnrichContextWithLoggerAddsTraceIDs(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	enriched := EnrichContextWithLogger(ctx)
	assert.NotEqual(t, ctx, enriched)
	assert.NotNil(t, zerolog.Ctx(enriched))
}
