package logger

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Setup configures the global zerolog logger for one binary. Every line
// carries the service name so API, worker and agent logs can share a sink.
// An empty or unknown level falls back to debug locally and info otherwise.
func Setup(service string, isLocalDev bool, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	base := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if isLocalDev {
		base = base.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	if service != "" {
		base = base.With().Str("service", service).Logger()
	}
	log.Logger = base
	zerolog.DefaultContextLogger = &log.Logger

	zerolog.SetGlobalLevel(ParseLevel(level, isLocalDev))
}

// ParseLevel maps a LOG_LEVEL value onto a zerolog level.
func ParseLevel(level string, isLocalDev bool) zerolog.Level {
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		return l
	}
	if isLocalDev {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

// EnrichContextWithLogger attaches a logger carrying the active trace and
// span ids to ctx. Without a sampled span ctx is returned unchanged.
func EnrichContextWithLogger(ctx context.Context) context.Context {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() || !trace.SpanFromContext(ctx).IsRecording() {
		return ctx
	}

	l := log.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()

	return l.WithContext(ctx)
}
