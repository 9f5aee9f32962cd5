package logging

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/ahmadzakiakmal/timetrack"

var (
	meter  = otel.Meter(instrumentationName)
	logger = otelslog.NewLogger(instrumentationName)
	tracer = otel.Tracer(instrumentationName)
)

// Logger returns the shared slog logger bridged into OpenTelemetry.
func Logger() *slog.Logger {
	return logger
}

func Log(content string, level slog.Level) {
	logger.Log(context.Background(), level, content)
}

func InitializeFloatCounter(name, description, unit string) (metric.Float64Counter, error) {
	counter, err := meter.Float64Counter(name,
		metric.WithDescription(description),
		metric.WithUnit(unit))
	if err != nil {
		Log("Failed to create metric: "+err.Error(), slog.LevelError)
		return nil, err
	}
	return counter, nil
}

func UpdateSpanValue(ctx context.Context, key string, value float64) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.Float64(key, value))
}

// StartSpan opens a span on the shared tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}
