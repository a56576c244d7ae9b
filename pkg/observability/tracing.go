// Package observability provides OpenTelemetry tracing for bulk operations.
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName names the tracer used by bulkflow packages.
const InstrumentationName = "github.com/ajitpratap0/bulkflow"

var (
	mu       sync.RWMutex
	provider trace.TracerProvider
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	SamplingRate   float64
	ExporterType   string // "stdout" or "none"
	BatchTimeout   time.Duration
}

// InitTracing installs a global tracer provider and returns its shutdown
// function.
func InitTracing(config TracingConfig) (func(context.Context) error, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	if config.SamplingRate <= 0 {
		sampler = sdktrace.NeverSample()
	} else if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else {
		sampler = sdktrace.TraceIDRatioBased(config.SamplingRate)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	}

	switch config.ExporterType {
	case "none":
	default:
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		timeout := config.BatchTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		opts = append(opts, sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(timeout)))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	SetTracerProvider(tp)

	return tp.Shutdown, nil
}

// SetTracerProvider overrides the provider used by Tracer. Tests use it to
// install a span recorder.
func SetTracerProvider(tp trace.TracerProvider) {
	mu.Lock()
	defer mu.Unlock()
	provider = tp
}

// Tracer returns the bulkflow tracer, falling back to the global provider.
func Tracer() trace.Tracer {
	mu.RLock()
	tp := provider
	mu.RUnlock()
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName)
}

// Span wraps a trace span for one bulk phase.
type Span struct {
	span trace.Span
}

// StartPhase starts a span named "bulk.<operation>.<phase>" carrying the
// table as an attribute.
func StartPhase(ctx context.Context, operation, phase, table string) (context.Context, *Span) {
	ctx, span := Tracer().Start(ctx, fmt.Sprintf("bulk.%s.%s", operation, phase),
		trace.WithAttributes(
			attribute.String("bulk.operation", operation),
			attribute.String("bulk.phase", phase),
			attribute.String("db.sql.table", table),
		),
	)
	return ctx, &Span{span: span}
}

// SetRows records the number of rows a phase handled.
func (s *Span) SetRows(n int64) {
	s.span.SetAttributes(attribute.Int64("bulk.rows", n))
}

// End ends the span, recording err when non-nil.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
