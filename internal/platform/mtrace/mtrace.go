// Package mtrace wires OpenTelemetry tracing for the core, mirroring the
// teacher's common/mopentelemetry and common/context.go: a tracer is
// carried on context.Context, falling back to a named default when absent,
// and every service method opens one span per operation.
package mtrace

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

type tracerContextKey struct{}

// ContextWithTracer returns a child context carrying tracer.
func ContextWithTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	return context.WithValue(ctx, tracerContextKey{}, tracer)
}

// FromContext returns the tracer stored in ctx, or a default named tracer
// when none was set.
func FromContext(ctx context.Context) trace.Tracer {
	if t, ok := ctx.Value(tracerContextKey{}).(trace.Tracer); ok {
		return t
	}
	return otel.Tracer("chally")
}

// Init configures the global trace provider to export spans via OTLP/gRPC
// to endpoint, tagged with serviceName. It returns a shutdown func the
// caller must invoke on process exit. If endpoint is empty, tracing is a
// no-op (the global provider's default no-op tracer is left in place).
func Init(ctx context.Context, serviceName, endpoint string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
