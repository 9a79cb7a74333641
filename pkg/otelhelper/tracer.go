// Package otelhelper provides distributed tracing setup for the journey
// processes.
package otelhelper

import (
	"context"

	"go.opentelemetry.io/otel"
	otlptracehttp "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Common attribute keys.
const (
	WorkflowIDKey      = "journey.workflow.id"
	WorkflowNameKey    = "journey.workflow.name"
	StepIDKey          = "journey.step.id"
	StepTypeKey        = "journey.step.type"
	ExecutionIDKey     = "journey.execution.id"
	StepExecutionIDKey = "journey.step_execution.id"
	ContactIDKey       = "journey.contact.id"
	EventNameKey       = "journey.event.name"
	WorkerIDKey        = "journey.worker.id"
)

// Setup installs the process-wide tracer provider, exporting over OTLP/HTTP.
// The returned function flushes and shuts the provider down.
func Setup(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}))

	return tp.Shutdown, nil
}
