package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ProviderConfig describes the process-wide tracer provider.
type ProviderConfig struct {
	ServiceName string
	Version     string
	// SampleRatio is the fraction of root traces recorded, in [0, 1].
	// Incoming sampled parents are always honoured.
	SampleRatio float64
	// Exporters receive finished spans. With none, spans still carry IDs
	// for log correlation but go nowhere.
	Exporters []sdktrace.SpanExporter
}

// Setup installs an SDK tracer provider and the W3C trace-context
// propagator globally. The returned function flushes and shuts it down.
func Setup(cfg ProviderConfig) func(context.Context) error {
	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.Version),
	)

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	for _, exp := range cfg.Exporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))
	return tp.Shutdown
}
