// Package tracing provides OpenTelemetry tracing integration.
//
// Spans are created through the global tracer; the exporter is chosen by the
// binary that installs a TracerProvider. Without one, spans are no-ops.
//
//   - Middleware traces incoming HTTP requests and propagates W3C trace context
//   - GetTracer is used by the matching orchestrator for pass and story spans
//
// Example usage:
//
//	import "storyline/internal/observability/tracing"
//
//	func runPass(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "matching.pass")
//	    defer span.End()
//	    // ... process stories ...
//	}
package tracing
