package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"storyline/internal/handler/http/responsewriter"
)

// InstrumentationName identifies spans created by this application.
const InstrumentationName = "storyline"

const requestIDHeader = "X-Request-ID"

// GetTracer returns a tracer from the global provider. It is resolved on
// every call so a provider installed later, or swapped in tests, applies.
func GetTracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Middleware starts a server span per request, continuing any W3C parent
// found in the headers. The span is renamed to the ServeMux pattern once the
// request is routed, so /stories/1 and /stories/2 share one span name.
// The trace ID is echoed as X-Trace-Id; 5xx responses mark the span failed.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := GetTracer().Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
			))
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			w.Header().Set("X-Trace-Id", sc.TraceID().String())
		}
		if id := w.Header().Get(requestIDHeader); id != "" {
			span.SetAttributes(attribute.String("http.request_id", id))
		}

		rw := responsewriter.Wrap(w)
		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		if r.Pattern != "" {
			span.SetName(r.Pattern)
			span.SetAttributes(attribute.String("http.route", r.Pattern))
		}
		status := rw.StatusCode()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}
