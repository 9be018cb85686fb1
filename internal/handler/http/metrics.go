package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storyline/internal/handler/http/pathutil"
	"storyline/internal/handler/http/responsewriter"
	"storyline/internal/observability/metrics"
)

var httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "http_requests_in_flight",
	Help: "Current number of HTTP requests being served",
})

// MetricsMiddleware records request count, latency and response size per
// method, route template and status.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		path := pathutil.NormalizePath(r.URL.Path)
		wrapped := responsewriter.Wrap(w)

		start := time.Now()
		next.ServeHTTP(wrapped, r)

		metrics.RecordHTTPRequest(r.Method, path, strconv.Itoa(wrapped.StatusCode()),
			time.Since(start), wrapped.BytesWritten())
	})
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
