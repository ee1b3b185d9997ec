package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"epipulse/internal/infrastructure"
)

// HTTPMetrics records request count and duration on the OTel meter,
// exported through the Prometheus endpoint.
func HTTPMetrics(telemetry *infrastructure.Telemetry, logger *slog.Logger) func(next http.Handler) http.Handler {
	if telemetry == nil || telemetry.Meter == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	requests, err := telemetry.Meter.Int64Counter("http_requests_total",
		metric.WithDescription("Total HTTP requests"))
	if err != nil {
		logger.Warn("failed to create request counter", "error", err.Error())
		return func(next http.Handler) http.Handler { return next }
	}

	duration, err := telemetry.Meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"))
	if err != nil {
		logger.Warn("failed to create duration histogram", "error", err.Error())
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := metric.WithAttributes(
				attribute.String("method", r.Method),
				attribute.String("path", r.URL.Path),
				attribute.Int("status", ww.Status()),
			)
			requests.Add(r.Context(), 1, attrs)
			duration.Record(r.Context(), time.Since(start).Seconds(), attrs)
		})
	}
}
