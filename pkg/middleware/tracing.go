package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/geocoder/pkg/tracing"
)

// Tracing opens a root span for a sampled fraction of requests, keyed by
// the request id, and logs the finished span tree. Must run inside
// RequestID.
func Tracing(sampleRate float64) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "tracing")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !tracing.Sampled(sampleRate) {
				next.ServeHTTP(w, r)
				return
			}
			ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), GetRequestID(r.Context()))
			next.ServeHTTP(w, r.WithContext(ctx))
			span.End()
			span.Log(logger)
		})
	}
}
