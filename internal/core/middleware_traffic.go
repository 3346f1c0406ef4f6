package core

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/klauspost/compress/gzhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"surfmaster/internal/types"
)

// RateLimitMiddleware limits each client IP to the configured requests per
// minute. Zero disables it. Over-limit requests get the rate_limit_exceeded
// envelope; httprate sets the X-RateLimit-* headers.
func (s *Server) RateLimitMiddleware() func(http.Handler) http.Handler {
	perMinute := 0
	if s.Config != nil {
		perMinute = s.Config.Security.RateLimitPerMinute
	}
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			Error(w, r, types.NewAppError(types.ErrCodeRateLimit, "too many requests, slow down", nil))
		}),
	)
}

// CompressMiddleware gzips responses for clients that accept it.
func CompressMiddleware(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}

// TracingMiddleware opens a server span per request when tracing is enabled.
func (s *Server) TracingMiddleware(next http.Handler) http.Handler {
	if s.Config != nil && !s.Config.Observability.EnableTracing {
		return next
	}
	service := "surfmaster-api"
	if s.Config != nil && s.Config.Service != "" {
		service = s.Config.Service
	}
	return otelhttp.NewHandler(next, service,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
