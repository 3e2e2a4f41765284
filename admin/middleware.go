package admin

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Middleware wraps an http.Handler with cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

// Chain composes multiple middleware into a single middleware.
//
// Middleware are applied in the order provided. The first middleware is the
// outermost: it runs first on the request and last on the response.
//
// Example:
//
//	stack := admin.Chain(
//	    admin.Recovery(logger),
//	    admin.RequestID(),
//	    admin.RequestLogger(logger, "readhedge-admin"),
//	)
//	handler := stack(mux)
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Recovery returns middleware that recovers from handler panics.
//
// When a panic occurs:
//   - The panic is recovered and does not reach net/http
//   - The panic value, method, path and stack trace are logged at error level
//   - A 500 response is written in the standard error envelope
//
// Example:
//
//	handler := admin.Recovery(logger)(mux)
func Recovery(logger zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error().
						Interface("panic", rec).
						Str("method", r.Method).
						Str("path", r.URL.Path).
						Str("stack", string(debug.Stack())).
						Msg("panic recovered")

					writeError(w, http.StatusInternalServerError,
						"internal server error",
						Error{Field: "server", Message: "an unexpected error occurred"},
					)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// RequestIDHeader is the header carrying request IDs.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns middleware that forwards or generates request IDs.
//
// Behavior:
//   - If the X-Request-ID header is set, its value is used
//   - Otherwise a new UUID v4 is generated
//   - The ID is echoed in the X-Request-ID response header
//   - The ID is stored in the request context for RequestIDFromContext
//
// Example:
//
//	handler := admin.RequestID()(mux)
//
//	// In a handler:
//	func decide(w http.ResponseWriter, r *http.Request) {
//	    id := admin.RequestIDFromContext(r.Context())
//	    logger.Debug().Str("request_id", id).Msg("deciding")
//	}
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), requestIDKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDFromContext returns the request ID stored by RequestID, or an
// empty string if there is none.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// RequestLogger returns middleware that logs one event per request.
//
// Each event carries the service name, method, path, status, duration,
// response size, remote address and, when present, the request ID. The level
// follows the status:
//   - 5xx responses are logged at error level
//   - 4xx responses are logged at warn level
//   - everything else is logged at info level
//
// Requests to skipPaths (typically health checks and /metrics) are not logged.
//
// Example:
//
//	handler := admin.RequestLogger(logger, "readhedge-admin", "/livez", "/readyz")(mux)
func RequestLogger(logger zerolog.Logger, serviceName string, skipPaths ...string) Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			event := logger.Info()
			switch {
			case rec.status >= 500:
				event = logger.Error()
			case rec.status >= 400:
				event = logger.Warn()
			}

			event.
				Str("service", serviceName).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Int("bytes", rec.bytesWritten).
				Str("remote_addr", r.RemoteAddr)

			if id := RequestIDFromContext(r.Context()); id != "" {
				event.Str("request_id", id)
			}
			event.Msg("request completed")
		})
	}
}

// RateLimit returns middleware that throttles requests with a single token
// bucket shared by every caller.
//
// Requests are admitted while tokens remain; the bucket refills at
// cfg.Limit tokens per second up to cfg.Burst. Rejected requests receive a
// 429 in the standard error envelope and never reach next.
//
// Example:
//
//	limited := admin.RateLimit(admin.RateLimitConfig{
//	    Limit: 50,  // requests per second
//	    Burst: 100, // short spikes
//	})(parametersHandler)
func RateLimit(cfg RateLimitConfig) Middleware {
	limiter := rate.NewLimiter(cfg.Limit, cfg.Burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded",
					Error{Field: "rate_limit", Message: "too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
