package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type loggerKey struct{}

// recoverer stops a panic in a handler from crashing the process and
// responds 500 instead.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("panic recovered", slog.Any("recover", rec))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestID injects a request id and a request-scoped logger into the
// context.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		logger := slog.Default().With(slog.String("request_id", reqID))
		ctx := context.WithValue(r.Context(), loggerKey{}, logger)
		w.Header().Set("X-Request-Id", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggerFrom extracts the request-scoped logger, falling back to the
// default logger outside a request.
func loggerFrom(r *http.Request) *slog.Logger {
	if v := r.Context().Value(loggerKey{}); v != nil {
		if lg, ok := v.(*slog.Logger); ok {
			return lg
		}
	}
	return slog.Default()
}

// timeoutMiddleware adds a deadline to the request context, matching the
// per-request deadline enforced again inside service.RateLimiter.Check.
func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, http.StatusText(http.StatusGatewayTimeout))
	}
}

// accessLog logs one line per request, leveled by status code.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start)

		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}

		lg := loggerFrom(r)
		status := ww.Status()
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", dur),
		}
		switch {
		case status >= 500:
			lg.LogAttrs(r.Context(), slog.LevelError, "http_access", attrs...)
		case status >= 400:
			lg.LogAttrs(r.Context(), slog.LevelWarn, "http_access", attrs...)
		default:
			lg.LogAttrs(r.Context(), slog.LevelInfo, "http_access", attrs...)
		}
	})
}
