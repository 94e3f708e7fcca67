// Package httpapi implements the HTTP transport surface (C6): POST
// /check and the two health endpoints, both wired to the same
// service.RateLimiter the binary RPC surface uses.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Server holds the dependencies shared by every HTTP handler.
type Server struct {
	limiter   RateLimiter
	startedAt time.Time
}

// NewServer constructs a Server around a RateLimiter.
func NewServer(limiter RateLimiter) *Server {
	return &Server{limiter: limiter, startedAt: time.Now()}
}

// Router builds the chi router: middleware stack, CORS, and routes.
func (s *Server) Router(requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(timeoutMiddleware(requestTimeout))
	r.Use(accessLog)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Post("/check", s.handleCheck)
	r.Get("/health", s.handleHealth)
	r.Get("/health/live", s.handleHealthLive)

	return r
}
