package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// RouteRegistrar mounts a domain handler's routes onto a router group.
// Handlers register themselves via this indirection to avoid import cycles
// between core and the handler packages.
type RouteRegistrar func(chi.Router)

// MountRoutes wires the global middleware chain and the route groups.
//
// Middleware order matters: Recoverer outermost, then timeout, request id,
// security headers, logging, CORS, metrics. Auth applies only inside the
// authenticated /v1 group; webhook routes verify their own signatures.
func (s *Server) MountRoutes(authenticated []RouteRegistrar, public []RouteRegistrar) {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware([]string{s.Config.Server.AppURL}))
	s.router.Use(s.MetricsMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		r.Use(s.AuthMiddleware)
		for _, register := range authenticated {
			register(r)
		}
	})

	for _, register := range public {
		register(s.router)
	}

	s.router.Get("/health", s.HandleHealth)
}
