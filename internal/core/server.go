// Package core provides the API chassis for the PomoLink platform: a chi
// router with the cross-cutting concerns (recovery, request ids, security
// headers, logging, CORS, metrics, auth) applied before requests reach domain
// handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pomolink/internal/config"
	"pomolink/internal/types"
)

// Authenticator resolves a bearer token to the acting user. Decoupling the
// HTTP layer from the JWKS machinery keeps the middleware mockable.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*types.Actor, error)
}

// Server bundles the chassis dependencies, allowing injection during testing
// and distinct configuration per environment.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       types.MetricsCollector
	Authenticator Authenticator
	HealthProbes  []HealthProbe

	router *chi.Mux
}

// NewServer initializes the chassis and prepares the router for route
// mounting. Routes are mounted separately so tests can customize
// registration.
func NewServer(cfg *config.Config, auth Authenticator, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:        cfg,
		Logger:        logger,
		Validator:     NewValidator(logger),
		Authenticator: auth,
		router:        chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}
