// Package core provides the API chassis for the CreditGate webhook service.
// It creates a chi router served by standard HTTP and enforces cross-cutting
// concerns -- recovery, request correlation, logging, CORS -- before requests
// reach the webhook handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"creditgate/internal/config"
)

// Server encapsulates the HTTP surface dependencies, allowing injection
// during testing and distinct configuration for different environments.
type Server struct {
	Config *config.Config
	Logger *slog.Logger

	// HealthProbes are checked concurrently by GET /health.
	HealthProbes []HealthProbe

	// RouteRegistrars mount domain handler routes. Populated by the
	// application entry point; the indirection avoids an import cycle
	// between core and the handler packages.
	RouteRegistrars []func(chi.Router)

	// ShutdownHooks release server-held resources (the pgx pool) during
	// graceful termination, in registration order.
	ShutdownHooks []func(context.Context) error

	router *chi.Mux
}

// NewServer prepares the server for route mounting. The caller mounts routes
// via MountRoutes after registering its handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
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

// Shutdown performs a graceful termination of server-held resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, hook := range s.ShutdownHooks {
		if err := hook(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.Logger.Info("server shutdown complete")
	return firstErr
}
