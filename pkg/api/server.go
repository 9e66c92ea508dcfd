package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/gatehouse-sso/gatehouse/pkg/config"
	"github.com/gatehouse-sso/gatehouse/pkg/httputil"
	"github.com/gatehouse-sso/gatehouse/pkg/middleware"
	"github.com/gatehouse-sso/gatehouse/pkg/observability"
)

// Server is the SSO HTTP server: the SSO API surface plus the enforcement
// middleware wrapped around everything else.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	logger     *observability.Logger
}

// NewServer wires the router. The enforcer may be nil when the process
// serves only the SSO API and protects nothing itself.
func NewServer(cfg *config.Config, handlers *SSOHandlers, enforcer *middleware.Enforcer,
	logger *observability.Logger) *Server {
	router := mux.NewRouter()

	router.Use(httputil.RequestIDMiddleware)
	router.Use(httputil.LoggingMiddleware)
	router.Use(httputil.RecoveryMiddleware)
	if enforcer != nil {
		router.Use(enforcer.Handler)
	}

	handlers.RegisterRoutes(router)

	return &Server{
		router: router,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		logger: logger,
	}
}

// Router exposes the router so callers can mount application handlers
// behind the enforcement chain.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start serves until the listener closes
func (s *Server) Start() error {
	if s.logger != nil {
		s.logger.WithField("addr", s.httpServer.Addr).Info("sso server listening")
	}
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
