package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/server/handlers"
	servermw "github.com/minisuite/minisuite/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.opts.Auth != nil && s.opts.Users != nil {
		s.router.Route("/api", s.registerAPI)
	} else if observability.ServerLogger != nil {
		observability.ServerLogger.Warn("API routes disabled: auth service or user store not configured")
	}

	s.registerAdminEndpoint()
}

func (s *Server) registerAPI(api chi.Router) {
	authHandler := &handlers.AuthHandler{Service: s.opts.Auth, Users: s.opts.Users}
	adminHandler := &handlers.AdminHandler{
		Users:   s.opts.Users,
		Buckets: s.opts.Inspector,
		Backend: s.opts.Backend,
	}
	authenticate := servermw.Authenticate(s.opts.Auth.Tokens())

	api.Route("/auth", func(r chi.Router) {
		r.With(servermw.Body[handlers.RegisterRequest]()).
			Post("/register", handlers.Handle(authHandler.Register))
		r.With(servermw.Body[handlers.LoginRequest]()).
			Post("/login", handlers.Handle(authHandler.Login))
		r.With(authenticate).
			Get("/me", handlers.Handle(authHandler.Me))
	})

	api.Route("/admin", func(r chi.Router) {
		r.Use(authenticate, servermw.RequireRole(core.RoleAdmin))
		r.With(servermw.Query[handlers.ListUsersQuery]()).
			Get("/users", handlers.Handle(adminHandler.ListUsers))
		r.With(servermw.Query[handlers.RateLimitQuery]()).
			Get("/rate-limits", handlers.Handle(adminHandler.ListRateLimits))
	})
}

// registerAdminEndpoint exposes signal delivery when an admin token is configured.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger

	if s.opts.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no admin token configured)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.opts.AdminToken,
		RateLimit: 10,
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
