package server

import (
	"github.com/fulmenhq/gofulmen/signals"
	"go.uber.org/zap"

	"github.com/ragly/xpanel/internal/observability"
	"github.com/ragly/xpanel/internal/server/handlers"
)

const (
	adminSignalRate  = 10 // requests per minute
	adminSignalBurst = 5
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", handlers.HealthHandler)
	s.router.Get("/health/live", handlers.LivenessHandler)
	s.router.Get("/health/ready", handlers.ReadinessHandler)
	s.router.Get("/health/startup", handlers.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	if s.x != nil {
		s.router.Route("/api/x", s.x.Routes)
	}

	s.registerAdminEndpoint()
}

// registerAdminEndpoint mounts the signals admin endpoint behind the
// configured bearer token. Without a token the route does not exist.
func (s *Server) registerAdminEndpoint() {
	logger := observability.ServerLogger
	if s.cfg.AdminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (server.admin_token not set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.cfg.AdminToken,
		RateLimit: adminSignalRate,
		RateBurst: adminSignalBurst,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.Int("rate_limit_per_min", adminSignalRate),
			zap.Int("burst", adminSignalBurst))
	}
}
