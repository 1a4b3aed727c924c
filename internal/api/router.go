package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/emubot-core/internal/auth"
	"github.com/nerrad567/emubot-core/internal/script"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermCatalogRead))
				r.Get("/step-types", s.handleStepTypes)
				r.Get("/scripts", s.handleListScripts)
				r.Get("/scripts/{name}", s.handleGetScript)
				r.Post("/scripts/validate", s.handleValidateScript)
				r.Get("/bots", s.handleListBots)
				r.Get("/bots/{id}", s.handleGetBot)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermCatalogWrite))
				r.Post("/scripts", s.handleCreateScript)
				r.Put("/scripts/{name}", s.handleUpdateScript)
				r.Delete("/scripts/{name}", s.handleDeleteScript)
				r.Post("/bots", s.handleCreateBot)
				r.Put("/bots/{id}", s.handleUpdateBot)
				r.Delete("/bots/{id}", s.handleDeleteBot)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRunRead))
				r.Get("/runs", s.handleListRuns)
				r.Get("/runs/{id}", s.handleGetRun)
				r.Get("/instances", s.handleListInstances)
				r.Get("/metrics", s.handleMetrics)
				r.Get("/ws", s.handleWebSocket)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermRunControl))
				r.Post("/bots/{id}/start", s.handleStartBot)
				r.Post("/runs/{id}/stop", s.handleStopRun)
			})

			r.Group(func(r chi.Router) {
				r.Use(s.requirePermission(auth.PermAuditRead))
				r.Get("/audit", s.handleListAudit)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	httpStatus := http.StatusOK
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, httpStatus, map[string]any{
		"status":  status,
		"version": s.version,
	})
}

// handleStepTypes lists the step type tags accepted in script documents.
func (s *Server) handleStepTypes(w http.ResponseWriter, _ *http.Request) {
	kinds := script.SupportedStepTypes()
	types := make([]string, len(kinds))
	for i, k := range kinds {
		types[i] = strings.ToLower(string(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"step_types": types, "count": len(types)})
}
