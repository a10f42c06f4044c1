package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-dedup/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	configHandler := handlers.NewConfigHandler(s.config)
	scanHandler := handlers.NewScanHandler(s.config, s.cache, s.jobManager, s.logger)
	matchesHandler := handlers.NewMatchesHandler(s.config, s.cache, s.logger)
	filesHandler := handlers.NewFilesHandler(s.cache, s.logger)
	cacheHandler := handlers.NewCacheHandler(s.cache, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", configHandler.Get)

		// Scans (long-running operations)
		r.Post("/scans", scanHandler.Start)
		r.Get("/scans", scanHandler.List)
		r.Get("/scans/{jobId}", scanHandler.Status)
		r.Get("/scans/{jobId}/events", scanHandler.Events)
		r.Delete("/scans/{jobId}", scanHandler.Cancel)

		// Duplicate groups from cached fingerprints
		r.Get("/matches", matchesHandler.List)

		// Files
		r.Post("/files/check", filesHandler.Check)
		r.Get("/images", filesHandler.Image)

		// Cache maintenance
		r.Get("/cache/stats", cacheHandler.Stats)
		r.Post("/cache/clean", cacheHandler.Clean)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}` + "\n"))
	})
}
