package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ramonehamilton/matchup-companion/internal/api/handlers"
	"github.com/ramonehamilton/matchup-companion/internal/api/response"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.healthCheck)
	s.router.Get("/ws", s.wsHub.ServeWs)

	s.router.Route("/api/v1", func(r chi.Router) {
		if s.snapshots != nil {
			snapshotHandler := handlers.NewSnapshotHandler(s.snapshots, s.metrics, s.wsHub, s.logger)
			r.Route("/snapshots", func(r chi.Router) {
				r.Get("/", snapshotHandler.ListSnapshots)
				r.Get("/{clientID}", snapshotHandler.GetSnapshot)
				r.Put("/{clientID}", snapshotHandler.PutSnapshot)
			})
			r.Get("/metrics", snapshotHandler.GetMetrics)
		}

		if s.advisor != nil {
			matchupHandler := handlers.NewMatchupHandler(s.advisor)
			r.Post("/score", matchupHandler.Score)
			r.Post("/outcomes", matchupHandler.RecordOutcome)
			r.Post("/observations", matchupHandler.ObserveStats)
			r.Post("/refresh", matchupHandler.Refresh)
			r.Get("/status", matchupHandler.GetStatus)
		}
	})
}

// healthCheck returns server health status.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		if err := s.ping(r.Context()); err != nil {
			response.ServiceUnavailable(w, err)
			return
		}
	}
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": s.service,
	})
}
