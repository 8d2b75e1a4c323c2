package server

import (
	"net/http"

	"github.com/balduz84/passdoo/internal/metrics"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Front-end channels
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)
	mux.HandleFunc("/api/message", s.app.MessageHandler.HandleMessage)

	// Diagnostics
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/actions", s.handleActions)
	mux.Handle("/metrics", metrics.Handler())

	mux.HandleFunc("/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleActions lists every action the router accepts
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		http.MethodGet: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"actions": s.app.Router.Actions(),
			})
		},
	})
}
