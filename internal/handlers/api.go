package handlers

import (
	"net/http"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/balduz84/passdoo/internal/services/auth"
	"github.com/ternarybob/arbor"
)

// StateSource reports the session lifecycle state
type StateSource interface {
	State() auth.State
}

type APIHandler struct {
	state  StateSource
	logger arbor.ILogger
}

func NewAPIHandler(state StateSource, logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		state:  state,
		logger: logger,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, common.GetVersionInfo())
}

// HealthHandler reports liveness and the current session state
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	state := h.state.State()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "ok",
		"state":         state,
		"authenticated": state.Authenticated(),
		"goroutines":    common.GetGoroutineCount(),
	})
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": "Not Found",
		"path":  r.URL.Path,
	})
}
