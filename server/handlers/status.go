package handlers

import (
	"net/http"

	"github.com/nomis52/countbridge/bridge"
	"github.com/nomis52/countbridge/buildinfo"
)

// StatusResponse is the response for GET /api/status.
type StatusResponse struct {
	bridge.Status
	Build buildinfo.Properties `json:"build"`
}

// StatusHandler reports the bridge state as JSON.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new StatusHandler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// ServeHTTP implements http.Handler.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status: h.provider.Status(),
		Build:  buildinfo.Get(),
	})
}
