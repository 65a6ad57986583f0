package http

import (
	"net/http"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/engine"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
)

type engineService = engine.Service

type statusHandler struct {
	encoder       encoder
	engineService engineService
	version       string
}

func newStatusHandler(encoder encoder, engineSvc engineService, version string) *statusHandler {
	return &statusHandler{
		encoder:       encoder,
		engineService: engineSvc,
		version:       version,
	}
}

func (h statusHandler) Routes(r chi.Router) {
	r.Get("/", h.handleStatus)
}

type statusResponse struct {
	domain.EngineStatus
	CatalogSyncedAgo string `json:"catalog_synced_ago,omitempty"`
	Version          string `json:"version"`
}

func (h statusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engineService.Status(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	response := statusResponse{
		EngineStatus: *status,
		Version:      h.version,
	}
	if status.CatalogSyncedAt != nil {
		response.CatalogSyncedAgo = humanize.Time(*status.CatalogSyncedAt)
	}

	h.encoder.StatusResponse(r.Context(), w, response, http.StatusOK)
}
