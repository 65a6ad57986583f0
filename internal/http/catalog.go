package http

import (
	"encoding/json"
	"net/http"

	"github.com/caravel-app/caravel/internal/cache"
	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/download"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/go-chi/chi/v5"
)

type cacheService = cache.Service
type downloadService = download.Service

// catalogHandler serves the cached snapshots and triggers downloads. Reads
// never touch the network; downloads always do.
type catalogHandler struct {
	encoder         encoder
	cacheService    cacheService
	downloadService downloadService
	engineService   engineService
}

func newCatalogHandler(encoder encoder, cacheSvc cacheService, downloadSvc downloadService, engineSvc engineService) *catalogHandler {
	return &catalogHandler{
		encoder:         encoder,
		cacheService:    cacheSvc,
		downloadService: downloadSvc,
		engineService:   engineSvc,
	}
}

func (h catalogHandler) Routes(r chi.Router) {
	r.Get("/catalog", h.getCatalog)
	r.Post("/catalog/download", h.downloadCatalog)
	r.Post("/catalog/refresh", h.refreshCatalog)
	r.Get("/profile", h.getProfile)
	r.Post("/profile/download", h.downloadProfile)
}

func (h catalogHandler) getCatalog(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.cacheService.Catalog(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	if snapshot == nil {
		h.encoder.StatusNotFound(r.Context(), w)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, snapshot, http.StatusOK)
}

func (h catalogHandler) getProfile(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.cacheService.Profile(r.Context())
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	if snapshot == nil {
		h.encoder.StatusNotFound(r.Context(), w)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, snapshot, http.StatusOK)
}

type downloadCatalogRequest struct {
	Strategy domain.DownloadStrategy `json:"strategy"`
	Limit    int                     `json:"limit,omitempty"`
	Category string                  `json:"category,omitempty"`
	Location string                  `json:"location,omitempty"`
	Filter   *domain.CatalogFilter   `json:"filter,omitempty"`
}

func (h catalogHandler) downloadCatalog(w http.ResponseWriter, r *http.Request) {
	var body downloadCatalogRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	snapshot, err := h.downloadService.DownloadCatalog(r.Context(), domain.DownloadRequest{
		Strategy: body.Strategy,
		Limit:    body.Limit,
		Category: body.Category,
		Location: body.Location,
		Filter:   body.Filter,
	})
	if err != nil {
		h.writeDownloadError(w, r, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, snapshot, http.StatusOK)
}

func (h catalogHandler) downloadProfile(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.downloadService.DownloadProfile(r.Context())
	if err != nil {
		h.writeDownloadError(w, r, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, snapshot, http.StatusOK)
}

type refreshResponse struct {
	Refreshed bool `json:"refreshed"`
}

func (h catalogHandler) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	refreshed, err := h.engineService.RefreshIfStale(r.Context())
	if err != nil {
		h.writeDownloadError(w, r, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, refreshResponse{Refreshed: refreshed}, http.StatusOK)
}

func (h catalogHandler) writeDownloadError(w http.ResponseWriter, r *http.Request, err error) {
	var transportErr *domain.TransportError
	if errors.As(err, &transportErr) {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadGateway)
		return
	}
	h.encoder.Error(w, err)
}
