package http

import (
	"encoding/json"
	"net/http"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/queue"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/go-chi/chi/v5"
)

type queueService = queue.Service

type offlineHandler struct {
	encoder       encoder
	queueService  queueService
	engineService engineService
}

func newOfflineHandler(encoder encoder, queueSvc queueService, engineSvc engineService) *offlineHandler {
	return &offlineHandler{
		encoder:       encoder,
		queueService:  queueSvc,
		engineService: engineSvc,
	}
}

func (h offlineHandler) Routes(r chi.Router) {
	r.Get("/", h.listPending)
	r.Post("/bids", h.enqueueBid)
	r.Post("/bookings", h.enqueueBooking)
	r.Post("/messages", h.enqueueMessage)
	r.Post("/reconcile", h.reconcile)
}

type pendingResponse struct {
	Counts   domain.OfflineCounts    `json:"counts"`
	Bids     []domain.QueuedMutation `json:"bids"`
	Bookings []domain.QueuedMutation `json:"bookings"`
	Messages []domain.QueuedMutation `json:"messages"`
}

func (h offlineHandler) listPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	counts, err := h.queueService.Counts(ctx)
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	response := pendingResponse{Counts: counts}
	if response.Bids, err = h.queueService.Pending(ctx, domain.KindBids); err != nil {
		h.encoder.Error(w, err)
		return
	}
	if response.Bookings, err = h.queueService.Pending(ctx, domain.KindBookings); err != nil {
		h.encoder.Error(w, err)
		return
	}
	if response.Messages, err = h.queueService.Pending(ctx, domain.KindMessages); err != nil {
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusResponse(ctx, w, response, http.StatusOK)
}

type enqueuedResponse struct {
	ClientTempID string `json:"client_temp_id"`
}

func (h offlineHandler) enqueueBid(w http.ResponseWriter, r *http.Request) {
	var bid domain.OfflineBid
	if err := json.NewDecoder(r.Body).Decode(&bid); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	id, err := h.queueService.EnqueueBid(r.Context(), bid)
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusCreatedData(w, enqueuedResponse{ClientTempID: id})
}

func (h offlineHandler) enqueueBooking(w http.ResponseWriter, r *http.Request) {
	var booking domain.OfflineBooking
	if err := json.NewDecoder(r.Body).Decode(&booking); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	id, err := h.queueService.EnqueueBooking(r.Context(), booking)
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusCreatedData(w, enqueuedResponse{ClientTempID: id})
}

func (h offlineHandler) enqueueMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.OfflineMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	id, err := h.queueService.EnqueueMessage(r.Context(), msg)
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusCreatedData(w, enqueuedResponse{ClientTempID: id})
}

func (h offlineHandler) reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	force := r.URL.Query().Get("force") == "true"

	result, err := h.engineService.Reconcile(ctx, force)
	if err != nil {
		var partialErr *domain.PartialUploadError
		var transportErr *domain.TransportError

		switch {
		case errors.Is(err, domain.ErrReconcileRunning):
			h.encoder.StatusResponse(ctx, w, errorResponse{Message: err.Error()}, http.StatusConflict)
		case errors.As(err, &partialErr):
			// The drain ran and committed what it could; rejections are
			// part of the result, not a server failure.
			h.encoder.StatusResponse(ctx, w, result, http.StatusOK)
		case errors.As(err, &transportErr):
			h.encoder.StatusResponse(ctx, w, errorResponse{Message: err.Error()}, http.StatusBadGateway)
		default:
			h.encoder.Error(w, err)
		}
		return
	}

	h.encoder.StatusResponse(ctx, w, result, http.StatusOK)
}
