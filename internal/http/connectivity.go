package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/caravel-app/caravel/internal/domain"
	"github.com/go-chi/chi/v5"
)

// connectivityHandler lets the device shell announce network changes. The
// event goes onto the internal bus; the engine reacts asynchronously so this
// endpoint returns immediately.
type connectivityHandler struct {
	encoder  encoder
	eventBus EventBus.Bus
}

func newConnectivityHandler(encoder encoder, eventBus EventBus.Bus) *connectivityHandler {
	return &connectivityHandler{
		encoder:  encoder,
		eventBus: eventBus,
	}
}

func (h connectivityHandler) Routes(r chi.Router) {
	r.Post("/", h.handleConnectivity)
}

type connectivityRequest struct {
	Online bool `json:"online"`
}

func (h connectivityHandler) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	var body connectivityRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.encoder.StatusResponse(r.Context(), w, errorResponse{Message: err.Error()}, http.StatusBadRequest)
		return
	}

	h.eventBus.Publish("events:connectivity", &domain.ConnectivityEvent{
		Online: body.Online,
		At:     time.Now(),
	})

	h.encoder.NoContent(w)
}
