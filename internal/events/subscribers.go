package events

import (
	"context"

	"github.com/asaskevich/EventBus"
	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/engine"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/rs/zerolog"
)

type Subscriber struct {
	ctx      context.Context
	log      zerolog.Logger
	eventBus EventBus.Bus
	engine   engine.Service
}

// NewSubscribers wires bus topics to engine hooks. ctx is the host's
// lifetime context; cancelling it aborts any drain a connectivity event
// started.
func NewSubscribers(ctx context.Context, log logger.Logger, eventBus EventBus.Bus, engineSvc engine.Service) Subscriber {
	s := Subscriber{
		ctx:      ctx,
		log:      log.With().Str("module", "events").Logger(),
		eventBus: eventBus,
		engine:   engineSvc,
	}

	s.Register()

	return s
}

func (s Subscriber) Register() {
	// Async so publishers are never stuck behind a drain; the hook can run
	// for as long as the remote timeouts allow.
	if err := s.eventBus.SubscribeAsync("events:connectivity", s.handleConnectivity, false); err != nil {
		s.log.Error().Err(err).Msg("Failed to subscribe to connectivity events")
	}
}

func (s Subscriber) handleConnectivity(event *domain.ConnectivityEvent) {
	if event == nil {
		return
	}
	if !event.Online {
		s.log.Debug().Msg("Connectivity lost, engine stays passive")
		return
	}

	s.engine.OnConnectivityRestored(s.ctx)
}
