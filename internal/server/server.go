package server

import (
	"context"
	"sync"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/engine"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/internal/scheduler"
	"github.com/rs/zerolog"
)

type Server struct {
	log    zerolog.Logger
	config *domain.Config

	scheduler     scheduler.Service
	engineService engine.Service

	stopWG sync.WaitGroup
	lock   sync.Mutex
}

func NewServer(log logger.Logger, config *domain.Config, scheduler scheduler.Service, engineSvc engine.Service) *Server {
	return &Server{
		log:           log.With().Str("module", "server").Logger(),
		config:        config,
		scheduler:     scheduler,
		engineService: engineSvc,
	}
}

func (s *Server) Start() error {
	go s.startupSync()

	// start cron scheduler
	s.scheduler.Start()

	return nil
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("Shutting down server")

	// stop cron scheduler
	s.scheduler.Stop()
}

// startupSync runs one drain-then-refresh pass shortly after boot so a
// device that queued work while powered off catches up without waiting for
// the first cron tick.
func (s *Server) startupSync() {
	if s.config.Sync.SyncOnStartup {
		time.Sleep(1 * time.Second)

		s.engineService.OnConnectivityRestored(context.Background())
	}
}
