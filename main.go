package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/asaskevich/EventBus"
	"github.com/caravel-app/caravel/internal/cache"
	"github.com/caravel-app/caravel/internal/config"
	"github.com/caravel-app/caravel/internal/database"
	"github.com/caravel-app/caravel/internal/download"
	"github.com/caravel-app/caravel/internal/engine"
	"github.com/caravel-app/caravel/internal/events"
	"github.com/caravel-app/caravel/internal/http"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/internal/queue"
	"github.com/caravel-app/caravel/internal/reconcile"
	"github.com/caravel-app/caravel/internal/remote"
	"github.com/caravel-app/caravel/internal/scheduler"
	"github.com/caravel-app/caravel/internal/server"
	"github.com/caravel-app/caravel/internal/staleness"
	"github.com/r3labs/sse/v2"
	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	var configPath string
	pflag.StringVar(&configPath, "config", "", "path to configuration file")
	pflag.Parse()

	// read config
	cfg := config.New(configPath, version)

	// init new logger
	log := logger.New(cfg.Config)

	// init dynamic config
	cfg.DynamicReload(log)

	// setup server-sent-events
	serverEvents := sse.New()
	serverEvents.CreateStreamWithOpts("logs", sse.StreamOpts{MaxEntries: 1000, AutoReplay: true})

	// register SSE writer
	log.RegisterSSEWriter(serverEvents)

	// setup internal eventbus
	bus := EventBus.New()

	// open database connection
	db, err := database.NewDB(cfg.Config, log)
	if err != nil {
		log.Fatal().Err(err).Msg("could not create new db")
	}

	if err := db.Open(); err != nil {
		log.Fatal().Err(err).Msg("could not open db connection")
	}

	log.Info().Msgf("Starting Caravel")
	log.Info().Msgf("Version: %s", version)
	log.Info().Msgf("Commit: %s", commit)
	log.Info().Msgf("Build date: %s", date)
	log.Info().Msgf("Log-level: %s", cfg.Config.Logging.Level)
	log.Info().Msgf("Using database: %s", db.Driver)

	// setup repos
	storeRepo := database.NewStoreRepo(log, db)

	// setup services
	var (
		queueService     = queue.NewService(log, storeRepo)
		cacheService     = cache.NewService(log, storeRepo)
		remoteClient     = remote.NewClient(log, cfg.Config.Remote)
		downloadService  = download.NewService(log, cfg.Config.Sync, remoteClient, cacheService)
		reconcileService = reconcile.NewService(log, cfg.Config.Sync, queueService, remoteClient)
		stalenessPolicy  = staleness.NewPolicy(cfg.Config.Sync.StalenessThreshold())
		engineService    = engine.NewService(log, storeRepo, queueService, cacheService, downloadService, reconcileService, stalenessPolicy)
		schedulerService = scheduler.NewService(log, cfg.Config, engineService)
	)

	// register event subscribers; cancelling ctx aborts in-flight
	// connectivity-triggered drains on shutdown
	ctx, cancel := context.WithCancel(context.Background())
	events.NewSubscribers(ctx, log, bus, engineService)

	errorChannel := make(chan error)

	go func() {
		httpServer := http.NewServer(
			log,
			cfg,
			serverEvents,
			db,
			bus,
			version,
			commit,
			date,
			engineService,
			queueService,
			cacheService,
			downloadService,
		)
		errorChannel <- httpServer.Open()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)

	srv := server.NewServer(log, cfg.Config, schedulerService, engineService)
	if err := srv.Start(); err != nil {
		log.Fatal().Stack().Err(err).Msg("could not start server")
		return
	}

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			log.Log().Msg("shutting down server sighup")
			cancel()
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(1)
		case syscall.SIGINT, syscall.SIGQUIT:
			log.Info().Msg("Shutting down server due to SIGINT/SIGQUIT...")
			cancel()
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(0)
		case syscall.SIGTERM:
			log.Info().Msg("Shutting down server due to SIGTERM...")
			cancel()
			srv.Shutdown()
			if err := db.Close(); err != nil {
				log.Error().Stack().Err(err).Msg("could not close db connection")
			}
			os.Exit(0)
		}
	}
}
