package engine

import (
	"context"
	"time"

	"github.com/caravel-app/caravel/internal/cache"
	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/download"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/internal/queue"
	"github.com/caravel-app/caravel/internal/reconcile"
	"github.com/caravel-app/caravel/internal/staleness"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/rs/zerolog"
)

// Service is the engine facade the diagnostics API, scheduler, and event
// subscribers talk to. It owns no state of its own; everything it reports is
// computed from the store-backed components on demand.
type Service interface {
	// Reconcile drains the outbound queue once.
	Reconcile(ctx context.Context, force bool) (*domain.ReconcileResult, error)

	// RefreshIfStale re-downloads the catalog when the cached snapshot is
	// older than the staleness threshold. Returns whether a download ran.
	RefreshIfStale(ctx context.Context) (bool, error)

	// OnConnectivityRestored runs the regained-connectivity sequence:
	// drain first, then refresh stale caches.
	OnConnectivityRestored(ctx context.Context)

	// Status summarizes pending data, storage health, and cache freshness.
	Status(ctx context.Context) (*domain.EngineStatus, error)
}

type service struct {
	log       zerolog.Logger
	store     domain.LocalStore
	queue     queue.Service
	cache     cache.Service
	download  download.Service
	reconcile reconcile.Service
	policy    *staleness.Policy
}

func NewService(
	log logger.Logger,
	store domain.LocalStore,
	queueSvc queue.Service,
	cacheSvc cache.Service,
	downloadSvc download.Service,
	reconcileSvc reconcile.Service,
	policy *staleness.Policy,
) Service {
	return &service{
		log:       log.With().Str("module", "engine").Logger(),
		store:     store,
		queue:     queueSvc,
		cache:     cacheSvc,
		download:  downloadSvc,
		reconcile: reconcileSvc,
		policy:    policy,
	}
}

func (s *service) Reconcile(ctx context.Context, force bool) (*domain.ReconcileResult, error) {
	return s.reconcile.Reconcile(ctx, force)
}

func (s *service) RefreshIfStale(ctx context.Context) (bool, error) {
	snapshot, err := s.cache.Catalog(ctx)
	if err != nil {
		return false, err
	}

	var meta *domain.SyncMetadata
	if snapshot != nil {
		meta = &snapshot.Meta
	}

	if !s.policy.IsStale(meta, time.Now()) {
		s.log.Debug().Msg("Catalog snapshot is fresh, skipping refresh")
		return false, nil
	}

	// Parameterized snapshots cannot be rebuilt from their metadata, so a
	// staleness refresh always fetches the quick page.
	if _, err := s.download.DownloadCatalog(ctx, domain.QuickDownload()); err != nil {
		return false, err
	}

	s.log.Info().Msg("Stale catalog snapshot refreshed")
	return true, nil
}

// OnConnectivityRestored drains before refreshing so the server sees pending
// mutations before the device pulls fresh reads. Failures are logged, not
// propagated: connectivity events are best-effort triggers and the scheduler
// retries on its own cadence.
func (s *service) OnConnectivityRestored(ctx context.Context) {
	s.log.Info().Msg("Connectivity restored, starting drain and refresh")

	result, err := s.reconcile.Reconcile(ctx, false)
	switch {
	case errors.Is(err, domain.ErrReconcileRunning):
		s.log.Debug().Msg("Drain already in flight, skipping")
	case err != nil:
		var partialErr *domain.PartialUploadError
		if errors.As(err, &partialErr) {
			s.log.Warn().Int("rejected", len(partialErr.Errors)).Msg("Drain finished with rejected items")
		} else {
			s.log.Error().Err(err).Msg("Drain failed")
		}
	case result != nil && !result.NoOp:
		s.log.Info().Int("processed", result.Processed.Total()).Msg("Drain completed")
	}

	if _, err := s.RefreshIfStale(ctx); err != nil {
		s.log.Error().Err(err).Msg("Post-connectivity refresh failed")
	}
}

func (s *service) Status(ctx context.Context) (*domain.EngineStatus, error) {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return nil, err
	}

	held, err := s.reconcile.HeldForReview(ctx)
	if err != nil {
		return nil, err
	}

	status := &domain.EngineStatus{
		OfflineCounts:  counts,
		HasPendingData: counts.Total() > 0,
		StorageHealthy: s.store.HealthCheck(ctx),
		HeldForReview:  held,
	}

	snapshot, err := s.cache.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		fetchedAt := snapshot.Meta.FetchedAt
		status.CatalogSyncedAt = &fetchedAt
		status.CatalogStale = s.policy.IsStale(&snapshot.Meta, time.Now())
	} else {
		status.CatalogStale = true
	}

	return status, nil
}
