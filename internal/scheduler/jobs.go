package scheduler

import (
	"context"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/engine"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/rs/zerolog"
)

// CatalogRefreshJob periodically re-downloads the catalog when the cached
// snapshot has gone stale. The staleness gate lives in the engine, so a run
// against a fresh cache costs nothing.
type CatalogRefreshJob struct {
	Name   string
	Log    zerolog.Logger
	Engine engine.Service
}

func (j *CatalogRefreshJob) Run() {
	ctx := context.Background()

	refreshed, err := j.Engine.RefreshIfStale(ctx)
	if err != nil {
		// Expected while offline; the next tick tries again.
		j.Log.Warn().Err(err).Msg("Catalog refresh failed")
		return
	}

	if refreshed {
		j.Log.Info().Msg("Catalog refreshed")
	} else {
		j.Log.Debug().Msg("Catalog still fresh, nothing to do")
	}
}

// ReconcileJob periodically drains the outbound queue. Most runs are no-ops;
// the job exists so pending mutations do not wait for an explicit
// connectivity event to reach the server.
type ReconcileJob struct {
	Name   string
	Log    zerolog.Logger
	Engine engine.Service
}

func (j *ReconcileJob) Run() {
	ctx := context.Background()

	result, err := j.Engine.Reconcile(ctx, false)
	if err != nil {
		if errors.Is(err, domain.ErrReconcileRunning) {
			j.Log.Debug().Msg("Drain already in flight, skipping tick")
			return
		}

		var partialErr *domain.PartialUploadError
		if errors.As(err, &partialErr) {
			j.Log.Warn().Int("rejected", len(partialErr.Errors)).Msg("Drain finished with rejected items")
			return
		}

		j.Log.Warn().Err(err).Msg("Drain failed")
		return
	}

	if result != nil && !result.NoOp {
		j.Log.Info().
			Int("processed", result.Processed.Total()).
			Int("retained", result.Retained.Total()).
			Msg("Drain completed")
	}
}
