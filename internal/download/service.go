package download

import (
	"context"
	"time"

	"github.com/caravel-app/caravel/internal/cache"
	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const defaultQuickLimit = 20

// Service performs remote downloads and writes successful results through to
// the cache. A failed download never touches the cache: the previous
// snapshot stays intact so offline reads keep working.
//
// Concurrent downloads of the same resource are collapsed into one network
// call via singleflight; every waiter receives the same snapshot.
type Service interface {
	DownloadProfile(ctx context.Context) (*domain.CachedProfile, error)
	DownloadCatalog(ctx context.Context, req domain.DownloadRequest) (*domain.CachedCatalog, error)
}

type service struct {
	log    zerolog.Logger
	cfg    domain.SyncConfig
	remote domain.RemoteGateway
	cache  cache.Service
	sf     singleflight.Group
}

func NewService(log logger.Logger, cfg domain.SyncConfig, remote domain.RemoteGateway, cacheSvc cache.Service) Service {
	return &service{
		log:    log.With().Str("module", "download").Logger(),
		cfg:    cfg,
		remote: remote,
		cache:  cacheSvc,
	}
}

func (s *service) DownloadProfile(ctx context.Context) (*domain.CachedProfile, error) {
	result, err, shared := s.sf.Do("profile", func() (interface{}, error) {
		profile, err := s.remote.FetchProfile(ctx)
		if err != nil {
			return nil, err
		}

		fetchedAt := time.Now()
		if err := s.cache.StoreProfile(ctx, *profile, fetchedAt); err != nil {
			return nil, err
		}

		return &domain.CachedProfile{Profile: *profile, FetchedAt: fetchedAt}, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Profile download failed, cached snapshot untouched")
		return nil, err
	}
	if shared {
		s.log.Debug().Msg("Profile download shared with concurrent caller")
	}

	return result.(*domain.CachedProfile), nil
}

func (s *service) DownloadCatalog(ctx context.Context, req domain.DownloadRequest) (*domain.CachedCatalog, error) {
	req = s.resolve(req)

	result, err, shared := s.sf.Do("catalog", func() (interface{}, error) {
		items, err := s.remote.FetchCatalog(ctx, req)
		if err != nil {
			return nil, err
		}

		fetchedAt := time.Now()
		if err := s.cache.StoreCatalog(ctx, items, req.Strategy, fetchedAt); err != nil {
			return nil, err
		}

		return &domain.CachedCatalog{
			Items: items,
			Meta: domain.SyncMetadata{
				FetchedAt: fetchedAt,
				Strategy:  req.Strategy,
				ItemCount: len(items),
			},
		}, nil
	})
	if err != nil {
		s.log.Warn().Err(err).Str("strategy", string(req.Strategy)).Msg("Catalog download failed, cached snapshot untouched")
		return nil, err
	}
	if shared {
		s.log.Debug().Str("strategy", string(req.Strategy)).Msg("Catalog download shared with concurrent caller")
	}

	return result.(*domain.CachedCatalog), nil
}

// resolve fills in defaults the caller left open. A quick download without
// an explicit page size uses the configured one.
func (s *service) resolve(req domain.DownloadRequest) domain.DownloadRequest {
	if req.Strategy == "" {
		req.Strategy = domain.StrategyQuick
	}
	if req.Strategy == domain.StrategyQuick && req.Limit <= 0 {
		req.Limit = s.cfg.QuickLimit
		if req.Limit <= 0 {
			req.Limit = defaultQuickLimit
		}
	}
	return req
}
