package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/rs/zerolog"
)

// snapshotKey is the single key each cache namespace uses. A download
// replaces the whole snapshot; there is never more than one per namespace.
const snapshotKey = "snapshot"

// Service holds the typed read-side caches: the profile and catalog
// snapshots the UI reads while offline. Each write replaces the previous
// snapshot wholesale, so a reader sees either the old snapshot or the new
// one, never a blend.
type Service interface {
	StoreProfile(ctx context.Context, profile domain.Profile, fetchedAt time.Time) error
	Profile(ctx context.Context) (*domain.CachedProfile, error)
	StoreCatalog(ctx context.Context, items []domain.ServiceItem, strategy domain.DownloadStrategy, fetchedAt time.Time) error
	Catalog(ctx context.Context) (*domain.CachedCatalog, error)
	Clear(ctx context.Context) error
}

type service struct {
	log   zerolog.Logger
	store domain.LocalStore
}

func NewService(log logger.Logger, store domain.LocalStore) Service {
	return &service{
		log:   log.With().Str("module", "cache").Logger(),
		store: store,
	}
}

func (s *service) StoreProfile(ctx context.Context, profile domain.Profile, fetchedAt time.Time) error {
	snapshot := domain.CachedProfile{
		Profile:   profile,
		FetchedAt: fetchedAt,
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode profile snapshot")
	}

	if err := s.store.Put(ctx, domain.NamespaceProfile, snapshotKey, data); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist profile snapshot")
		return err
	}

	s.log.Debug().Str("user", profile.Username).Msg("Profile snapshot stored")
	return nil
}

// Profile returns the cached profile snapshot, or nil when none has been
// downloaded yet.
func (s *service) Profile(ctx context.Context) (*domain.CachedProfile, error) {
	data, err := s.store.Get(ctx, domain.NamespaceProfile, snapshotKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var snapshot domain.CachedProfile
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to decode profile snapshot")
	}

	return &snapshot, nil
}

func (s *service) StoreCatalog(ctx context.Context, items []domain.ServiceItem, strategy domain.DownloadStrategy, fetchedAt time.Time) error {
	snapshot := domain.CachedCatalog{
		Items: items,
		Meta: domain.SyncMetadata{
			FetchedAt: fetchedAt,
			Strategy:  strategy,
			ItemCount: len(items),
		},
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode catalog snapshot")
	}

	if err := s.store.Put(ctx, domain.NamespaceCatalog, snapshotKey, data); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist catalog snapshot")
		return err
	}

	s.log.Debug().Str("strategy", string(strategy)).Int("items", len(items)).Msg("Catalog snapshot stored")
	return nil
}

// Catalog returns the cached catalog snapshot, or nil when none has been
// downloaded yet.
func (s *service) Catalog(ctx context.Context) (*domain.CachedCatalog, error) {
	data, err := s.store.Get(ctx, domain.NamespaceCatalog, snapshotKey)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	var snapshot domain.CachedCatalog
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, errors.Wrap(err, "failed to decode catalog snapshot")
	}

	return &snapshot, nil
}

// Clear drops both snapshots. Pending mutations live in their own
// namespaces and are untouched.
func (s *service) Clear(ctx context.Context) error {
	if err := s.store.Delete(ctx, domain.NamespaceProfile, snapshotKey); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, domain.NamespaceCatalog, snapshotKey); err != nil {
		return err
	}

	s.log.Info().Msg("Cached snapshots cleared")
	return nil
}
