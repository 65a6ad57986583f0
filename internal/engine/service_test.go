package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/caravel-app/caravel/internal/cache"
	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/download"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/internal/queue"
	"github.com/caravel-app/caravel/internal/reconcile"
	"github.com/caravel-app/caravel/internal/staleness"
	"github.com/caravel-app/caravel/internal/storetest"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway scripts the whole remote boundary for end-to-end engine tests.
type fakeGateway struct {
	mu           sync.Mutex
	profile      *domain.Profile
	items        []domain.ServiceItem
	catalogErr   error
	catalogCalls int
	uploadFn     func(batch domain.UploadBatch) (*domain.UploadResult, error)
	uploads      []domain.UploadBatch
}

func (f *fakeGateway) FetchProfile(ctx context.Context) (*domain.Profile, error) {
	if f.profile == nil {
		return nil, domain.NewTransportError("fetch_profile", errors.New("offline"))
	}
	return f.profile, nil
}

func (f *fakeGateway) FetchCatalog(ctx context.Context, req domain.DownloadRequest) ([]domain.ServiceItem, error) {
	f.mu.Lock()
	f.catalogCalls++
	f.mu.Unlock()
	if f.catalogErr != nil {
		return nil, f.catalogErr
	}
	return f.items, nil
}

func (f *fakeGateway) Upload(ctx context.Context, batch domain.UploadBatch) (*domain.UploadResult, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, batch)
	f.mu.Unlock()
	if f.uploadFn != nil {
		return f.uploadFn(batch)
	}
	return &domain.UploadResult{}, nil
}

type fixture struct {
	store    *storetest.MemStore
	gateway  *fakeGateway
	queue    queue.Service
	cache    cache.Service
	download download.Service
	engine   Service
}

func newFixture(t *testing.T, cfg domain.SyncConfig) *fixture {
	t.Helper()
	log := logger.Mock()
	store := storetest.NewMemStore()
	gateway := &fakeGateway{}

	queueSvc := queue.NewService(log, store)
	cacheSvc := cache.NewService(log, store)
	downloadSvc := download.NewService(log, cfg, gateway, cacheSvc)
	reconcileSvc := reconcile.NewService(log, cfg, queueSvc, gateway)
	policy := staleness.NewPolicy(cfg.StalenessThreshold())

	return &fixture{
		store:    store,
		gateway:  gateway,
		queue:    queueSvc,
		cache:    cacheSvc,
		download: downloadSvc,
		engine:   NewService(log, store, queueSvc, cacheSvc, downloadSvc, reconcileSvc, policy),
	}
}

func TestService_OfflineToOnlineRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.SyncConfig{QuickLimit: 20})

	// While "online", snapshots get cached.
	f.gateway.profile = &domain.Profile{ID: "u1", Username: "alice"}
	f.gateway.items = []domain.ServiceItem{{ID: "s1", Title: "Plumbing"}}

	_, err := f.download.DownloadProfile(ctx)
	require.NoError(t, err)
	_, err = f.download.DownloadCatalog(ctx, domain.QuickDownload())
	require.NoError(t, err)

	// The device goes offline and the user keeps working.
	bidID, err := f.queue.EnqueueBid(ctx, domain.OfflineBid{ServiceID: "s1", Amount: 100})
	require.NoError(t, err)

	// Offline reads come from the cache.
	profile, err := f.cache.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "alice", profile.Profile.Username)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.HasPendingData)
	assert.Equal(t, 1, status.OfflineCounts.Bids)
	assert.True(t, status.StorageHealthy)

	// Connectivity returns; the drain confirms the bid.
	f.gateway.uploadFn = func(batch domain.UploadBatch) (*domain.UploadResult, error) {
		require.Len(t, batch.Bids, 1)
		assert.Equal(t, bidID, batch.Bids[0].ClientTempID)
		return &domain.UploadResult{ProcessedBids: []string{bidID}}, nil
	}

	f.engine.OnConnectivityRestored(ctx)

	status, err = f.engine.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.HasPendingData)
	assert.Zero(t, status.OfflineCounts.Total())
}

func TestService_RefreshIfStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.SyncConfig{StalenessThresholdMinutes: 60, QuickLimit: 20})
	f.gateway.items = []domain.ServiceItem{{ID: "s1"}}

	t.Run("Missing snapshot triggers a refresh", func(t *testing.T) {
		refreshed, err := f.engine.RefreshIfStale(ctx)
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.Equal(t, 1, f.gateway.catalogCalls)
	})

	t.Run("Fresh snapshot is left alone", func(t *testing.T) {
		refreshed, err := f.engine.RefreshIfStale(ctx)
		require.NoError(t, err)
		assert.False(t, refreshed)
		assert.Equal(t, 1, f.gateway.catalogCalls, "no extra fetch for a fresh snapshot")
	})

	t.Run("Stale snapshot triggers a refresh", func(t *testing.T) {
		// Age the snapshot past the threshold.
		require.NoError(t, f.cache.StoreCatalog(ctx, f.gateway.items, domain.StrategyQuick, time.Now().Add(-2*time.Hour)))

		refreshed, err := f.engine.RefreshIfStale(ctx)
		require.NoError(t, err)
		assert.True(t, refreshed)
		assert.Equal(t, 2, f.gateway.catalogCalls)
	})

	t.Run("Failed refresh keeps the stale snapshot", func(t *testing.T) {
		staleAt := time.Now().Add(-2 * time.Hour)
		require.NoError(t, f.cache.StoreCatalog(ctx, f.gateway.items, domain.StrategyQuick, staleAt))
		f.gateway.catalogErr = domain.NewTransportError("fetch_catalog", errors.New("offline"))

		refreshed, err := f.engine.RefreshIfStale(ctx)
		require.Error(t, err)
		assert.False(t, refreshed)

		snapshot, err := f.cache.Catalog(ctx)
		require.NoError(t, err)
		require.NotNil(t, snapshot)
		assert.True(t, snapshot.Meta.FetchedAt.Equal(staleAt), "stale data beats no data")
	})
}

func TestService_Status_CatalogFreshness(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.SyncConfig{StalenessThresholdMinutes: 60})

	t.Run("No snapshot reports stale with no sync time", func(t *testing.T) {
		status, err := f.engine.Status(ctx)
		require.NoError(t, err)
		assert.Nil(t, status.CatalogSyncedAt)
		assert.True(t, status.CatalogStale)
	})

	t.Run("Fresh snapshot", func(t *testing.T) {
		fetchedAt := time.Now().Add(-10 * time.Minute)
		require.NoError(t, f.cache.StoreCatalog(ctx, nil, domain.StrategyQuick, fetchedAt))

		status, err := f.engine.Status(ctx)
		require.NoError(t, err)
		require.NotNil(t, status.CatalogSyncedAt)
		assert.True(t, status.CatalogSyncedAt.Equal(fetchedAt))
		assert.False(t, status.CatalogStale)
	})

	t.Run("Unhealthy storage is reported", func(t *testing.T) {
		f.store.SetHealthy(false)
		defer f.store.SetHealthy(true)

		status, err := f.engine.Status(ctx)
		require.NoError(t, err)
		assert.False(t, status.StorageHealthy)
	})
}

func TestService_Status_HeldForReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.SyncConfig{MaxAttempts: 1, BackoffBaseSeconds: 3600})

	id, err := f.queue.EnqueueBid(ctx, domain.OfflineBid{ServiceID: "s1", Amount: 1})
	require.NoError(t, err)

	f.gateway.uploadFn = func(batch domain.UploadBatch) (*domain.UploadResult, error) {
		return &domain.UploadResult{
			Errors: []domain.UploadError{{ItemRef: id, Kind: domain.KindBids, Reason: "invalid"}},
		}, nil
	}

	_, err = f.engine.Reconcile(ctx, false)
	var partialErr *domain.PartialUploadError
	require.ErrorAs(t, err, &partialErr)

	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.HeldForReview)
	assert.True(t, status.HasPendingData, "held items still count as pending")
}

func TestService_OnConnectivityRestored_DrainFailureStillRefreshes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, domain.SyncConfig{StalenessThresholdMinutes: 60, QuickLimit: 10})
	f.gateway.items = []domain.ServiceItem{{ID: "s1"}}

	_, err := f.queue.EnqueueMessage(ctx, domain.OfflineMessage{RecipientID: "u2", Body: "hi"})
	require.NoError(t, err)

	f.gateway.uploadFn = func(batch domain.UploadBatch) (*domain.UploadResult, error) {
		return nil, domain.NewTransportError("upload", errors.New("flaky link"))
	}

	f.engine.OnConnectivityRestored(ctx)

	// The queue still holds the message, but the catalog was refreshed.
	status, err := f.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.OfflineCounts.Messages)
	assert.NotNil(t, status.CatalogSyncedAt)
	assert.False(t, status.CatalogStale)
}
