package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockCacheService is a mock for cache.Service
type MockCacheService struct {
	mock.Mock
}

func (m *MockCacheService) StoreProfile(ctx context.Context, profile domain.Profile, fetchedAt time.Time) error {
	args := m.Called(ctx, profile, fetchedAt)
	return args.Error(0)
}

func (m *MockCacheService) Profile(ctx context.Context) (*domain.CachedProfile, error) {
	args := m.Called(ctx)
	var snapshot *domain.CachedProfile
	if args.Get(0) != nil {
		snapshot = args.Get(0).(*domain.CachedProfile)
	}
	return snapshot, args.Error(1)
}

func (m *MockCacheService) StoreCatalog(ctx context.Context, items []domain.ServiceItem, strategy domain.DownloadStrategy, fetchedAt time.Time) error {
	args := m.Called(ctx, items, strategy, fetchedAt)
	return args.Error(0)
}

func (m *MockCacheService) Catalog(ctx context.Context) (*domain.CachedCatalog, error) {
	args := m.Called(ctx)
	var snapshot *domain.CachedCatalog
	if args.Get(0) != nil {
		snapshot = args.Get(0).(*domain.CachedCatalog)
	}
	return snapshot, args.Error(1)
}

func (m *MockCacheService) Clear(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockDownloadService is a mock for download.Service
type MockDownloadService struct {
	mock.Mock
}

func (m *MockDownloadService) DownloadProfile(ctx context.Context) (*domain.CachedProfile, error) {
	args := m.Called(ctx)
	var snapshot *domain.CachedProfile
	if args.Get(0) != nil {
		snapshot = args.Get(0).(*domain.CachedProfile)
	}
	return snapshot, args.Error(1)
}

func (m *MockDownloadService) DownloadCatalog(ctx context.Context, req domain.DownloadRequest) (*domain.CachedCatalog, error) {
	args := m.Called(ctx, req)
	var snapshot *domain.CachedCatalog
	if args.Get(0) != nil {
		snapshot = args.Get(0).(*domain.CachedCatalog)
	}
	return snapshot, args.Error(1)
}

func newCatalogRouter(cacheSvc cacheService, downloadSvc downloadService, engineSvc engineService) *chi.Mux {
	router := chi.NewRouter()
	newCatalogHandler(encoder{}, cacheSvc, downloadSvc, engineSvc).Routes(router)
	return router
}

func TestCatalogHandler_GetCatalog(t *testing.T) {
	t.Run("cached snapshot", func(t *testing.T) {
		mockCache := new(MockCacheService)
		mockCache.On("Catalog", mock.Anything).Return(&domain.CachedCatalog{
			Items: []domain.ServiceItem{{ID: "svc-1", Title: "Plumbing"}},
			Meta:  domain.SyncMetadata{Strategy: domain.StrategyQuick, ItemCount: 1},
		}, nil)

		router := newCatalogRouter(mockCache, nil, nil)

		req := httptest.NewRequest("GET", "/catalog", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)

		var body domain.CachedCatalog
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		require.Len(t, body.Items, 1)
		assert.Equal(t, "Plumbing", body.Items[0].Title)
	})

	t.Run("no snapshot yet", func(t *testing.T) {
		mockCache := new(MockCacheService)
		mockCache.On("Catalog", mock.Anything).Return(nil, nil)

		router := newCatalogRouter(mockCache, nil, nil)

		req := httptest.NewRequest("GET", "/catalog", nil)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestCatalogHandler_GetProfile_NotFound(t *testing.T) {
	mockCache := new(MockCacheService)
	mockCache.On("Profile", mock.Anything).Return(nil, nil)

	router := newCatalogRouter(mockCache, nil, nil)

	req := httptest.NewRequest("GET", "/profile", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCatalogHandler_DownloadCatalog(t *testing.T) {
	t.Run("by category", func(t *testing.T) {
		mockDownload := new(MockDownloadService)
		mockDownload.On("DownloadCatalog", mock.Anything, domain.DownloadRequest{
			Strategy: domain.StrategyByCategory,
			Category: "cleaning",
		}).Return(&domain.CachedCatalog{
			Meta: domain.SyncMetadata{Strategy: domain.StrategyByCategory},
		}, nil)

		router := newCatalogRouter(nil, mockDownload, nil)

		req := httptest.NewRequest("POST", "/catalog/download", strings.NewReader(`{"strategy":"by_category","category":"cleaning"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockDownload.AssertExpectations(t)
	})

	t.Run("bad json", func(t *testing.T) {
		router := newCatalogRouter(nil, new(MockDownloadService), nil)

		req := httptest.NewRequest("POST", "/catalog/download", strings.NewReader(`{"strategy":`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("offline maps to bad gateway", func(t *testing.T) {
		mockDownload := new(MockDownloadService)
		mockDownload.On("DownloadCatalog", mock.Anything, mock.Anything).
			Return(nil, domain.NewTransportError("fetch_catalog", errors.New("no route to host")))

		router := newCatalogRouter(nil, mockDownload, nil)

		req := httptest.NewRequest("POST", "/catalog/download", strings.NewReader(`{"strategy":"full"}`))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadGateway, rr.Code)
	})
}

func TestCatalogHandler_RefreshCatalog(t *testing.T) {
	mockEngine := new(MockEngineService)
	mockEngine.On("RefreshIfStale", mock.Anything).Return(true, nil)

	router := newCatalogRouter(nil, nil, mockEngine)

	req := httptest.NewRequest("POST", "/catalog/refresh", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body refreshResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.Refreshed)
}

func TestCatalogHandler_DownloadProfile(t *testing.T) {
	mockDownload := new(MockDownloadService)
	mockDownload.On("DownloadProfile", mock.Anything).Return(&domain.CachedProfile{
		Profile: domain.Profile{ID: "user-1", Username: "alice"},
	}, nil)

	router := newCatalogRouter(nil, mockDownload, nil)

	req := httptest.NewRequest("POST", "/profile/download", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body domain.CachedProfile
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "alice", body.Profile.Username)
}
