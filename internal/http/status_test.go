package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockEngineService is a mock for engine.Service
type MockEngineService struct {
	mock.Mock
}

func (m *MockEngineService) Reconcile(ctx context.Context, force bool) (*domain.ReconcileResult, error) {
	args := m.Called(ctx, force)
	var result *domain.ReconcileResult
	if args.Get(0) != nil {
		result = args.Get(0).(*domain.ReconcileResult)
	}
	return result, args.Error(1)
}

func (m *MockEngineService) RefreshIfStale(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockEngineService) OnConnectivityRestored(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockEngineService) Status(ctx context.Context) (*domain.EngineStatus, error) {
	args := m.Called(ctx)
	var status *domain.EngineStatus
	if args.Get(0) != nil {
		status = args.Get(0).(*domain.EngineStatus)
	}
	return status, args.Error(1)
}

func TestStatusHandler_Get(t *testing.T) {
	syncedAt := time.Now().Add(-10 * time.Minute)

	mockEngine := new(MockEngineService)
	mockEngine.On("Status", mock.Anything).Return(&domain.EngineStatus{
		OfflineCounts:   domain.OfflineCounts{Bids: 2, Messages: 1},
		HasPendingData:  true,
		StorageHealthy:  true,
		CatalogSyncedAt: &syncedAt,
	}, nil)

	handler := newStatusHandler(encoder{}, mockEngine, "1.2.3")
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, 2, body.OfflineCounts.Bids)
	assert.True(t, body.HasPendingData)
	assert.NotEmpty(t, body.CatalogSyncedAgo)

	mockEngine.AssertExpectations(t)
}

func TestStatusHandler_NoSnapshot(t *testing.T) {
	mockEngine := new(MockEngineService)
	mockEngine.On("Status", mock.Anything).Return(&domain.EngineStatus{
		StorageHealthy: true,
		CatalogStale:   true,
	}, nil)

	handler := newStatusHandler(encoder{}, mockEngine, "dev")
	router := chi.NewRouter()
	handler.Routes(router)

	req := httptest.NewRequest("GET", "/", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.CatalogStale)
	assert.Empty(t, body.CatalogSyncedAgo)
	assert.Nil(t, body.CatalogSyncedAt)
}
