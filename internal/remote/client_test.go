package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(logger.Mock(), domain.RemoteConfig{
		BaseURL:        srv.URL,
		Token:          "test-token",
		TimeoutSeconds: 5,
	})
	return client, srv
}

func TestClient_FetchProfile(t *testing.T) {
	ctx := context.Background()

	t.Run("Successful fetch", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/v1/profile", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

			_ = json.NewEncoder(w).Encode(domain.Profile{
				ID:          "u1",
				Username:    "alice",
				DisplayName: "Alice",
			})
		}))

		profile, err := client.FetchProfile(ctx)
		require.NoError(t, err)
		require.NotNil(t, profile)
		assert.Equal(t, "u1", profile.ID)
		assert.Equal(t, "alice", profile.Username)
	})

	t.Run("Server error maps to TransportError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

		profile, err := client.FetchProfile(ctx)
		require.Error(t, err)
		assert.Nil(t, profile)

		var transportErr *domain.TransportError
		assert.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "fetch_profile", transportErr.Op)
	})

	t.Run("Undecodable body maps to TransportError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("not json"))
		}))

		_, err := client.FetchProfile(ctx)
		require.Error(t, err)

		var transportErr *domain.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})

	t.Run("Unreachable server maps to TransportError", func(t *testing.T) {
		client := NewClient(logger.Mock(), domain.RemoteConfig{
			BaseURL:        "http://127.0.0.1:1",
			TimeoutSeconds: 1,
		})

		_, err := client.FetchProfile(ctx)
		require.Error(t, err)

		var transportErr *domain.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})
}

func TestClient_FetchCatalog_QueryParams(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		req       domain.DownloadRequest
		wantQuery map[string]string
	}{
		{
			name:      "full download sends no parameters",
			req:       domain.FullDownload(),
			wantQuery: map[string]string{},
		},
		{
			name:      "limited download sends limit",
			req:       domain.LimitedDownload(50),
			wantQuery: map[string]string{"limit": "50"},
		},
		{
			name:      "quick download sends resolved limit",
			req:       domain.DownloadRequest{Strategy: domain.StrategyQuick, Limit: 20},
			wantQuery: map[string]string{"limit": "20"},
		},
		{
			name:      "by category",
			req:       domain.ByCategory("home"),
			wantQuery: map[string]string{"category": "home"},
		},
		{
			name:      "by location",
			req:       domain.ByLocation("berlin"),
			wantQuery: map[string]string{"location": "berlin"},
		},
		{
			name: "advanced filter sends the compound filter",
			req: domain.AdvancedFilter(domain.CatalogFilter{
				Category: "home",
				Location: "berlin",
				MinPrice: 10,
				MaxPrice: 99.5,
				Sort:     "price_asc",
				Limit:    25,
			}),
			wantQuery: map[string]string{
				"category":  "home",
				"location":  "berlin",
				"min_price": "10",
				"max_price": "99.5",
				"sort":      "price_asc",
				"limit":     "25",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/services", r.URL.Path)

				query := r.URL.Query()
				assert.Len(t, query, len(tt.wantQuery))
				for key, want := range tt.wantQuery {
					assert.Equal(t, want, query.Get(key), "query param %s", key)
				}

				_ = json.NewEncoder(w).Encode([]domain.ServiceItem{
					{ID: "s1", Title: "Plumbing"},
				})
			}))

			items, err := client.FetchCatalog(ctx, tt.req)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, "s1", items[0].ID)
		})
	}
}

func TestClient_Upload(t *testing.T) {
	ctx := context.Background()

	batch := domain.UploadBatch{
		Timestamp: time.Now(),
		Bids: []domain.OfflineBid{
			{ClientTempID: "bid_1", ServiceID: "s1", Amount: 100},
		},
		Messages: []domain.OfflineMessage{
			{ClientTempID: "msg_1", RecipientID: "u2", Body: "hello"},
		},
	}

	t.Run("Successful upload decodes the per-item verdict", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/v1/sync/batch", r.URL.Path)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var received domain.UploadBatch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
			assert.Len(t, received.Bids, 1)
			assert.Len(t, received.Messages, 1)

			_ = json.NewEncoder(w).Encode(domain.UploadResult{
				ProcessedBids:     []string{"bid_1"},
				ProcessedMessages: []string{"msg_1"},
			})
		}))

		result, err := client.Upload(ctx, batch)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, []string{"bid_1"}, result.ProcessedBids)
		assert.Equal(t, []string{"msg_1"}, result.ProcessedMessages)
		assert.Empty(t, result.Errors)
	})

	t.Run("Response with rejections is still a received response", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(domain.UploadResult{
				ProcessedMessages: []string{"msg_1"},
				Errors: []domain.UploadError{
					{ItemRef: "bid_1", Kind: domain.KindBids, Reason: "amount too low"},
				},
			})
		}))

		result, err := client.Upload(ctx, batch)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Len(t, result.Errors, 1)
		assert.Equal(t, "amount too low", result.Errors[0].Reason)
	})

	t.Run("Non-2xx status maps to TransportError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		result, err := client.Upload(ctx, batch)
		require.Error(t, err)
		assert.Nil(t, result)

		var transportErr *domain.TransportError
		assert.ErrorAs(t, err, &transportErr)
		assert.Equal(t, "upload", transportErr.Op)
	})

	t.Run("Undecodable body maps to TransportError", func(t *testing.T) {
		client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>gateway error</html>"))
		}))

		result, err := client.Upload(ctx, batch)
		require.Error(t, err)
		assert.Nil(t, result)

		var transportErr *domain.TransportError
		assert.ErrorAs(t, err, &transportErr)
	})
}
