package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/caravel-app/caravel/internal/domain"
	"github.com/caravel-app/caravel/internal/logger"
	"github.com/caravel-app/caravel/pkg/errors"
	"github.com/rs/zerolog"
)

// Client talks to the marketplace service over HTTP. It implements
// domain.RemoteGateway: anything short of a decoded response body maps to a
// *TransportError, so callers know the server may or may not have seen the
// request and that retrying is the correct reaction.
type Client struct {
	log        zerolog.Logger
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewClient(log logger.Logger, cfg domain.RemoteConfig) *Client {
	return &Client{
		log: log.With().Str("module", "remote").Logger(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
}

func (c *Client) FetchProfile(ctx context.Context) (*domain.Profile, error) {
	var profile domain.Profile
	if err := c.getJSON(ctx, "fetch_profile", c.baseURL+"/api/v1/profile", &profile); err != nil {
		return nil, err
	}

	c.log.Debug().Str("user", profile.Username).Msg("Profile fetched")
	return &profile, nil
}

func (c *Client) FetchCatalog(ctx context.Context, req domain.DownloadRequest) ([]domain.ServiceItem, error) {
	endpoint := c.baseURL + "/api/v1/services"
	if query := catalogQuery(req); query != "" {
		endpoint += "?" + query
	}

	var items []domain.ServiceItem
	if err := c.getJSON(ctx, "fetch_catalog", endpoint, &items); err != nil {
		return nil, err
	}

	c.log.Debug().Str("strategy", string(req.Strategy)).Int("items", len(items)).Msg("Catalog fetched")
	return items, nil
}

func (c *Client) Upload(ctx context.Context, batch domain.UploadBatch) (*domain.UploadResult, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode upload batch")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/sync/batch", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build upload request")
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Msg("Upload request failed")
		return nil, domain.NewTransportError("upload", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Msg("Upload returned unexpected status")
		return nil, domain.NewTransportError("upload", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var result domain.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// An undecodable body leaves the outcome unknown, same as no
		// response at all.
		return nil, domain.NewTransportError("upload", errors.Wrap(err, "failed to decode upload result"))
	}

	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build %s request", op)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn().Err(err).Str("op", op).Msg("Request failed")
		return domain.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn().Int("status", resp.StatusCode).Str("op", op).Msg("Unexpected status")
		return domain.NewTransportError(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewTransportError(op, errors.Wrap(err, "failed to decode response"))
	}

	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// catalogQuery maps a download request to the server's filter parameters.
// The filtering itself is server-side; the client only scopes the request.
func catalogQuery(req domain.DownloadRequest) string {
	values := url.Values{}

	switch req.Strategy {
	case domain.StrategyFull:
		// No parameters: every record.
	case domain.StrategyQuick, domain.StrategyLimited:
		if req.Limit > 0 {
			values.Set("limit", strconv.Itoa(req.Limit))
		}
	case domain.StrategyByCategory:
		values.Set("category", req.Category)
	case domain.StrategyByLocation:
		values.Set("location", req.Location)
	case domain.StrategyAdvancedFilter:
		if req.Filter != nil {
			if req.Filter.Category != "" {
				values.Set("category", req.Filter.Category)
			}
			if req.Filter.Location != "" {
				values.Set("location", req.Filter.Location)
			}
			if req.Filter.MinPrice > 0 {
				values.Set("min_price", strconv.FormatFloat(req.Filter.MinPrice, 'f', -1, 64))
			}
			if req.Filter.MaxPrice > 0 {
				values.Set("max_price", strconv.FormatFloat(req.Filter.MaxPrice, 'f', -1, 64))
			}
			if req.Filter.Sort != "" {
				values.Set("sort", req.Filter.Sort)
			}
			if req.Filter.Limit > 0 {
				values.Set("limit", strconv.Itoa(req.Filter.Limit))
			}
		}
	}

	return values.Encode()
}
