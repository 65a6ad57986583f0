package domain

import (
	"time"
)

// DownloadStrategy names a variant of the catalog fetch differing in the
// scope or filter applied server-side. The strategy used for a snapshot is
// recorded in its SyncMetadata so refresh logic can treat snapshots of
// different provenance independently.
type DownloadStrategy string

const (
	StrategyQuick          DownloadStrategy = "quick"
	StrategyFull           DownloadStrategy = "full"
	StrategyLimited        DownloadStrategy = "limited"
	StrategyByCategory     DownloadStrategy = "by_category"
	StrategyByLocation     DownloadStrategy = "by_location"
	StrategyAdvancedFilter DownloadStrategy = "advanced_filter"
)

// ServiceItem is one entry of the service catalog as returned by the remote.
type ServiceItem struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Location   string    `json:"location"`
	Price      float64   `json:"price"`
	Rating     float64   `json:"rating"`
	ProviderID string    `json:"provider_id"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SyncMetadata records when and how a catalog snapshot was fetched.
type SyncMetadata struct {
	FetchedAt time.Time        `json:"fetched_at"`
	Strategy  DownloadStrategy `json:"strategy"`
	ItemCount int              `json:"item_count"`
}

// CachedCatalog is the last downloaded catalog snapshot plus its metadata.
// Like the profile it is replaced wholesale per download; a snapshot fetched
// with one strategy is never merged into one fetched with another.
type CachedCatalog struct {
	Items []ServiceItem `json:"items"`
	Meta  SyncMetadata  `json:"meta"`
}

// CatalogFilter is a server-side compound filter for the advanced strategy.
type CatalogFilter struct {
	Category string  `json:"category,omitempty"`
	Location string  `json:"location,omitempty"`
	MinPrice float64 `json:"min_price,omitempty"`
	MaxPrice float64 `json:"max_price,omitempty"`
	Sort     string  `json:"sort,omitempty"`
	Limit    int     `json:"limit,omitempty"`
}

// DownloadRequest describes one catalog fetch. Use the constructors below
// rather than filling the struct by hand so strategy and parameters stay
// consistent.
type DownloadRequest struct {
	Strategy DownloadStrategy
	Limit    int
	Category string
	Location string
	Filter   *CatalogFilter
}

// QuickDownload requests a small bounded page with default ordering. The
// page size is resolved from configuration by the download service.
func QuickDownload() DownloadRequest {
	return DownloadRequest{Strategy: StrategyQuick}
}

// FullDownload requests every available record.
func FullDownload() DownloadRequest {
	return DownloadRequest{Strategy: StrategyFull}
}

// LimitedDownload requests a bounded page of size n.
func LimitedDownload(n int) DownloadRequest {
	return DownloadRequest{Strategy: StrategyLimited, Limit: n}
}

// ByCategory requests records filtered server-side by category.
func ByCategory(category string) DownloadRequest {
	return DownloadRequest{Strategy: StrategyByCategory, Category: category}
}

// ByLocation requests records filtered server-side by location.
func ByLocation(location string) DownloadRequest {
	return DownloadRequest{Strategy: StrategyByLocation, Location: location}
}

// AdvancedFilter requests records matching a compound server-side filter.
func AdvancedFilter(filter CatalogFilter) DownloadRequest {
	return DownloadRequest{Strategy: StrategyAdvancedFilter, Filter: &filter}
}
