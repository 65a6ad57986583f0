package domain

import (
	"context"
)

// RemoteGateway is the engine's boundary to the marketplace service. All
// calls are single network round-trips; implementations map transport-level
// failures (no response, timeout, undecodable body) to *TransportError so
// callers can rely on retry being safe.
type RemoteGateway interface {
	// FetchProfile downloads the authenticated user's profile.
	FetchProfile(ctx context.Context) (*Profile, error)

	// FetchCatalog downloads catalog entries scoped by the request's
	// strategy and filters.
	FetchCatalog(ctx context.Context, req DownloadRequest) ([]ServiceItem, error)

	// Upload submits one batch of pending mutations and returns the
	// server's per-item verdict. Client-temporary ids make re-submission of
	// an already-processed item a duplicate-detection case on the server,
	// not a double-creation.
	Upload(ctx context.Context, batch UploadBatch) (*UploadResult, error)
}
