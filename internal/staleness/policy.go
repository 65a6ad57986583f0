// Package staleness decides when a cached snapshot is old enough to refresh.
package staleness

import (
	"time"

	"github.com/caravel-app/caravel/internal/domain"
)

// DefaultThreshold is applied when no threshold is configured.
const DefaultThreshold = time.Hour

// Policy is a pure age check against a fixed threshold. It never triggers
// network activity itself; callers consult it and decide.
type Policy struct {
	threshold time.Duration
}

// NewPolicy returns a policy with the given threshold, falling back to
// DefaultThreshold for non-positive values.
func NewPolicy(threshold time.Duration) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Policy{threshold: threshold}
}

// Threshold returns the configured threshold.
func (p *Policy) Threshold() time.Duration {
	return p.threshold
}

// IsStale reports whether the snapshot described by meta needs a refresh at
// the given instant. A missing snapshot (nil meta) is always stale; a
// snapshot exactly at the threshold is still fresh.
func (p *Policy) IsStale(meta *domain.SyncMetadata, now time.Time) bool {
	if meta == nil {
		return true
	}
	return now.Sub(meta.FetchedAt) > p.threshold
}

// ProfileIsStale applies the same age rule to a profile snapshot.
func (p *Policy) ProfileIsStale(snapshot *domain.CachedProfile, now time.Time) bool {
	if snapshot == nil {
		return true
	}
	return now.Sub(snapshot.FetchedAt) > p.threshold
}
