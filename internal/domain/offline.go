package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MutationKind identifies one of the three independent queue partitions.
type MutationKind string

const (
	KindBids     MutationKind = "bids"
	KindBookings MutationKind = "bookings"
	KindMessages MutationKind = "messages"
)

// Kinds lists all queue partitions in a stable order.
func Kinds() []MutationKind {
	return []MutationKind{KindBids, KindBookings, KindMessages}
}

// Namespace returns the LocalStore namespace backing this partition.
func (k MutationKind) Namespace() string {
	return "offline." + string(k)
}

func (k MutationKind) idPrefix() string {
	switch k {
	case KindBids:
		return "bid_"
	case KindBookings:
		return "booking_"
	case KindMessages:
		return "msg_"
	}
	return "tmp_"
}

// NewClientTempID generates a client-temporary identifier for a
// not-yet-confirmed record. The prefix keeps it distinct from server-assigned
// identifiers, so the server can tell "new" from "existing", and the UUID
// keeps it unique within the device's queue namespace. The id is generated
// once at creation time and stays stable across retries.
func NewClientTempID(kind MutationKind) string {
	return kind.idPrefix() + uuid.NewString()
}

// IsClientTempID reports whether id was generated on a device rather than
// assigned by the server.
func IsClientTempID(id string) bool {
	return strings.HasPrefix(id, "bid_") ||
		strings.HasPrefix(id, "booking_") ||
		strings.HasPrefix(id, "msg_") ||
		strings.HasPrefix(id, "tmp_")
}

// OfflineBid is a bid created while the device had no connectivity.
type OfflineBid struct {
	ClientTempID string    `json:"client_temp_id"`
	ServiceID    string    `json:"service_id"`
	Amount       float64   `json:"amount"`
	Note         string    `json:"note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OfflineBooking is a booking created while offline.
type OfflineBooking struct {
	ClientTempID string    `json:"client_temp_id"`
	ServiceID    string    `json:"service_id"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// OfflineMessage is a message composed while offline.
type OfflineMessage struct {
	ClientTempID string    `json:"client_temp_id"`
	RecipientID  string    `json:"recipient_id"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// QueuedMutation is the envelope the queue persists per pending mutation.
// Payload holds the serialized typed mutation; Attempts counts server
// rejections (transport failures do not count, the whole batch simply
// retries verbatim).
type QueuedMutation struct {
	Kind           MutationKind    `json:"kind"`
	ClientTempID   string          `json:"client_temp_id"`
	Payload        json.RawMessage `json:"payload"`
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	Attempts       int             `json:"attempts"`
	LastError      string          `json:"last_error,omitempty"`
	LastRejectedAt time.Time       `json:"last_rejected_at,omitempty"`
}

// UploadBatch is one reconciliation attempt's payload. It is ephemeral:
// built from queue snapshots at drain time and never persisted itself.
type UploadBatch struct {
	Timestamp time.Time        `json:"timestamp"`
	Bids      []OfflineBid     `json:"bids"`
	Bookings  []OfflineBooking `json:"bookings"`
	Messages  []OfflineMessage `json:"messages"`
}

// Empty reports whether the batch carries no mutations at all.
func (b UploadBatch) Empty() bool {
	return len(b.Bids) == 0 && len(b.Bookings) == 0 && len(b.Messages) == 0
}

// UploadError references one rejected batch item. Reason is the server's
// validation message, passed through verbatim for user-facing resolution.
type UploadError struct {
	ItemRef string       `json:"item_ref"`
	Kind    MutationKind `json:"kind"`
	Reason  string       `json:"reason"`
}

// UploadResult is the server's per-item verdict on an UploadBatch. Every id
// in a processed list is removed from the queue; every id referenced in
// Errors is retained. Ids in neither list are treated as not yet confirmed
// and also retained.
type UploadResult struct {
	ProcessedBids     []string      `json:"processed_bids"`
	ProcessedBookings []string      `json:"processed_bookings"`
	ProcessedMessages []string      `json:"processed_messages"`
	Errors            []UploadError `json:"errors"`
}

// Processed returns the processed-id list for the given kind.
func (r UploadResult) Processed(kind MutationKind) []string {
	switch kind {
	case KindBids:
		return r.ProcessedBids
	case KindBookings:
		return r.ProcessedBookings
	case KindMessages:
		return r.ProcessedMessages
	}
	return nil
}

// OfflineCounts holds per-partition pending totals.
type OfflineCounts struct {
	Bids     int `json:"bids"`
	Bookings int `json:"bookings"`
	Messages int `json:"messages"`
}

// Total sums all partitions.
func (c OfflineCounts) Total() int {
	return c.Bids + c.Bookings + c.Messages
}

// ReconcileResult reports the outcome of one drain.
type ReconcileResult struct {
	NoOp      bool          `json:"no_op"`
	Submitted OfflineCounts `json:"submitted"`
	Processed OfflineCounts `json:"processed"`
	Retained  OfflineCounts `json:"retained"`
	Errors    []UploadError `json:"errors"`
}

// EngineStatus is the caller-visible diagnostics surface, computed on demand
// from LocalStore counts.
type EngineStatus struct {
	OfflineCounts   OfflineCounts `json:"offline_counts"`
	HasPendingData  bool          `json:"has_pending_data"`
	StorageHealthy  bool          `json:"storage_healthy"`
	HeldForReview   int           `json:"held_for_review"`
	CatalogSyncedAt *time.Time    `json:"catalog_synced_at,omitempty"`
	CatalogStale    bool          `json:"catalog_stale"`
}
