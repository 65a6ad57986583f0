package domain

import (
	"fmt"

	"github.com/caravel-app/caravel/pkg/errors"
)

// ErrReconcileRunning is returned when a drain is requested while another
// drain is already in flight. Concurrent drains could read the same pending
// items and double-submit them, so the second caller is rejected.
var ErrReconcileRunning = errors.New("reconciliation already running")

// StorageError wraps a local persistence failure. It is fatal to the
// operation in progress and always propagates; silently losing a write is
// worse than surfacing failure.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err as a StorageError for operation op.
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// TransportError wraps a network call that failed or timed out before a
// usable response was received. Recoverable by retry; an operation that
// fails this way must not have mutated cache or queue state.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError for operation op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// PartialUploadError reports an upload that succeeded as a transport call
// while the server rejected some items. Processed siblings are committed;
// only the rejected items remain queued.
type PartialUploadError struct {
	Errors []UploadError
}

func (e *PartialUploadError) Error() string {
	return fmt.Sprintf("upload rejected %d item(s)", len(e.Errors))
}
