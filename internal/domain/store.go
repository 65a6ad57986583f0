package domain

import (
	"context"
)

// LocalStore namespaces. Each component owns exactly one namespace, so the
// store is the only shared mutable resource and components cannot interfere
// with each other's partitions.
const (
	NamespaceProfile = "profile"
	NamespaceCatalog = "catalog"
)

// LocalStore is a persistent namespaced key-value store surviving process
// restarts. It is the single source of truth for every cached snapshot and
// pending mutation: typed views (cache, queue) never hold state that is not
// backed by a store write.
//
// Writes are durable before the call returns. A missing key is not an error:
// Get returns (nil, nil). Real persistence failures surface as
// *StorageError and are never swallowed, because losing a pending mutation
// is a correctness bug.
type LocalStore interface {
	Put(ctx context.Context, namespace, key string, value []byte) error
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	AllEntries(ctx context.Context, namespace string) (map[string][]byte, error)
	Counts(ctx context.Context) (map[string]int, error)
	HealthCheck(ctx context.Context) bool
}
