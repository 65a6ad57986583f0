// Package storetest provides an in-memory LocalStore for exercising the
// components layered on top of the persistent store.
package storetest

import (
	"context"
	"sync"

	"github.com/caravel-app/caravel/internal/domain"
)

// MemStore is an in-memory domain.LocalStore. Safe for concurrent use.
// FailNext, when set, makes the next mutating call fail with a StorageError,
// so tests can exercise persistence failure paths.
type MemStore struct {
	mu       sync.RWMutex
	data     map[string]map[string][]byte
	healthy  bool
	failNext error
}

// NewMemStore returns an empty, healthy store.
func NewMemStore() *MemStore {
	return &MemStore{
		data:    make(map[string]map[string][]byte),
		healthy: true,
	}
}

// FailNext makes the next Put or Delete return the given error wrapped in a
// StorageError.
func (s *MemStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// SetHealthy controls what HealthCheck reports.
func (s *MemStore) SetHealthy(healthy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = healthy
}

func (s *MemStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}

func (s *MemStore) Put(ctx context.Context, namespace, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.NewStorageError("put", err)
	}

	ns, ok := s.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		s.data[namespace] = ns
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	ns[key] = buf
	return nil
}

func (s *MemStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, ok := s.data[namespace]
	if !ok {
		return nil, nil
	}
	value, ok := ns[key]
	if !ok {
		return nil, nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

func (s *MemStore) Delete(ctx context.Context, namespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return domain.NewStorageError("delete", err)
	}

	if ns, ok := s.data[namespace]; ok {
		delete(ns, key)
	}
	return nil
}

func (s *MemStore) AllEntries(ctx context.Context, namespace string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make(map[string][]byte)
	for key, value := range s.data[namespace] {
		buf := make([]byte, len(value))
		copy(buf, value)
		entries[key] = buf
	}
	return entries, nil
}

func (s *MemStore) Counts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int, len(s.data))
	for namespace, ns := range s.data {
		if len(ns) > 0 {
			counts[namespace] = len(ns)
		}
	}
	return counts, nil
}

func (s *MemStore) HealthCheck(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.healthy
}
