// Package blobstore holds raw uploaded file content, keyed by document
// ID. Retry of a failed ingestion re-reads the original bytes from
// here instead of asking the client to upload again.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound indicates no blob is stored under the key.
var ErrNotFound = errors.New("blob not found")

// Store persists raw file content.
type Store interface {
	// Put stores data under the key, replacing any previous content.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the content stored under the key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the content. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore creates an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte) error {
	if key == "" {
		return fmt.Errorf("blob key required")
	}
	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	s.blobs[key] = copied
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	data, ok := s.blobs[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	copied := make([]byte, len(data))
	copy(copied, data)
	return copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
