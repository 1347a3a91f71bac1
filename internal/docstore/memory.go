package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// timeNow is a variable for testing purposes (allows mocking time).
var timeNow = time.Now

// MemoryStore is an in-memory Store. Safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewMemoryStore creates an empty in-memory document store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*Document)}
}

func (s *MemoryStore) Create(_ context.Context, doc *Document) error {
	if doc.ID == "" {
		return fmt.Errorf("%w: document ID required", ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[doc.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, doc.ID)
	}

	now := timeNow()
	stored := *doc
	stored.Status = StatusPending
	stored.Version = 1
	stored.Active = true
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.docs[doc.ID] = &stored

	*doc = stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

// getLocked returns the live record; callers must hold at least the
// read lock and must copy before releasing it.
func (s *MemoryStore) getLocked(id string) (*Document, error) {
	doc, ok := s.docs[id]
	if !ok || !doc.Active {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copied := *doc
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, tenantID string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []*Document
	for _, doc := range s.docs {
		if !doc.Active || doc.TenantID != tenantID {
			continue
		}
		copied := *doc
		docs = append(docs, &copied)
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (s *MemoryStore) MarkProcessing(_ context.Context, id string, version int64) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || !doc.Active {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if doc.Status != StatusPending && doc.Status != StatusFailed {
		return nil, fmt.Errorf("%w: cannot process document in state %s", ErrInvalidState, doc.Status)
	}
	if doc.Version != version {
		return nil, fmt.Errorf("%w: version %d, expected %d", ErrConflict, doc.Version, version)
	}

	doc.Status = StatusProcessing
	doc.Error = ""
	doc.Version++
	doc.UpdatedAt = timeNow()

	copied := *doc
	return &copied, nil
}

func (s *MemoryStore) MarkCompleted(_ context.Context, id string, chunkCount int) error {
	return s.finish(id, StatusCompleted, "", chunkCount)
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, reason string) error {
	return s.finish(id, StatusFailed, truncateError(reason), 0)
}

func (s *MemoryStore) finish(id string, status Status, reason string, chunkCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || !doc.Active {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if doc.Status != StatusProcessing {
		return fmt.Errorf("%w: cannot finish document in state %s", ErrInvalidState, doc.Status)
	}

	doc.Status = status
	doc.Error = reason
	doc.ChunkCount = chunkCount
	doc.Version++
	doc.UpdatedAt = timeNow()
	return nil
}

func (s *MemoryStore) SoftDelete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[id]
	if !ok || !doc.Active {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	doc.Active = false
	doc.Version++
	doc.UpdatedAt = timeNow()
	return nil
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
