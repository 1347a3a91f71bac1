package docstore

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDoc(tenantID string) *Document {
	return &Document{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Filename:  "notes.txt",
		FileType:  "txt",
		SizeBytes: 42,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))
	assert.Equal(t, StatusPending, doc.Status)
	assert.Equal(t, int64(1), doc.Version)
	assert.True(t, doc.Active)
	assert.False(t, doc.CreatedAt.IsZero())

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, "alice", got.TenantID)

	t.Run("duplicate rejected", func(t *testing.T) {
		err := store.Create(ctx, &Document{ID: doc.ID})
		require.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))

	claimed, err := store.MarkProcessing(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.Equal(t, int64(2), claimed.Version)

	require.NoError(t, store.MarkCompleted(ctx, doc.ID, 7))

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, 7, got.ChunkCount)
	assert.Empty(t, got.Error)
}

func TestMemoryStore_FailureAndRetry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))

	claimed, err := store.MarkProcessing(ctx, doc.ID, doc.Version)
	require.NoError(t, err)
	require.NoError(t, store.MarkFailed(ctx, doc.ID, "embedding service unavailable"))

	got, err := store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "embedding service unavailable", got.Error)
	assert.True(t, CanRetry(got))

	// A failed document re-enters processing; the stale error clears.
	claimed, err = store.MarkProcessing(ctx, doc.ID, got.Version)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, claimed.Status)
	assert.Empty(t, claimed.Error)

	require.NoError(t, store.MarkCompleted(ctx, doc.ID, 3))
	got, err = store.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, CanRetry(got))
}

func TestMemoryStore_InvalidTransitions(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))

	t.Run("finish before processing", func(t *testing.T) {
		require.ErrorIs(t, store.MarkCompleted(ctx, doc.ID, 1), ErrInvalidState)
		require.ErrorIs(t, store.MarkFailed(ctx, doc.ID, "x"), ErrInvalidState)
	})

	claimed, err := store.MarkProcessing(ctx, doc.ID, doc.Version)
	require.NoError(t, err)

	t.Run("processing cannot be claimed again", func(t *testing.T) {
		_, err := store.MarkProcessing(ctx, doc.ID, claimed.Version)
		require.ErrorIs(t, err, ErrInvalidState)
	})

	require.NoError(t, store.MarkCompleted(ctx, doc.ID, 1))

	t.Run("completed cannot be reprocessed", func(t *testing.T) {
		got, err := store.Get(ctx, doc.ID)
		require.NoError(t, err)
		_, err = store.MarkProcessing(ctx, doc.ID, got.Version)
		require.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))

	_, err := store.MarkProcessing(ctx, doc.ID, doc.Version+5)
	require.ErrorIs(t, err, ErrConflict)
}

func TestMemoryStore_ConcurrentClaim(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))

	const claimers = 16
	var wg sync.WaitGroup
	wins := make(chan struct{}, claimers)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.MarkProcessing(ctx, doc.ID, doc.Version); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	assert.Equal(t, 1, won, "exactly one claimer should win the CAS")
}

func TestMemoryStore_List(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a1 := newDoc("alice")
	a2 := newDoc("alice")
	b1 := newDoc("bob")
	require.NoError(t, store.Create(ctx, a1))
	require.NoError(t, store.Create(ctx, a2))
	require.NoError(t, store.Create(ctx, b1))

	docs, err := store.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "alice", d.TenantID)
	}

	docs, err = store.List(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestMemoryStore_SoftDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	doc := newDoc("alice")
	require.NoError(t, store.Create(ctx, doc))
	require.NoError(t, store.SoftDelete(ctx, doc.ID))

	_, err := store.Get(ctx, doc.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, store.SoftDelete(ctx, doc.ID), ErrNotFound)

	docs, err := store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestTruncateError(t *testing.T) {
	long := strings.Repeat("e", maxErrorLength+100)
	assert.Len(t, []rune(truncateError(long)), maxErrorLength)
	assert.Equal(t, "short", truncateError("short"))
}
