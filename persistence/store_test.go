package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRecord builds a record with predictable content for assertions.
func newTestRecord(id, conversationID string) *Record {
	return &Record{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       "agent-a",
		ReceiverID:     "agent-b",
		Type:           "text",
		Content:        map[string]any{"text": "hello " + id},
		CreatedAt:      time.Now(),
	}
}

// storeFactory opens a fresh store for each subtest.
type storeFactory func(t *testing.T) MessageStore

func testStores(t *testing.T) map[string]storeFactory {
	t.Helper()
	return map[string]storeFactory{
		"memory": func(t *testing.T) MessageStore {
			cfg := DefaultStoreConfig()
			store := NewMemoryMessageStore(cfg)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
		"file": func(t *testing.T) MessageStore {
			cfg := DefaultStoreConfig()
			cfg.Type = StoreTypeFile
			cfg.BaseDir = t.TempDir()
			store, err := NewFileMessageStore(cfg)
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
}

func TestMessageStoreSaveAndGet(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			rec := newTestRecord("msg-1", "conv-1")
			require.NoError(t, store.SaveMessage(ctx, rec))

			got, err := store.GetMessage(ctx, "msg-1")
			require.NoError(t, err)
			assert.Equal(t, "conv-1", got.ConversationID)
			assert.Equal(t, "agent-a", got.SenderID)
			assert.Equal(t, "hello msg-1", got.Content["text"])

			_, err = store.GetMessage(ctx, "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMessageStoreSaveGeneratesID(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			rec := newTestRecord("", "conv-1")
			require.NoError(t, store.SaveMessage(ctx, rec))
			require.NotEmpty(t, rec.ID)

			got, err := store.GetMessage(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
		})
	}
}

func TestMessageStorePagination(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			recs := make([]*Record, 0, 5)
			for i := 0; i < 5; i++ {
				rec := newTestRecord(fmt.Sprintf("msg-%d", i), "conv-1")
				rec.CreatedAt = time.Now().Add(time.Duration(i) * time.Millisecond)
				recs = append(recs, rec)
			}
			require.NoError(t, store.SaveMessages(ctx, recs))

			page1, cursor, err := store.GetMessages(ctx, "conv-1", "", 2)
			require.NoError(t, err)
			require.Len(t, page1, 2)
			require.NotEmpty(t, cursor)
			assert.Equal(t, "msg-0", page1[0].ID)
			assert.Equal(t, "msg-1", page1[1].ID)

			page2, cursor, err := store.GetMessages(ctx, "conv-1", cursor, 2)
			require.NoError(t, err)
			require.Len(t, page2, 2)
			assert.Equal(t, "msg-2", page2[0].ID)
			assert.Equal(t, "msg-3", page2[1].ID)

			page3, cursor, err := store.GetMessages(ctx, "conv-1", cursor, 2)
			require.NoError(t, err)
			require.Len(t, page3, 1)
			assert.Equal(t, "msg-4", page3[0].ID)
			assert.Empty(t, cursor)
		})
	}
}

func TestMessageStoreAck(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			rec := newTestRecord("msg-1", "conv-1")
			rec.CreatedAt = time.Now().Add(-time.Minute)
			require.NoError(t, store.SaveMessage(ctx, rec))

			unacked, err := store.GetUnackedMessages(ctx, "conv-1", time.Second)
			require.NoError(t, err)
			require.Len(t, unacked, 1)

			require.NoError(t, store.AckMessage(ctx, "msg-1"))

			got, err := store.GetMessage(ctx, "msg-1")
			require.NoError(t, err)
			require.NotNil(t, got.AckedAt)

			unacked, err = store.GetUnackedMessages(ctx, "conv-1", time.Second)
			require.NoError(t, err)
			assert.Empty(t, unacked)
		})
	}
}

func TestMessageStoreIncrementRetry(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			rec := newTestRecord("msg-1", "conv-1")
			require.NoError(t, store.SaveMessage(ctx, rec))

			require.NoError(t, store.IncrementRetry(ctx, "msg-1"))
			require.NoError(t, store.IncrementRetry(ctx, "msg-1"))

			got, err := store.GetMessage(ctx, "msg-1")
			require.NoError(t, err)
			assert.Equal(t, 2, got.RetryCount)
			require.NotNil(t, got.LastRetryAt)
		})
	}
}

func TestMessageStoreDelete(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			require.NoError(t, store.SaveMessage(ctx, newTestRecord("msg-1", "conv-1")))
			require.NoError(t, store.DeleteMessage(ctx, "msg-1"))

			_, err := store.GetMessage(ctx, "msg-1")
			assert.ErrorIs(t, err, ErrNotFound)

			recs, _, err := store.GetMessages(ctx, "conv-1", "", 10)
			require.NoError(t, err)
			assert.Empty(t, recs)
		})
	}
}

func TestMessageStoreCleanup(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			old := newTestRecord("msg-old", "conv-1")
			old.CreatedAt = time.Now().Add(-2 * time.Hour)
			ackedAt := time.Now().Add(-2 * time.Hour)
			old.AckedAt = &ackedAt
			require.NoError(t, store.SaveMessage(ctx, old))

			expired := newTestRecord("msg-expired", "conv-1")
			expiresAt := time.Now().Add(-time.Minute)
			expired.ExpiresAt = &expiresAt
			require.NoError(t, store.SaveMessage(ctx, expired))

			fresh := newTestRecord("msg-fresh", "conv-1")
			require.NoError(t, store.SaveMessage(ctx, fresh))

			removed, err := store.Cleanup(ctx, time.Hour)
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			_, err = store.GetMessage(ctx, "msg-fresh")
			assert.NoError(t, err)
		})
	}
}

func TestMessageStoreStats(t *testing.T) {
	for name, open := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			require.NoError(t, store.SaveMessage(ctx, newTestRecord("msg-1", "conv-1")))
			require.NoError(t, store.SaveMessage(ctx, newTestRecord("msg-2", "conv-1")))
			require.NoError(t, store.SaveMessage(ctx, newTestRecord("msg-3", "conv-2")))
			require.NoError(t, store.AckMessage(ctx, "msg-1"))

			stats, err := store.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(3), stats.TotalMessages)
			assert.Equal(t, int64(1), stats.AckedMessages)
			assert.Equal(t, int64(2), stats.PendingMessages)
			assert.Equal(t, int64(2), stats.ConversationCounts["conv-1"])
			assert.Equal(t, int64(1), stats.ConversationCounts["conv-2"])
		})
	}
}

func TestFileMessageStoreReload(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultStoreConfig()
	cfg.Type = StoreTypeFile
	cfg.BaseDir = t.TempDir()

	store, err := NewFileMessageStore(cfg)
	require.NoError(t, err)
	require.NoError(t, store.SaveMessage(ctx, newTestRecord("msg-1", "conv-1")))
	require.NoError(t, store.SaveMessage(ctx, newTestRecord("msg-2", "conv-1")))
	require.NoError(t, store.Close())

	// A new store over the same directory sees the persisted records.
	reopened, err := NewFileMessageStore(cfg)
	require.NoError(t, err)
	defer reopened.Close()

	recs, _, err := reopened.GetMessages(ctx, "conv-1", "", 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "msg-1", recs[0].ID)
	assert.Equal(t, "msg-2", recs[1].ID)
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore(DefaultStoreConfig())
	require.NoError(t, store.Close())

	err := store.SaveMessage(ctx, newTestRecord("msg-1", "conv-1"))
	assert.ErrorIs(t, err, ErrStoreClosed)
}

func TestNewMessageStoreFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		store, err := NewMessageStore(DefaultStoreConfig())
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &MemoryMessageStore{}, store)
	})

	t.Run("file", func(t *testing.T) {
		cfg := DefaultStoreConfig()
		cfg.Type = StoreTypeFile
		cfg.BaseDir = t.TempDir()
		store, err := NewMessageStore(cfg)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &FileMessageStore{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := DefaultStoreConfig()
		cfg.Type = StoreType("bogus")
		_, err := NewMessageStore(cfg)
		assert.Error(t, err)
	})
}

func TestRetryConfigBackoff(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, cfg.InitialBackoff, cfg.CalculateBackoff(0))
	assert.Equal(t, 2*cfg.InitialBackoff, cfg.CalculateBackoff(1))
	assert.Equal(t, 4*cfg.InitialBackoff, cfg.CalculateBackoff(2))

	// Backoff is capped at MaxBackoff.
	assert.Equal(t, cfg.MaxBackoff, cfg.CalculateBackoff(20))
}

func TestRecordShouldRetry(t *testing.T) {
	cfg := DefaultRetryConfig()

	rec := newTestRecord("msg-1", "conv-1")
	assert.True(t, rec.ShouldRetry(cfg))

	rec.RetryCount = cfg.MaxRetries
	assert.False(t, rec.ShouldRetry(cfg))

	rec.RetryCount = 0
	now := time.Now()
	rec.AckedAt = &now
	assert.False(t, rec.ShouldRetry(cfg))
}
