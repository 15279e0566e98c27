package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileMessageStore is a file-based implementation of MessageStore.
// Suitable for single-node deployments. Every record is stored as one JSON
// file under <base>/messages; the in-memory index is rebuilt on open.
type FileMessageStore struct {
	dir     string
	records map[string]*Record
	mu      sync.RWMutex
	closed  bool
	config  StoreConfig
}

// NewFileMessageStore creates a new file-based message store rooted at
// config.BaseDir.
func NewFileMessageStore(config StoreConfig) (*FileMessageStore, error) {
	dir := filepath.Join(config.BaseDir, "messages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create message dir: %w", err)
	}

	store := &FileMessageStore{
		dir:     dir,
		records: make(map[string]*Record),
		config:  config,
	}
	if err := store.load(); err != nil {
		return nil, err
	}
	return store, nil
}

// load rebuilds the index from disk.
func (s *FileMessageStore) load() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read message dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			// A torn write must not brick the store on restart.
			continue
		}
		s.records[rec.ID] = &rec
	}
	return nil
}

func (s *FileMessageStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// flush writes a record to disk. Assumes the write lock is held.
func (s *FileMessageStore) flush(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return os.WriteFile(s.path(rec.ID), data, 0o644)
}

// Close closes the store
func (s *FileMessageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *FileMessageStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	_, err := os.Stat(s.dir)
	return err
}

// SaveMessage persists a single record
func (s *FileMessageStore) SaveMessage(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	return s.save(rec)
}

// SaveMessages persists multiple records
func (s *FileMessageStore) SaveMessages(ctx context.Context, recs []*Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if err := s.save(rec); err != nil {
			return err
		}
	}
	return nil
}

// save assumes the write lock is held.
func (s *FileMessageStore) save(rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records[rec.ID] = rec
	return s.flush(rec)
}

// GetMessage retrieves a record by ID
func (s *FileMessageStore) GetMessage(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// conversationRecords returns the records of a conversation ordered by
// creation time. Assumes a lock is held.
func (s *FileMessageStore) conversationRecords(conversationID string) []*Record {
	recs := make([]*Record, 0)
	for _, rec := range s.records {
		if rec.ConversationID == conversationID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})
	return recs
}

// GetMessages retrieves records for a conversation with pagination
func (s *FileMessageStore) GetMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]*Record, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, "", ErrStoreClosed
	}

	recs := s.conversationRecords(conversationID)

	startIdx := 0
	if cursor != "" {
		for i, rec := range recs {
			if rec.ID == cursor {
				startIdx = i + 1
				break
			}
		}
	}

	if limit <= 0 {
		limit = 100
	}

	endIdx := startIdx + limit
	if endIdx > len(recs) {
		endIdx = len(recs)
	}

	nextCursor := ""
	if endIdx < len(recs) && endIdx > startIdx {
		nextCursor = recs[endIdx-1].ID
	}

	return recs[startIdx:endIdx], nextCursor, nil
}

// AckMessage marks a record as acknowledged
func (s *FileMessageStore) AckMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now()
	rec.AckedAt = &now
	return s.flush(rec)
}

// GetUnackedMessages retrieves unacknowledged records older than the specified duration
func (s *FileMessageStore) GetUnackedMessages(ctx context.Context, conversationID string, olderThan time.Duration) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	cutoff := time.Now().Add(-olderThan)
	result := make([]*Record, 0)
	for _, rec := range s.conversationRecords(conversationID) {
		if rec.AckedAt == nil && rec.CreatedAt.Before(cutoff) {
			result = append(result, rec)
		}
	}
	return result, nil
}

// IncrementRetry increments the retry count for a record
func (s *FileMessageStore) IncrementRetry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	rec.RetryCount++
	now := time.Now()
	rec.LastRetryAt = &now
	return s.flush(rec)
}

// DeleteMessage removes a record from the store
func (s *FileMessageStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}

	delete(s.records, id)
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Cleanup removes acknowledged records older than the cutoff and any expired records
func (s *FileMessageStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	cutoff := time.Now().Add(-olderThan)
	count := 0

	for id, rec := range s.records {
		acked := rec.AckedAt != nil && rec.AckedAt.Before(cutoff)
		if acked || rec.IsExpired() {
			delete(s.records, id)
			if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
				return count, err
			}
			count++
		}
	}

	return count, nil
}

// Stats returns statistics about the message store
func (s *FileMessageStore) Stats(ctx context.Context) (*MessageStoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	stats := &MessageStoreStats{
		ConversationCounts: make(map[string]int64),
	}

	var oldestPending time.Time

	for _, rec := range s.records {
		stats.TotalMessages++

		switch {
		case rec.AckedAt != nil:
			stats.AckedMessages++
		case rec.IsExpired():
			stats.ExpiredMessages++
		default:
			stats.PendingMessages++
			if oldestPending.IsZero() || rec.CreatedAt.Before(oldestPending) {
				oldestPending = rec.CreatedAt
			}
		}

		if rec.ConversationID != "" {
			stats.ConversationCounts[rec.ConversationID]++
		}
	}

	if !oldestPending.IsZero() {
		stats.OldestPendingAge = time.Since(oldestPending)
	}

	return stats, nil
}

var _ MessageStore = (*FileMessageStore)(nil)
