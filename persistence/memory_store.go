package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryMessageStore is an in-memory implementation of MessageStore.
// Suitable for development and testing. Data is lost on restart.
type MemoryMessageStore struct {
	records       map[string]*Record  // id -> record
	conversations map[string][]string // conversation id -> []record id
	mu            sync.RWMutex
	closed        bool
	config        StoreConfig
}

// NewMemoryMessageStore creates a new in-memory message store
func NewMemoryMessageStore(config StoreConfig) *MemoryMessageStore {
	store := &MemoryMessageStore{
		records:       make(map[string]*Record),
		conversations: make(map[string][]string),
		config:        config,
	}

	if config.Cleanup.Enabled {
		go store.cleanupLoop(config.Cleanup.Interval)
	}

	return store
}

// Close closes the store
func (s *MemoryMessageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping checks if the store is healthy
func (s *MemoryMessageStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

// SaveMessage persists a single record
func (s *MemoryMessageStore) SaveMessage(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.save(rec)
	return nil
}

// SaveMessages persists multiple records atomically
func (s *MemoryMessageStore) SaveMessages(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	for _, rec := range recs {
		if rec == nil {
			continue
		}
		s.save(rec)
	}
	return nil
}

// save assumes the write lock is held.
func (s *MemoryMessageStore) save(rec *Record) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	s.records[rec.ID] = rec

	if rec.ConversationID != "" {
		s.conversations[rec.ConversationID] = append(s.conversations[rec.ConversationID], rec.ID)
	}
}

// GetMessage retrieves a record by ID
func (s *MemoryMessageStore) GetMessage(ctx context.Context, id string) (*Record, error) {
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

// GetMessages retrieves records for a conversation with pagination
func (s *MemoryMessageStore) GetMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]*Record, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, "", ErrStoreClosed
	}

	ids, ok := s.conversations[conversationID]
	if !ok {
		return []*Record{}, "", nil
	}

	startIdx := 0
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				startIdx = i + 1
				break
			}
		}
	}

	if limit <= 0 {
		limit = 100
	}

	endIdx := startIdx + limit
	if endIdx > len(ids) {
		endIdx = len(ids)
	}

	result := make([]*Record, 0, endIdx-startIdx)
	for i := startIdx; i < endIdx; i++ {
		if rec, ok := s.records[ids[i]]; ok {
			result = append(result, rec)
		}
	}

	nextCursor := ""
	if endIdx < len(ids) {
		nextCursor = ids[endIdx-1]
	}

	return result, nextCursor, nil
}

// AckMessage marks a record as acknowledged
func (s *MemoryMessageStore) AckMessage(ctx context.Context, id string) error {
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
	return nil
}

// GetUnackedMessages retrieves unacknowledged records older than the specified duration
func (s *MemoryMessageStore) GetUnackedMessages(ctx context.Context, conversationID string, olderThan time.Duration) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	cutoff := time.Now().Add(-olderThan)
	result := make([]*Record, 0)

	for _, id := range s.conversations[conversationID] {
		rec, ok := s.records[id]
		if !ok {
			continue
		}
		if rec.AckedAt == nil && rec.CreatedAt.Before(cutoff) {
			result = append(result, rec)
		}
	}

	return result, nil
}

// IncrementRetry increments the retry count for a record
func (s *MemoryMessageStore) IncrementRetry(ctx context.Context, id string) error {
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
	return nil
}

// DeleteMessage removes a record from the store
func (s *MemoryMessageStore) DeleteMessage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}

	s.removeFromIndex(rec)
	delete(s.records, id)
	return nil
}

// removeFromIndex assumes the write lock is held.
func (s *MemoryMessageStore) removeFromIndex(rec *Record) {
	if rec.ConversationID == "" {
		return
	}
	ids := s.conversations[rec.ConversationID]
	for i, id := range ids {
		if id == rec.ID {
			s.conversations[rec.ConversationID] = append(ids[:i], ids[i+1:]...)
			return
		}
	}
}

// Cleanup removes acknowledged records older than the cutoff and any expired records
func (s *MemoryMessageStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
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
			s.removeFromIndex(rec)
			delete(s.records, id)
			count++
		}
	}

	return count, nil
}

// Stats returns statistics about the message store
func (s *MemoryMessageStore) Stats(ctx context.Context) (*MessageStoreStats, error) {
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

// cleanupLoop runs periodic cleanup
func (s *MemoryMessageStore) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.RLock()
		closed := s.closed
		s.mu.RUnlock()

		if closed {
			return
		}

		_, _ = s.Cleanup(context.Background(), s.config.Cleanup.Retention)
	}
}

var _ MessageStore = (*MemoryMessageStore)(nil)
