package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisMessageStore is a Redis-based implementation of MessageStore.
// Suitable for distributed deployments. Records are stored as JSON values,
// indexed per conversation with a list for ordering and a sorted set for the
// pending (unacked) backlog.
type RedisMessageStore struct {
	client    *redis.Client
	keyPrefix string
	config    StoreConfig
}

// NewRedisMessageStore creates a new Redis-based message store
func NewRedisMessageStore(config StoreConfig) (*RedisMessageStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
		PoolSize: config.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.Redis.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "vaahai:"
	}

	return &RedisMessageStore{
		client:    client,
		keyPrefix: keyPrefix + "msg:",
		config:    config,
	}, nil
}

// Close closes the store
func (s *RedisMessageStore) Close() error {
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisMessageStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisMessageStore) recordKey(id string) string {
	return s.keyPrefix + "data:" + id
}

func (s *RedisMessageStore) conversationKey(conversationID string) string {
	return s.keyPrefix + "conv:" + conversationID
}

func (s *RedisMessageStore) pendingKey(conversationID string) string {
	return s.keyPrefix + "pending:" + conversationID
}

// conversationsKey indexes all conversation ids seen by this store.
func (s *RedisMessageStore) conversationsKey() string {
	return s.keyPrefix + "conversations"
}

// SaveMessage persists a single record
func (s *RedisMessageStore) SaveMessage(ctx context.Context, rec *Record) error {
	if rec == nil {
		return ErrInvalidInput
	}

	pipe := s.client.Pipeline()
	if err := s.queueSave(ctx, pipe, rec); err != nil {
		return err
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SaveMessages persists multiple records atomically
func (s *RedisMessageStore) SaveMessages(ctx context.Context, recs []*Record) error {
	if len(recs) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, rec := range recs {
		if rec == nil {
			continue
		}
		if err := s.queueSave(ctx, pipe, rec); err != nil {
			return err
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisMessageStore) queueSave(ctx context.Context, pipe redis.Pipeliner, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	pipe.Set(ctx, s.recordKey(rec.ID), data, 0)

	if rec.ConversationID != "" {
		pipe.RPush(ctx, s.conversationKey(rec.ConversationID), rec.ID)
		pipe.ZAdd(ctx, s.pendingKey(rec.ConversationID), redis.Z{
			Score:  float64(rec.CreatedAt.UnixNano()),
			Member: rec.ID,
		})
		pipe.SAdd(ctx, s.conversationsKey(), rec.ConversationID)
	}
	return nil
}

// GetMessage retrieves a record by ID
func (s *RedisMessageStore) GetMessage(ctx context.Context, id string) (*Record, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetMessages retrieves records for a conversation with pagination
func (s *RedisMessageStore) GetMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]*Record, string, error) {
	if limit <= 0 {
		limit = 100
	}

	start := int64(0)
	if cursor != "" {
		pos, err := s.client.LPos(ctx, s.conversationKey(conversationID), cursor, redis.LPosArgs{}).Result()
		if err == nil {
			start = pos + 1
		}
	}

	ids, err := s.client.LRange(ctx, s.conversationKey(conversationID), start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, "", err
	}
	if len(ids) == 0 {
		return []*Record{}, "", nil
	}

	result := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		result = append(result, rec)
	}

	nextCursor := ""
	if len(ids) == limit {
		nextCursor = ids[len(ids)-1]
	}

	return result, nextCursor, nil
}

// AckMessage marks a record as acknowledged
func (s *RedisMessageStore) AckMessage(ctx context.Context, id string) error {
	rec, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	rec.AckedAt = &now

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.recordKey(id), data, 0)
	if rec.ConversationID != "" {
		pipe.ZRem(ctx, s.pendingKey(rec.ConversationID), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetUnackedMessages retrieves unacknowledged records older than the specified duration
func (s *RedisMessageStore) GetUnackedMessages(ctx context.Context, conversationID string, olderThan time.Duration) ([]*Record, error) {
	cutoff := time.Now().Add(-olderThan).UnixNano()

	ids, err := s.client.ZRangeByScore(ctx, s.pendingKey(conversationID), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	result := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.GetMessage(ctx, id)
		if err != nil {
			continue
		}
		if rec.AckedAt == nil {
			result = append(result, rec)
		}
	}
	return result, nil
}

// IncrementRetry increments the retry count for a record
func (s *RedisMessageStore) IncrementRetry(ctx context.Context, id string) error {
	rec, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	rec.RetryCount++
	now := time.Now()
	rec.LastRetryAt = &now

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.recordKey(id), data, 0).Err()
}

// DeleteMessage removes a record from the store
func (s *RedisMessageStore) DeleteMessage(ctx context.Context, id string) error {
	rec, err := s.GetMessage(ctx, id)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.recordKey(id))
	if rec.ConversationID != "" {
		pipe.LRem(ctx, s.conversationKey(rec.ConversationID), 1, id)
		pipe.ZRem(ctx, s.pendingKey(rec.ConversationID), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Cleanup removes acknowledged records older than the cutoff and any expired records
func (s *RedisMessageStore) Cleanup(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	count := 0

	conversations, err := s.client.SMembers(ctx, s.conversationsKey()).Result()
	if err != nil {
		return 0, err
	}

	for _, convID := range conversations {
		ids, err := s.client.LRange(ctx, s.conversationKey(convID), 0, -1).Result()
		if err != nil {
			continue
		}
		for _, id := range ids {
			rec, err := s.GetMessage(ctx, id)
			if err != nil {
				continue
			}
			acked := rec.AckedAt != nil && rec.AckedAt.Before(cutoff)
			if acked || rec.IsExpired() {
				if err := s.DeleteMessage(ctx, id); err == nil {
					count++
				}
			}
		}
	}

	return count, nil
}

// Stats returns statistics about the message store
func (s *RedisMessageStore) Stats(ctx context.Context) (*MessageStoreStats, error) {
	stats := &MessageStoreStats{
		ConversationCounts: make(map[string]int64),
	}

	conversations, err := s.client.SMembers(ctx, s.conversationsKey()).Result()
	if err != nil {
		return nil, err
	}

	var oldestPending time.Time

	for _, convID := range conversations {
		ids, err := s.client.LRange(ctx, s.conversationKey(convID), 0, -1).Result()
		if err != nil {
			continue
		}
		for _, id := range ids {
			rec, err := s.GetMessage(ctx, id)
			if err != nil {
				continue
			}

			stats.TotalMessages++
			stats.ConversationCounts[convID]++

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
		}
	}

	if !oldestPending.IsZero() {
		stats.OldestPendingAge = time.Since(oldestPending)
	}

	return stats, nil
}

var _ MessageStore = (*RedisMessageStore)(nil)
