package persistence

import (
	"context"
	"time"

	"github.com/vaahai/vaahai/types"
)

// MessageStore defines the interface for message persistence.
// It provides reliable message delivery with acknowledgment and retry support.
type MessageStore interface {
	Store

	// SaveMessage persists a single message record
	SaveMessage(ctx context.Context, rec *Record) error

	// SaveMessages persists multiple records atomically
	SaveMessages(ctx context.Context, recs []*Record) error

	// GetMessage retrieves a record by ID
	GetMessage(ctx context.Context, id string) (*Record, error)

	// GetMessages retrieves records for a conversation with pagination.
	// Returns records, next cursor, and error.
	GetMessages(ctx context.Context, conversationID string, cursor string, limit int) ([]*Record, string, error)

	// AckMessage marks a record as acknowledged/delivered
	AckMessage(ctx context.Context, id string) error

	// GetUnackedMessages retrieves unacknowledged records older than the
	// specified duration. These are candidates for redelivery.
	GetUnackedMessages(ctx context.Context, conversationID string, olderThan time.Duration) ([]*Record, error)

	// IncrementRetry increments the retry count for a record
	IncrementRetry(ctx context.Context, id string) error

	// DeleteMessage removes a record from the store
	DeleteMessage(ctx context.Context, id string) error

	// Cleanup removes old acknowledged records
	Cleanup(ctx context.Context, olderThan time.Duration) (int, error)

	// Stats returns statistics about the message store
	Stats(ctx context.Context) (*MessageStoreStats, error)
}

// Record is the persistent projection of a types.Message. The conversation
// ID doubles as the topic under which records are indexed.
type Record struct {
	// ID is the unique message identifier
	ID string `json:"id"`

	// ConversationID is the conversation the message belongs to
	ConversationID string `json:"conversation_id"`

	// SenderID is the sender agent ID
	SenderID string `json:"sender_id"`

	// ReceiverID is the recipient agent ID (empty for broadcast)
	ReceiverID string `json:"receiver_id,omitempty"`

	// Type is the message type (text, function_call, ...)
	Type string `json:"type"`

	// Content is the structured message payload
	Content map[string]any `json:"content"`

	// Metadata contains open message metadata
	Metadata map[string]any `json:"metadata,omitempty"`

	// CreatedAt is when the message was created
	CreatedAt time.Time `json:"created_at"`

	// AckedAt is when the message was acknowledged (nil if not acked)
	AckedAt *time.Time `json:"acked_at,omitempty"`

	// RetryCount is the number of delivery attempts
	RetryCount int `json:"retry_count"`

	// LastRetryAt is when the last retry was attempted
	LastRetryAt *time.Time `json:"last_retry_at,omitempty"`

	// ExpiresAt is when the message expires (optional)
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// RecordFromMessage builds the persistent projection of a message.
func RecordFromMessage(msg *types.Message) *Record {
	return &Record{
		ID:             msg.ID(),
		ConversationID: msg.ConversationID(),
		SenderID:       msg.SenderID(),
		ReceiverID:     msg.ReceiverID(),
		Type:           string(msg.Type()),
		Content:        msg.Content(),
		Metadata:       msg.Metadata(),
		CreatedAt:      msg.Timestamp(),
	}
}

// IsExpired checks if the record has expired
func (r *Record) IsExpired() bool {
	if r.ExpiresAt == nil {
		return false
	}
	return time.Now().After(*r.ExpiresAt)
}

// ShouldRetry reports whether the record is still eligible for redelivery
// under the given retry configuration.
func (r *Record) ShouldRetry(cfg RetryConfig) bool {
	if r.AckedAt != nil || r.IsExpired() {
		return false
	}
	return r.RetryCount < cfg.MaxRetries
}

// NextRetryTime returns the earliest time the next redelivery attempt may run.
func (r *Record) NextRetryTime(cfg RetryConfig) time.Time {
	base := r.CreatedAt
	if r.LastRetryAt != nil {
		base = *r.LastRetryAt
	}
	return base.Add(cfg.CalculateBackoff(r.RetryCount))
}

// MessageStoreStats contains statistics about a message store
type MessageStoreStats struct {
	TotalMessages      int64            `json:"total_messages"`
	PendingMessages    int64            `json:"pending_messages"`
	AckedMessages      int64            `json:"acked_messages"`
	ExpiredMessages    int64            `json:"expired_messages"`
	ConversationCounts map[string]int64 `json:"conversation_counts"`
	OldestPendingAge   time.Duration    `json:"oldest_pending_age"`
}
