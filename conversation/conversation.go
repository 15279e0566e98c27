// Package conversation implements the conversation lifecycle state machine
// and the manager that routes messages into conversations.
package conversation

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vaahai/vaahai/internal/metrics"
	"github.com/vaahai/vaahai/types"
)

// FlowType describes how messages move between participants.
type FlowType string

const (
	FlowTurnBased FlowType = "turn_based"
	FlowBroadcast FlowType = "broadcast"
	FlowDirected  FlowType = "directed"
)

// Status is the lifecycle state of a conversation.
type Status string

const (
	StatusCreated Status = "created"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusEnded   Status = "ended"
)

// validTransitions defines the legal lifecycle transitions. Ended is
// terminal.
var validTransitions = map[Status][]Status{
	StatusCreated: {StatusActive, StatusEnded},
	StatusActive:  {StatusPaused, StatusEnded},
	StatusPaused:  {StatusActive, StatusEnded},
	StatusEnded:   {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Conversation is a stateful exchange between a set of participants.
// All methods are safe for concurrent use.
type Conversation struct {
	id           string
	initiatorID  string
	flowType     FlowType
	participants map[string]struct{}
	turnOrder    []string
	currentTurn  int
	status       Status
	history      []*types.Message
	metadata     map[string]any
	createdAt    time.Time
	updatedAt    time.Time
	endedAt      *time.Time

	logger    *zap.Logger
	collector *metrics.Collector
	mu        sync.RWMutex
}

// Option configures a Conversation at construction time.
type Option func(*Conversation)

// WithID sets an explicit conversation ID instead of a generated one.
func WithID(id string) Option {
	return func(c *Conversation) { c.id = id }
}

// WithParticipants registers additional participants beyond the initiator.
func WithParticipants(ids ...string) Option {
	return func(c *Conversation) {
		for _, id := range ids {
			c.addParticipantLocked(id)
		}
	}
}

// WithMetadata attaches open key-value metadata.
func WithMetadata(metadata map[string]any) Option {
	return func(c *Conversation) {
		for k, v := range metadata {
			c.metadata[k] = v
		}
	}
}

// WithLogger sets the conversation logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Conversation) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCollector attaches a metrics collector.
func WithCollector(collector *metrics.Collector) Option {
	return func(c *Conversation) { c.collector = collector }
}

// NewConversation creates a conversation in the created state. The
// initiator is always a participant.
func NewConversation(initiatorID string, flowType FlowType, opts ...Option) *Conversation {
	now := time.Now().UTC()
	c := &Conversation{
		id:           uuid.New().String(),
		initiatorID:  initiatorID,
		flowType:     flowType,
		participants: make(map[string]struct{}),
		status:       StatusCreated,
		metadata:     make(map[string]any),
		createdAt:    now,
		updatedAt:    now,
		logger:       zap.NewNop(),
	}
	c.addParticipantLocked(initiatorID)
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		zap.String("component", "conversation"),
		zap.String("conversation_id", c.id),
	)
	return c
}

// ID returns the conversation ID.
func (c *Conversation) ID() string { return c.id }

// InitiatorID returns the ID of the agent that started the conversation.
func (c *Conversation) InitiatorID() string { return c.initiatorID }

// Flow returns the conversation flow type.
func (c *Conversation) Flow() FlowType { return c.flowType }

// Status returns the current lifecycle state.
func (c *Conversation) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Participants returns the participant IDs in sorted order.
func (c *Conversation) Participants() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.participants))
	for id := range c.participants {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// HasParticipant reports whether the agent is a participant.
func (c *Conversation) HasParticipant(agentID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.participants[agentID]
	return ok
}

// TurnOrder returns a copy of the turn order.
func (c *Conversation) TurnOrder() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, len(c.turnOrder))
	copy(out, c.turnOrder)
	return out
}

// History returns a copy of the message history.
func (c *Conversation) History() []*types.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*types.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Metadata returns a copy of the conversation metadata.
func (c *Conversation) Metadata() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]any, len(c.metadata))
	for k, v := range c.metadata {
		out[k] = v
	}
	return out
}

// CreatedAt returns the creation time.
func (c *Conversation) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last mutation time.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// EndedAt returns the end time, or nil while the conversation is live.
func (c *Conversation) EndedAt() *time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endedAt
}

// Start activates a created conversation. An invalid transition is logged
// and ignored.
func (c *Conversation) Start() bool { return c.transition(StatusActive, StatusCreated) }

// Pause suspends an active conversation.
func (c *Conversation) Pause() bool { return c.transition(StatusPaused, StatusActive) }

// Resume reactivates a paused conversation.
func (c *Conversation) Resume() bool { return c.transition(StatusActive, StatusPaused) }

// End terminates the conversation from any live state. Ending an already
// ended conversation is a logged no-op.
func (c *Conversation) End() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusEnded {
		c.logger.Warn("conversation already ended")
		return false
	}

	from := c.status
	c.status = StatusEnded
	now := time.Now().UTC()
	c.endedAt = &now
	c.updatedAt = now

	c.logger.Info("conversation state changed",
		zap.String("from", string(from)),
		zap.String("to", string(StatusEnded)))
	if c.collector != nil {
		c.collector.RecordConversationTransition(string(from), string(StatusEnded))
	}
	return true
}

// transition moves to the target status when the current status matches.
func (c *Conversation) transition(to, requiredFrom Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != requiredFrom || !CanTransition(c.status, to) {
		c.logger.Warn("invalid state transition",
			zap.String("from", string(c.status)),
			zap.String("to", string(to)))
		return false
	}

	from := c.status
	c.status = to
	c.updatedAt = time.Now().UTC()

	c.logger.Info("conversation state changed",
		zap.String("from", string(from)),
		zap.String("to", string(to)))
	if c.collector != nil {
		c.collector.RecordConversationTransition(string(from), string(to))
	}
	return true
}

// AddMessage appends a message to the history. Messages are rejected with
// a warning once the conversation has ended. The message's conversation ID
// is back-filled when unset, and turn-based flow advances the turn pointer.
func (c *Conversation) AddMessage(msg *types.Message) bool {
	if msg == nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusEnded {
		c.logger.Warn("message rejected, conversation has ended",
			zap.String("message_id", msg.ID()))
		return false
	}

	if msg.ConversationID() == "" {
		msg.SetConversationID(c.id)
	}

	c.history = append(c.history, msg)
	c.updatedAt = time.Now().UTC()

	if c.flowType == FlowTurnBased && len(c.turnOrder) > 0 {
		c.currentTurn = (c.currentTurn + 1) % len(c.turnOrder)
		if c.collector != nil {
			c.collector.RecordTurnAdvance(string(c.flowType))
		}
	}
	return true
}

// AddParticipant registers an agent. Adding an existing participant is a
// no-op. It reports whether the set changed.
func (c *Conversation) AddParticipant(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.addParticipantLocked(agentID) {
		return false
	}
	c.updatedAt = time.Now().UTC()
	return true
}

func (c *Conversation) addParticipantLocked(agentID string) bool {
	if agentID == "" {
		return false
	}
	if _, exists := c.participants[agentID]; exists {
		return false
	}
	c.participants[agentID] = struct{}{}
	c.turnOrder = append(c.turnOrder, agentID)
	return true
}

// RemoveParticipant unregisters an agent, keeping the turn pointer in
// range. Removing an unknown agent is a no-op.
func (c *Conversation) RemoveParticipant(agentID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.participants[agentID]; !exists {
		return false
	}
	delete(c.participants, agentID)

	for i, id := range c.turnOrder {
		if id == agentID {
			c.turnOrder = append(c.turnOrder[:i], c.turnOrder[i+1:]...)
			break
		}
	}
	if len(c.turnOrder) == 0 {
		c.currentTurn = 0
	} else if c.currentTurn >= len(c.turnOrder) {
		c.currentTurn %= len(c.turnOrder)
	}

	c.updatedAt = time.Now().UTC()
	return true
}

// NextTurn returns the agent whose turn it is. The second return is false
// for non-turn-based flows and empty turn orders.
func (c *Conversation) NextTurn() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.flowType != FlowTurnBased || len(c.turnOrder) == 0 {
		return "", false
	}
	return c.turnOrder[c.currentTurn], true
}
