package conversation

import (
	"sync"

	"go.uber.org/zap"

	"github.com/vaahai/vaahai/internal/metrics"
	"github.com/vaahai/vaahai/types"
)

// Manager owns a set of conversations and routes messages into them. It is
// the single chokepoint enforcing that only participants may contribute to
// a conversation.
type Manager struct {
	conversations      map[string]*Conversation
	agentConversations map[string]map[string]struct{} // agent id -> conversation ids
	logger             *zap.Logger
	collector          *metrics.Collector
	mu                 sync.RWMutex
}

// NewManager creates a conversation manager. logger and collector may be
// nil.
func NewManager(logger *zap.Logger, collector *metrics.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		conversations:      make(map[string]*Conversation),
		agentConversations: make(map[string]map[string]struct{}),
		logger:             logger.With(zap.String("component", "conversation_manager")),
		collector:          collector,
	}
}

// CreateConversation builds and registers a new conversation. The
// initiator and any participants given via WithParticipants are indexed.
func (m *Manager) CreateConversation(initiatorID string, flowType FlowType, opts ...Option) *Conversation {
	opts = append(opts, WithLogger(m.logger), WithCollector(m.collector))
	conv := NewConversation(initiatorID, flowType, opts...)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.ID()] = conv
	for _, agentID := range conv.Participants() {
		m.indexLocked(agentID, conv.ID())
	}

	m.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID()),
		zap.String("initiator_id", initiatorID),
		zap.String("flow_type", string(flowType)))
	return conv
}

// Conversation returns the conversation with the given ID.
func (m *Manager) Conversation(id string) (*Conversation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conv, ok := m.conversations[id]
	return conv, ok
}

// AgentConversations returns every conversation the agent participates in.
// Dangling index entries are skipped.
func (m *Manager) AgentConversations(agentID string) []*Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids, ok := m.agentConversations[agentID]
	if !ok {
		return nil
	}
	out := make([]*Conversation, 0, len(ids))
	for id := range ids {
		if conv, exists := m.conversations[id]; exists {
			out = append(out, conv)
		}
	}
	return out
}

// EndConversation ends the conversation with the given ID. It returns
// false when the conversation does not exist.
func (m *Manager) EndConversation(id string) bool {
	m.mu.RLock()
	conv, ok := m.conversations[id]
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("cannot end unknown conversation", zap.String("conversation_id", id))
		return false
	}
	conv.End()
	return true
}

// AddParticipant adds an agent to a conversation and updates the index.
// It returns false when the conversation does not exist.
func (m *Manager) AddParticipant(conversationID, agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return false
	}
	conv.AddParticipant(agentID)
	m.indexLocked(agentID, conversationID)
	return true
}

// RemoveParticipant removes an agent from a conversation and updates the
// index. It returns false when the conversation does not exist.
func (m *Manager) RemoveParticipant(conversationID, agentID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return false
	}
	conv.RemoveParticipant(agentID)
	if ids, exists := m.agentConversations[agentID]; exists {
		delete(ids, conversationID)
		if len(ids) == 0 {
			delete(m.agentConversations, agentID)
		}
	}
	return true
}

// RouteMessage appends the message to its conversation. It returns false
// with a logged warning when the conversation ID is absent, the
// conversation is unknown, or the sender is not a participant.
func (m *Manager) RouteMessage(msg *types.Message) bool {
	if msg == nil || msg.ConversationID() == "" {
		m.logger.Warn("cannot route message without conversation id")
		return false
	}

	m.mu.RLock()
	conv, ok := m.conversations[msg.ConversationID()]
	m.mu.RUnlock()

	if !ok {
		m.logger.Warn("cannot route message to unknown conversation",
			zap.String("conversation_id", msg.ConversationID()),
			zap.String("message_id", msg.ID()))
		return false
	}
	if !conv.HasParticipant(msg.SenderID()) {
		m.logger.Warn("sender is not a participant",
			zap.String("conversation_id", msg.ConversationID()),
			zap.String("sender_id", msg.SenderID()))
		return false
	}
	return conv.AddMessage(msg)
}

// Count returns the number of registered conversations.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conversations)
}

// indexLocked assumes the write lock is held.
func (m *Manager) indexLocked(agentID, conversationID string) {
	if m.agentConversations[agentID] == nil {
		m.agentConversations[agentID] = make(map[string]struct{})
	}
	m.agentConversations[agentID][conversationID] = struct{}{}
}
