package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConversation(t *testing.T) {
	m := NewManager(nil, nil)

	conv := m.CreateConversation("agent1", FlowTurnBased, WithParticipants("agent2"))
	require.NotNil(t, conv)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Conversation(conv.ID())
	require.True(t, ok)
	assert.Same(t, conv, got)

	_, ok = m.Conversation("missing")
	assert.False(t, ok)
}

func TestCreateConversationExplicitID(t *testing.T) {
	m := NewManager(nil, nil)

	conv := m.CreateConversation("agent1", FlowDirected, WithID("conv-42"))
	assert.Equal(t, "conv-42", conv.ID())

	got, ok := m.Conversation("conv-42")
	require.True(t, ok)
	assert.Same(t, conv, got)
}

func TestAgentConversations(t *testing.T) {
	m := NewManager(nil, nil)

	c1 := m.CreateConversation("agent1", FlowTurnBased, WithParticipants("agent2"))
	c2 := m.CreateConversation("agent2", FlowBroadcast)

	convs := m.AgentConversations("agent2")
	require.Len(t, convs, 2)

	convs = m.AgentConversations("agent1")
	require.Len(t, convs, 1)
	assert.Equal(t, c1.ID(), convs[0].ID())

	assert.Empty(t, m.AgentConversations("stranger"))
	_ = c2
}

func TestEndConversation(t *testing.T) {
	m := NewManager(nil, nil)
	conv := m.CreateConversation("agent1", FlowBroadcast)

	assert.True(t, m.EndConversation(conv.ID()))
	assert.Equal(t, StatusEnded, conv.Status())

	assert.False(t, m.EndConversation("missing"))
}

func TestManagerParticipants(t *testing.T) {
	m := NewManager(nil, nil)
	conv := m.CreateConversation("agent1", FlowTurnBased)

	require.True(t, m.AddParticipant(conv.ID(), "agent2"))
	assert.True(t, conv.HasParticipant("agent2"))
	require.Len(t, m.AgentConversations("agent2"), 1)

	require.True(t, m.RemoveParticipant(conv.ID(), "agent2"))
	assert.False(t, conv.HasParticipant("agent2"))
	assert.Empty(t, m.AgentConversations("agent2"))

	assert.False(t, m.AddParticipant("missing", "agent2"))
	assert.False(t, m.RemoveParticipant("missing", "agent2"))
}

func TestRouteMessage(t *testing.T) {
	m := NewManager(nil, nil)
	conv := m.CreateConversation("agent1", FlowTurnBased, WithParticipants("agent2"))
	conv.Start()

	t.Run("participant", func(t *testing.T) {
		msg := newConvMessage(t, "agent1", conv.ID(), "hello")
		require.True(t, m.RouteMessage(msg))
		assert.Len(t, conv.History(), 1)
	})

	t.Run("non-participant", func(t *testing.T) {
		msg := newConvMessage(t, "intruder", conv.ID(), "let me in")
		assert.False(t, m.RouteMessage(msg))
		assert.Len(t, conv.History(), 1)
	})

	t.Run("unknown conversation", func(t *testing.T) {
		msg := newConvMessage(t, "agent1", "no-such-conversation", "hello")
		assert.False(t, m.RouteMessage(msg))
	})

	t.Run("nil message", func(t *testing.T) {
		assert.False(t, m.RouteMessage(nil))
	})

	t.Run("ended conversation", func(t *testing.T) {
		conv.End()
		msg := newConvMessage(t, "agent1", conv.ID(), "too late")
		assert.False(t, m.RouteMessage(msg))
		assert.Len(t, conv.History(), 1)
	})
}
