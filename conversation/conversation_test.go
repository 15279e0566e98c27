package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaahai/vaahai/types"
)

func newConvMessage(t *testing.T, sender, conversationID, text string) *types.Message {
	t.Helper()
	msg, err := types.NewTextMessage(sender, "", text, types.TextFormatPlain,
		types.WithConversationID(conversationID))
	require.NoError(t, err)
	return msg
}

func TestConversationLifecycle(t *testing.T) {
	c := NewConversation("agent1", FlowTurnBased)
	assert.Equal(t, StatusCreated, c.Status())

	assert.True(t, c.Start())
	assert.Equal(t, StatusActive, c.Status())

	assert.True(t, c.Pause())
	assert.Equal(t, StatusPaused, c.Status())

	assert.True(t, c.Resume())
	assert.Equal(t, StatusActive, c.Status())

	assert.True(t, c.End())
	assert.Equal(t, StatusEnded, c.Status())
	require.NotNil(t, c.EndedAt())
}

func TestConversationInvalidTransitions(t *testing.T) {
	t.Run("start twice", func(t *testing.T) {
		c := NewConversation("agent1", FlowBroadcast)
		require.True(t, c.Start())
		assert.False(t, c.Start())
		assert.Equal(t, StatusActive, c.Status())
	})

	t.Run("pause before start", func(t *testing.T) {
		c := NewConversation("agent1", FlowBroadcast)
		assert.False(t, c.Pause())
		assert.Equal(t, StatusCreated, c.Status())
	})

	t.Run("resume active", func(t *testing.T) {
		c := NewConversation("agent1", FlowBroadcast)
		require.True(t, c.Start())
		assert.False(t, c.Resume())
		assert.Equal(t, StatusActive, c.Status())
	})

	t.Run("end is terminal", func(t *testing.T) {
		c := NewConversation("agent1", FlowBroadcast)
		require.True(t, c.End()) // ending from created is allowed
		assert.False(t, c.End())
		assert.False(t, c.Start())
		assert.Equal(t, StatusEnded, c.Status())
	})
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusCreated, StatusActive))
	assert.True(t, CanTransition(StatusActive, StatusPaused))
	assert.True(t, CanTransition(StatusPaused, StatusActive))
	assert.True(t, CanTransition(StatusPaused, StatusEnded))
	assert.False(t, CanTransition(StatusCreated, StatusPaused))
	assert.False(t, CanTransition(StatusEnded, StatusActive))
}

func TestAddMessage(t *testing.T) {
	c := NewConversation("agent1", FlowBroadcast)
	c.Start()

	msg := newConvMessage(t, "agent1", c.ID(), "hello")
	require.True(t, c.AddMessage(msg))
	assert.Len(t, c.History(), 1)

	c.End()

	// Messages are rejected once the conversation has ended.
	assert.False(t, c.AddMessage(newConvMessage(t, "agent1", c.ID(), "too late")))
	assert.Len(t, c.History(), 1)
}

func TestTurnCycling(t *testing.T) {
	c := NewConversation("a", FlowTurnBased, WithParticipants("b", "c"))
	c.Start()

	// Initiator goes first, then participants in registration order,
	// wrapping around.
	expected := []string{"a", "b", "c", "a", "b"}
	for i, want := range expected {
		next, ok := c.NextTurn()
		require.True(t, ok)
		assert.Equal(t, want, next, "turn %d", i)
		require.True(t, c.AddMessage(newConvMessage(t, next, c.ID(), "turn")))
	}
}

func TestNextTurnNonTurnBased(t *testing.T) {
	c := NewConversation("a", FlowBroadcast, WithParticipants("b"))
	_, ok := c.NextTurn()
	assert.False(t, ok)
}

func TestParticipants(t *testing.T) {
	c := NewConversation("a", FlowTurnBased)

	assert.True(t, c.AddParticipant("b"))
	assert.False(t, c.AddParticipant("b")) // idempotent
	assert.Equal(t, []string{"a", "b"}, c.Participants())
	assert.True(t, c.HasParticipant("a"))
	assert.False(t, c.HasParticipant("z"))

	assert.True(t, c.RemoveParticipant("b"))
	assert.False(t, c.RemoveParticipant("b"))
	assert.Equal(t, []string{"a"}, c.Participants())
}

func TestRemoveParticipantClampsTurn(t *testing.T) {
	c := NewConversation("a", FlowTurnBased, WithParticipants("b", "c"))
	c.Start()

	// Advance the pointer to the last slot.
	require.True(t, c.AddMessage(newConvMessage(t, "a", c.ID(), "1")))
	require.True(t, c.AddMessage(newConvMessage(t, "b", c.ID(), "2")))
	next, ok := c.NextTurn()
	require.True(t, ok)
	require.Equal(t, "c", next)

	// Removing the last participant clamps the pointer back into range.
	require.True(t, c.RemoveParticipant("c"))
	next, ok = c.NextTurn()
	require.True(t, ok)
	assert.Equal(t, "a", next)
}

func TestHistoryIsCopy(t *testing.T) {
	c := NewConversation("a", FlowBroadcast)
	c.Start()
	require.True(t, c.AddMessage(newConvMessage(t, "a", c.ID(), "hello")))

	history := c.History()
	history[0] = nil
	assert.NotNil(t, c.History()[0])
}

func TestMetadata(t *testing.T) {
	c := NewConversation("a", FlowBroadcast, WithMetadata(map[string]any{"topic": "review"}))

	md := c.Metadata()
	assert.Equal(t, "review", md["topic"])

	// The returned map is a copy.
	md["topic"] = "mutated"
	assert.Equal(t, "review", c.Metadata()["topic"])
}
