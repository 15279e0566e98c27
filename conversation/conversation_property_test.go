package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/vaahai/vaahai/types"
)

// In a turn-based conversation the turn pointer must always equal the
// number of accepted messages modulo the turn order length, whatever the
// senders were.
func TestConversation_TurnCycling_Property(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		extra := rapid.IntRange(0, 4).Draw(t, "extra_participants")
		participants := make([]string, 0, extra)
		for i := 0; i < extra; i++ {
			participants = append(participants, fmt.Sprintf("agent%d", i+1))
		}

		conv := NewConversation("agent0", FlowTurnBased, WithParticipants(participants...))
		order := conv.TurnOrder()
		require.Len(t, order, extra+1)

		next, ok := conv.NextTurn()
		require.True(t, ok)
		require.Equal(t, order[0], next)

		accepted := 0
		steps := rapid.IntRange(0, 20).Draw(t, "messages")
		for i := 0; i < steps; i++ {
			sender := rapid.SampledFrom(order).Draw(t, "sender")
			msg, err := types.NewTextMessage(sender, "", fmt.Sprintf("m%d", i),
				types.TextFormatPlain, types.WithConversationID(conv.ID()))
			require.NoError(t, err)

			require.True(t, conv.AddMessage(msg))
			accepted++

			next, ok = conv.NextTurn()
			require.True(t, ok)
			require.Equal(t, order[accepted%len(order)], next)
		}

		require.Len(t, conv.History(), accepted)
	})
}
