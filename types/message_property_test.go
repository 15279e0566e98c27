package types

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// Any valid message must survive a ToMap/MessageFromMap round trip with the
// same identity, addressing, type, and content.
func TestMessage_RoundTrip_Property(t *testing.T) {
	t.Parallel()

	idGen := rapid.StringMatching(`[a-z][a-z0-9_-]{0,15}`)

	rapid.Check(t, func(t *rapid.T) {
		sender := idGen.Draw(t, "sender")
		receiver := rapid.OneOf(rapid.Just(""), idGen).Draw(t, "receiver")

		var (
			msg *Message
			err error
		)
		switch rapid.IntRange(0, 4).Draw(t, "kind") {
		case 0:
			format := rapid.SampledFrom([]TextFormat{TextFormatPlain, TextFormatMarkdown, TextFormatHTML}).Draw(t, "format")
			msg, err = NewTextMessage(sender, receiver, rapid.String().Draw(t, "text"), format)
		case 1:
			args := map[string]any{"q": rapid.String().Draw(t, "q")}
			msg, err = NewFunctionCall(sender, receiver, idGen.Draw(t, "fn"), args)
		case 2:
			var result any
			if rapid.Bool().Draw(t, "null_result") {
				result = nil
			} else {
				result = rapid.String().Draw(t, "result")
			}
			msg, err = NewFunctionResult(sender, receiver, idGen.Draw(t, "fn"), result)
		case 3:
			msg, err = NewErrorMessage(sender, receiver, idGen.Draw(t, "etype"), rapid.String().Draw(t, "emsg"))
		default:
			sysType := rapid.SampledFrom([]SystemMessageType{SystemMessageInfo, SystemMessageWarning, SystemMessageError, SystemMessageDebug}).Draw(t, "stype")
			msg, err = NewSystemMessage(sender, receiver, sysType, rapid.String().Draw(t, "smsg"))
		}
		require.NoError(t, err)

		rebuilt, err := MessageFromMap(msg.ToMap())
		require.NoError(t, err)

		require.Equal(t, msg.ID(), rebuilt.ID())
		require.Equal(t, msg.SenderID(), rebuilt.SenderID())
		require.Equal(t, msg.ReceiverID(), rebuilt.ReceiverID())
		require.Equal(t, msg.Type(), rebuilt.Type())
		require.Equal(t, msg.ConversationID(), rebuilt.ConversationID())
		require.Equal(t, msg.Content(), rebuilt.Content())
	})
}
