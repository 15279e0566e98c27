package types

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the shape of a message's content payload.
type MessageType string

const (
	MessageTypeText           MessageType = "text"
	MessageTypeFunctionCall   MessageType = "function_call"
	MessageTypeFunctionResult MessageType = "function_result"
	MessageTypeError          MessageType = "error"
	MessageTypeSystem         MessageType = "system"
)

// TextFormat enumerates the rendering formats of a text message.
type TextFormat string

const (
	TextFormatPlain    TextFormat = "plain"
	TextFormatMarkdown TextFormat = "markdown"
	TextFormatHTML     TextFormat = "html"
)

// SystemMessageType enumerates the severities of a system message.
type SystemMessageType string

const (
	SystemMessageInfo    SystemMessageType = "info"
	SystemMessageWarning SystemMessageType = "warning"
	SystemMessageError   SystemMessageType = "error"
	SystemMessageDebug   SystemMessageType = "debug"
)

// ErrorTypeProcessing marks error messages produced when an agent's
// ProcessMessage fails and the failure is converted in-band.
const ErrorTypeProcessing = "processing_error"

// Message is the envelope exchanged between agents. It is validated against
// the content schema for its type at construction time and immutable
// afterwards, except for SetSenderID and SetConversationID.
//
// An empty receiver ID means broadcast.
type Message struct {
	id             string
	senderID       string
	receiverID     string
	content        map[string]any
	timestamp      time.Time
	msgType        MessageType
	conversationID string
	inReplyTo      string
	metadata       map[string]any
}

// MessageOption customizes message construction.
type MessageOption func(*Message)

// WithID sets an explicit message ID instead of generating one.
func WithID(id string) MessageOption {
	return func(m *Message) { m.id = id }
}

// WithConversationID sets an explicit conversation ID instead of generating one.
func WithConversationID(id string) MessageOption {
	return func(m *Message) { m.conversationID = id }
}

// WithInReplyTo links the message to the message it replies to.
func WithInReplyTo(messageID string) MessageOption {
	return func(m *Message) { m.inReplyTo = messageID }
}

// WithTimestamp sets an explicit creation time instead of time.Now.
func WithTimestamp(t time.Time) MessageOption {
	return func(m *Message) { m.timestamp = t }
}

// WithMetadata attaches open key-value metadata.
func WithMetadata(md map[string]any) MessageOption {
	return func(m *Message) { m.metadata = maps.Clone(md) }
}

// NewMessage creates a message validated against the default schema registry.
func NewMessage(senderID, receiverID string, content map[string]any, msgType MessageType, opts ...MessageOption) (*Message, error) {
	return NewMessageWithRegistry(defaultRegistry, senderID, receiverID, content, msgType, opts...)
}

// NewMessageWithRegistry creates a message validated against the given
// registry. It generates id, timestamp, and conversation id when absent and
// returns a *ValidationError when the content does not satisfy the schema
// registered for msgType.
func NewMessageWithRegistry(reg *SchemaRegistry, senderID, receiverID string, content map[string]any, msgType MessageType, opts ...MessageOption) (*Message, error) {
	if reg == nil {
		reg = defaultRegistry
	}
	if senderID == "" {
		return nil, NewValidationError("sender_id", "sender_id must not be empty")
	}
	if content == nil {
		return nil, NewValidationError("content", "content must not be nil")
	}

	m := &Message{
		senderID:   senderID,
		receiverID: receiverID,
		content:    maps.Clone(content),
		msgType:    msgType,
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.id == "" {
		m.id = uuid.New().String()
	}
	if m.conversationID == "" {
		m.conversationID = uuid.New().String()
	}
	if m.timestamp.IsZero() {
		m.timestamp = time.Now().UTC()
	}

	// Text messages default to plain format when none is given.
	if msgType == MessageTypeText {
		if _, ok := m.content["format"]; !ok {
			m.content["format"] = string(TextFormatPlain)
		}
	}

	if err := reg.ValidateContent(msgType, m.content); err != nil {
		return nil, err
	}
	return m, nil
}

// NewTextMessage creates a text message.
func NewTextMessage(senderID, receiverID, text string, format TextFormat, opts ...MessageOption) (*Message, error) {
	if format == "" {
		format = TextFormatPlain
	}
	content := map[string]any{
		"text":   text,
		"format": string(format),
	}
	return NewMessage(senderID, receiverID, content, MessageTypeText, opts...)
}

// NewFunctionCall creates a function call message.
func NewFunctionCall(senderID, receiverID, name string, arguments map[string]any, opts ...MessageOption) (*Message, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	content := map[string]any{
		"name":      name,
		"arguments": arguments,
	}
	return NewMessage(senderID, receiverID, content, MessageTypeFunctionCall, opts...)
}

// NewFunctionResult creates a function result message. A nil result is
// carried as an explicit null.
func NewFunctionResult(senderID, receiverID, name string, result any, opts ...MessageOption) (*Message, error) {
	content := map[string]any{
		"name":   name,
		"result": result,
	}
	return NewMessage(senderID, receiverID, content, MessageTypeFunctionResult, opts...)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(senderID, receiverID, errorType, errorMessage string, opts ...MessageOption) (*Message, error) {
	content := map[string]any{
		"error_type":    errorType,
		"error_message": errorMessage,
	}
	return NewMessage(senderID, receiverID, content, MessageTypeError, opts...)
}

// NewSystemMessage creates a system message.
func NewSystemMessage(senderID, receiverID string, sysType SystemMessageType, text string, opts ...MessageOption) (*Message, error) {
	content := map[string]any{
		"system_message_type": string(sysType),
		"system_message":      text,
	}
	return NewMessage(senderID, receiverID, content, MessageTypeSystem, opts...)
}

// ID returns the unique message ID.
func (m *Message) ID() string { return m.id }

// SenderID returns the sender agent ID.
func (m *Message) SenderID() string { return m.senderID }

// ReceiverID returns the receiver agent ID. Empty means broadcast.
func (m *Message) ReceiverID() string { return m.receiverID }

// IsBroadcast reports whether the message is addressed to every subscriber.
func (m *Message) IsBroadcast() bool { return m.receiverID == "" }

// Type returns the message type.
func (m *Message) Type() MessageType { return m.msgType }

// Timestamp returns the creation time.
func (m *Message) Timestamp() time.Time { return m.timestamp }

// ConversationID returns the conversation the message belongs to.
func (m *Message) ConversationID() string { return m.conversationID }

// InReplyTo returns the ID of the message this one replies to, if any.
func (m *Message) InReplyTo() string { return m.inReplyTo }

// Content returns a copy of the content payload.
func (m *Message) Content() map[string]any {
	return maps.Clone(m.content)
}

// Metadata returns a copy of the metadata map.
func (m *Message) Metadata() map[string]any {
	return maps.Clone(m.metadata)
}

// Text returns the text field of a text message, or "" for other types.
func (m *Message) Text() string {
	if m.msgType != MessageTypeText {
		return ""
	}
	s, _ := m.content["text"].(string)
	return s
}

// SetSenderID overrides the sender ID. This is one of the two permitted
// post-construction mutations.
func (m *Message) SetSenderID(senderID string) { m.senderID = senderID }

// SetConversationID overrides the conversation ID. This is one of the two
// permitted post-construction mutations.
func (m *Message) SetConversationID(conversationID string) { m.conversationID = conversationID }

// IsText reports whether the message is a text message.
func (m *Message) IsText() bool { return m.msgType == MessageTypeText }

// IsFunctionCall reports whether the message is a function call.
func (m *Message) IsFunctionCall() bool { return m.msgType == MessageTypeFunctionCall }

// IsFunctionResult reports whether the message is a function result.
func (m *Message) IsFunctionResult() bool { return m.msgType == MessageTypeFunctionResult }

// IsError reports whether the message is an error message.
func (m *Message) IsError() bool { return m.msgType == MessageTypeError }

// IsSystem reports whether the message is a system message.
func (m *Message) IsSystem() bool { return m.msgType == MessageTypeSystem }

// ToMap returns the wire projection of the message. The receiver_id key is
// always present; it is nil for broadcast messages. The timestamp is encoded
// as RFC 3339.
func (m *Message) ToMap() map[string]any {
	var receiver any
	if m.receiverID != "" {
		receiver = m.receiverID
	}
	out := map[string]any{
		"id":              m.id,
		"sender_id":       m.senderID,
		"receiver_id":     receiver,
		"content":         maps.Clone(m.content),
		"timestamp":       m.timestamp.Format(time.RFC3339Nano),
		"message_type":    string(m.msgType),
		"conversation_id": m.conversationID,
	}
	if m.inReplyTo != "" {
		out["in_reply_to"] = m.inReplyTo
	}
	if len(m.metadata) > 0 {
		out["metadata"] = maps.Clone(m.metadata)
	}
	return out
}

// MessageFromMap rebuilds a message from its wire projection using the
// default registry.
func MessageFromMap(data map[string]any) (*Message, error) {
	return MessageFromMapWithRegistry(defaultRegistry, data)
}

// MessageFromMapWithRegistry rebuilds a message from its wire projection.
// The base fields sender_id, receiver_id (key presence, value may be null),
// content, timestamp, and message_type are required; id and conversation_id
// are generated when absent. Content is re-validated against the registry.
func MessageFromMapWithRegistry(reg *SchemaRegistry, data map[string]any) (*Message, error) {
	senderID, _ := data["sender_id"].(string)
	if senderID == "" {
		return nil, NewValidationError("sender_id", "sender_id is required")
	}

	rawReceiver, ok := data["receiver_id"]
	if !ok {
		return nil, NewValidationError("receiver_id", "receiver_id key is required (value may be null)")
	}
	receiverID := ""
	if rawReceiver != nil {
		receiverID, ok = rawReceiver.(string)
		if !ok {
			return nil, NewValidationError("receiver_id", fmt.Sprintf("receiver_id must be a string or null, got %T", rawReceiver))
		}
	}

	content, ok := data["content"].(map[string]any)
	if !ok {
		return nil, NewValidationError("content", "content is required and must be an object")
	}

	rawType, ok := data["message_type"].(string)
	if !ok || rawType == "" {
		return nil, NewValidationError("message_type", "message_type is required")
	}

	rawTimestamp, ok := data["timestamp"].(string)
	if !ok || rawTimestamp == "" {
		return nil, NewValidationError("timestamp", "timestamp is required")
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTimestamp)
	if err != nil {
		return nil, NewValidationError("timestamp", fmt.Sprintf("timestamp must be RFC 3339: %v", err))
	}

	opts := []MessageOption{WithTimestamp(ts)}
	if id, _ := data["id"].(string); id != "" {
		opts = append(opts, WithID(id))
	}
	if convID, _ := data["conversation_id"].(string); convID != "" {
		opts = append(opts, WithConversationID(convID))
	}
	if inReplyTo, _ := data["in_reply_to"].(string); inReplyTo != "" {
		opts = append(opts, WithInReplyTo(inReplyTo))
	}
	if md, _ := data["metadata"].(map[string]any); md != nil {
		opts = append(opts, WithMetadata(md))
	}

	return NewMessageWithRegistry(reg, senderID, receiverID, content, MessageType(rawType), opts...)
}
