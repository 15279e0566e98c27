// Package vaahai provides a top-level convenience entry point for wiring
// the messaging and orchestration pieces with minimal boilerplate.
//
// Usage:
//
//	import "github.com/vaahai/vaahai"
//
//	bus := vaahai.NewBus()
//	manager := vaahai.NewConversationManager(nil)
//	chat := vaahai.NewGroupChat(agents, vaahai.ChatConfig{MaxRounds: 5})
//
// These are thin wrappers around the bus, conversation and groupchat
// packages; use them when you prefer the shorter import path.
package vaahai

import (
	"go.uber.org/zap"

	"github.com/vaahai/vaahai/bus"
	"github.com/vaahai/vaahai/conversation"
	"github.com/vaahai/vaahai/groupchat"
	"github.com/vaahai/vaahai/types"
)

// Message is the typed envelope exchanged between agents.
type Message = types.Message

// ChatAgent is the capability interface agents must implement.
type ChatAgent = types.ChatAgent

// ChatConfig parameterizes a group chat.
type ChatConfig = groupchat.Config

// ChatResult is the outcome of a completed group chat.
type ChatResult = groupchat.ChatResult

// NewBus creates a message bus with no processors attached.
func NewBus(opts ...bus.Option) *bus.MessageBus {
	return bus.NewMessageBus(opts...)
}

// NewConversationManager creates a conversation manager. logger may be
// nil.
func NewConversationManager(logger *zap.Logger) *conversation.Manager {
	return conversation.NewManager(logger, nil)
}

// NewGroupChat composes agents into a chat topology.
func NewGroupChat(agents []ChatAgent, cfg ChatConfig) *groupchat.GroupChatManager {
	return groupchat.NewGroupChatManager(agents, cfg, nil, nil)
}

// Convenience re-exports of the message constructors.

// NewTextMessage builds a validated text message.
var NewTextMessage = types.NewTextMessage

// NewFunctionCall builds a validated function call message.
var NewFunctionCall = types.NewFunctionCall

// NewErrorMessage builds a validated error message.
var NewErrorMessage = types.NewErrorMessage
