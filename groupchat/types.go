// Package groupchat drives multi-agent conversations to completion using a
// configurable speaker-selection topology, round limits, termination
// predicates and message filters.
package groupchat

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vaahai/vaahai/types"
)

// ChatType selects the speaker-selection topology.
type ChatType string

const (
	ChatRoundRobin ChatType = "round_robin"
	ChatSelector   ChatType = "selector"
	ChatBroadcast  ChatType = "broadcast"
	ChatCustom     ChatType = "custom"
)

// HumanInputMode governs when a human-in-the-loop pause is requested. The
// value is threaded to the engine; the human I/O itself lives outside this
// package.
type HumanInputMode string

const (
	HumanInputAlways    HumanInputMode = "always"
	HumanInputNever     HumanInputMode = "never"
	HumanInputTerminate HumanInputMode = "terminate"
	HumanInputFeedback  HumanInputMode = "feedback"
)

// ParseChatType normalizes a chat type string. Unknown values fall back to
// round_robin with a logged warning, never an error.
func ParseChatType(s string, logger *zap.Logger) ChatType {
	switch ChatType(strings.ToLower(strings.TrimSpace(s))) {
	case ChatRoundRobin:
		return ChatRoundRobin
	case ChatSelector:
		return ChatSelector
	case ChatBroadcast:
		return ChatBroadcast
	case ChatCustom:
		return ChatCustom
	default:
		if logger != nil {
			logger.Warn("unknown chat type, falling back to round_robin",
				zap.String("chat_type", s))
		}
		return ChatRoundRobin
	}
}

// ParseHumanInputMode normalizes a human input mode string. Unknown values
// fall back to terminate with a logged warning.
func ParseHumanInputMode(s string, logger *zap.Logger) HumanInputMode {
	switch HumanInputMode(strings.ToLower(strings.TrimSpace(s))) {
	case HumanInputAlways:
		return HumanInputAlways
	case HumanInputNever:
		return HumanInputNever
	case HumanInputTerminate:
		return HumanInputTerminate
	case HumanInputFeedback:
		return HumanInputFeedback
	default:
		if logger != nil {
			logger.Warn("unknown human input mode, falling back to terminate",
				zap.String("human_input_mode", s))
		}
		return HumanInputTerminate
	}
}

// ChatRecord is one entry of a chat transcript: the flattened projection
// used by the chat engines, distinct from types.Message.
type ChatRecord struct {
	Sender   string         `json:"sender"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// IsError reports whether the record stands in for a failed agent call.
func (r ChatRecord) IsError() bool {
	v, ok := r.Metadata["error_type"]
	return ok && v != nil
}

// ChatResult is the outcome of a completed chat run.
type ChatResult struct {
	Result   string       `json:"result"`
	Messages []ChatRecord `json:"messages"`
}

// SelectorFunc picks the next speaker given the transcript so far.
type SelectorFunc func(transcript []ChatRecord, agents []types.ChatAgent) types.ChatAgent

// TerminationFunc reports whether the chat should stop given the
// transcript so far.
type TerminationFunc func(transcript []ChatRecord) bool

// FilterFunc reports whether a record may enter the transcript.
type FilterFunc func(record ChatRecord) bool

// EngineConstructor builds a custom chat engine with the shared
// construction contract: agent list, empty transcript and the engine
// parameters.
type EngineConstructor func(agents []types.ChatAgent, cfg EngineConfig, logger *zap.Logger) Engine

// Config parameterizes a GroupChatManager.
type Config struct {
	ChatType       ChatType
	HumanInputMode HumanInputMode

	// MaxRounds bounds the number of agent turns. Defaults to 10.
	MaxRounds int

	// AllowRepeatSpeaker lets the same agent speak more than once in
	// round-robin rotation.
	AllowRepeatSpeaker bool

	// SpeakerSelectionMethod is passed through to the engine. Defaults to
	// "auto".
	SpeakerSelectionMethod string

	// SendIntroductions asks the engine to open with agent introductions.
	SendIntroductions bool

	// Selector configuration for ChatSelector. SelectorFunc wins over
	// SelectorAgent. With neither set the manager warns and falls back to
	// round robin.
	SelectorFunc  SelectorFunc
	SelectorAgent types.ChatAgent

	// CustomEngine is required for ChatCustom; missing it falls back to
	// round robin with a warning.
	CustomEngine EngineConstructor

	// Termination configuration. TerminationFunc wins over the declarative
	// parameters. Without any, only MaxRounds bounds the chat.
	MaxMessages          int
	CompletionIndicators []string
	TerminationFunc      TerminationFunc

	// Filter configuration. FilterFunc wins over the declarative
	// parameters. Excluded records never enter the transcript.
	ExcludedAgents  []string
	ExcludedContent []string
	FilterFunc      FilterFunc

	// Offline switches to the deterministic network-free backend: no agent
	// is ever invoked and StartChat returns a canned completion.
	Offline bool

	// AgentCallTimeout bounds a single agent call. Zero disables the
	// bound.
	AgentCallTimeout time.Duration
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		ChatType:               ChatRoundRobin,
		HumanInputMode:         HumanInputTerminate,
		MaxRounds:              10,
		AllowRepeatSpeaker:     true,
		SpeakerSelectionMethod: "auto",
	}
}

// EngineConfig is the parameter set handed to a chat engine.
type EngineConfig struct {
	MaxRounds              int
	AllowRepeatSpeaker     bool
	SpeakerSelectionMethod string
	SendIntroductions      bool
	HumanInputMode         HumanInputMode
	AgentCallTimeout       time.Duration

	// Terminate, when non-nil, stops the chat as soon as it returns true.
	Terminate TerminationFunc

	// Filter, when non-nil, gates records entering the transcript.
	Filter FilterFunc

	// OnRound is invoked once per completed round.
	OnRound func()
}

// Engine runs a chat topology over a set of agents.
type Engine interface {
	// Run drives the chat from the initial message and returns the final
	// result plus the transcript.
	Run(ctx context.Context, initial string) (string, []ChatRecord, error)

	// SetAgents replaces the engine's agent set.
	SetAgents(agents []types.ChatAgent)

	// Transcript returns a copy of the transcript so far.
	Transcript() []ChatRecord
}
