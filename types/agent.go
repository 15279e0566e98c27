package types

import "context"

// =============================================================================
// Minimal Agent Capability Interface
// =============================================================================
// ChatAgent is the smallest contract the orchestration core consumes. The
// core never inspects agent internals beyond this interface: concrete
// intelligence (reviewers, auditors, detectors, LLM-backed assistants) are
// independent implementations composed via explicit wrapping functions.
//
// The types package is the lowest-level package with no internal
// dependencies, so placing the interface here avoids circular imports.
// =============================================================================

// ChatAgent is the capability boundary between the orchestration core and
// concrete agent implementations.
type ChatAgent interface {
	// Name returns the agent's display name, used for speaker selection and
	// transcript attribution.
	Name() string
	// ProcessMessage consumes one message and produces the agent's reply.
	ProcessMessage(ctx context.Context, msg *Message) (*Message, error)
}

// ChatAgentFunc adapts a function to the ChatAgent interface.
type ChatAgentFunc struct {
	AgentName string
	Fn        func(ctx context.Context, msg *Message) (*Message, error)
}

// Name returns the agent's display name.
func (a ChatAgentFunc) Name() string { return a.AgentName }

// ProcessMessage invokes the wrapped function.
func (a ChatAgentFunc) ProcessMessage(ctx context.Context, msg *Message) (*Message, error) {
	return a.Fn(ctx, msg)
}
