// Package testutil provides shared mock agents and helpers for tests.
// All mocks support a builder style with error injection.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vaahai/vaahai/types"
)

// MockAgent is a scriptable ChatAgent. By default it echoes the incoming
// text prefixed with its name.
type MockAgent struct {
	name      string
	responses []string
	err       error
	delegate  func(ctx context.Context, msg *types.Message) (*types.Message, error)

	calls int
	mu    sync.Mutex
}

// NewMockAgent creates a mock agent with the given name.
func NewMockAgent(name string) *MockAgent {
	return &MockAgent{name: name}
}

// WithResponses scripts the replies returned on successive calls. The last
// response repeats once the script is exhausted.
func (a *MockAgent) WithResponses(responses ...string) *MockAgent {
	a.responses = responses
	return a
}

// WithError makes every call fail with err.
func (a *MockAgent) WithError(err error) *MockAgent {
	a.err = err
	return a
}

// WithHandler overrides the reply logic entirely.
func (a *MockAgent) WithHandler(fn func(ctx context.Context, msg *types.Message) (*types.Message, error)) *MockAgent {
	a.delegate = fn
	return a
}

// Name implements types.ChatAgent.
func (a *MockAgent) Name() string { return a.name }

// CallCount returns how many times ProcessMessage was invoked.
func (a *MockAgent) CallCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// ProcessMessage implements types.ChatAgent.
func (a *MockAgent) ProcessMessage(ctx context.Context, msg *types.Message) (*types.Message, error) {
	a.mu.Lock()
	call := a.calls
	a.calls++
	a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if a.delegate != nil {
		return a.delegate(ctx, msg)
	}
	if a.err != nil {
		return nil, a.err
	}

	text := fmt.Sprintf("%s: %s", a.name, msg.Text())
	if len(a.responses) > 0 {
		idx := call
		if idx >= len(a.responses) {
			idx = len(a.responses) - 1
		}
		text = a.responses[idx]
	}

	return types.NewTextMessage(a.name, msg.SenderID(), text, types.TextFormatPlain,
		types.WithConversationID(msg.ConversationID()),
		types.WithInReplyTo(msg.ID()))
}

var _ types.ChatAgent = (*MockAgent)(nil)
