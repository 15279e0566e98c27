package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/vaahai/vaahai/types"
)

// Processor transforms a message before it is delivered. Returning a
// modified copy is preferred over mutating the input.
type Processor interface {
	// Name identifies the processor within a chain.
	Name() string

	// Process transforms a message. Returning nil, nil drops the message.
	Process(ctx context.Context, msg *types.Message) (*types.Message, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc struct {
	ProcessorName string
	Fn            func(ctx context.Context, msg *types.Message) (*types.Message, error)
}

func (p ProcessorFunc) Name() string { return p.ProcessorName }

func (p ProcessorFunc) Process(ctx context.Context, msg *types.Message) (*types.Message, error) {
	return p.Fn(ctx, msg)
}

// NewProcessor wraps fn as a named Processor.
func NewProcessor(name string, fn func(ctx context.Context, msg *types.Message) (*types.Message, error)) Processor {
	return ProcessorFunc{ProcessorName: name, Fn: fn}
}

// ProcessorChain runs processors in order, feeding the output of each into
// the next. An empty chain is the identity transform.
type ProcessorChain struct {
	processors []Processor
	mu         sync.RWMutex
}

// NewProcessorChain creates a new processor chain.
func NewProcessorChain(processors ...Processor) *ProcessorChain {
	return &ProcessorChain{processors: processors}
}

// Add appends a processor to the end of the chain.
func (c *ProcessorChain) Add(p Processor) *ProcessorChain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processors = append(c.processors, p)
	return c
}

// Remove drops the first processor with the given name. It reports whether
// a processor was removed.
func (c *ProcessorChain) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.processors {
		if p.Name() == name {
			c.processors = append(c.processors[:i], c.processors[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of processors in the chain.
func (c *ProcessorChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.processors)
}

// Process runs the message through every processor in order. A processor
// error aborts the chain; a nil result drops the message (nil, nil).
func (c *ProcessorChain) Process(ctx context.Context, msg *types.Message) (*types.Message, error) {
	c.mu.RLock()
	processors := make([]Processor, len(c.processors))
	copy(processors, c.processors)
	c.mu.RUnlock()

	current := msg
	for _, p := range processors {
		next, err := p.Process(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("processor %q: %w", p.Name(), err)
		}
		if next == nil {
			return nil, nil
		}
		current = next
	}
	return current, nil
}
