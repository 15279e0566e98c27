// Package bus implements publish/subscribe message routing between agents.
// A MessageBus runs every published message through an ordered processor
// chain, records it in history, then delivers it to the matching
// subscribers. Delivery is synchronous: Publish returns only after every
// subscriber callback has completed.
package bus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaahai/vaahai/internal/metrics"
	"github.com/vaahai/vaahai/persistence"
	"github.com/vaahai/vaahai/types"
)

// Handler receives messages delivered to a subscribed agent ID.
type Handler func(ctx context.Context, msg *types.Message) error

// MessageBus routes messages between subscribers.
//
// A failing subscriber never fails Publish and never blocks the remaining
// subscribers: the error is logged and delivery continues. Callers that
// need stronger guarantees should layer acknowledgement on top via the
// message store.
type MessageBus struct {
	chain       *ProcessorChain
	subscribers map[string]Handler
	order       []string // subscription order for broadcast delivery
	history     []*types.Message
	store       persistence.MessageStore
	collector   *metrics.Collector
	logger      *zap.Logger
	mu          sync.RWMutex
}

// Option configures a MessageBus.
type Option func(*MessageBus)

// WithLogger sets the bus logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *MessageBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithStore attaches a message store. Messages are persisted before
// delivery and acknowledged after all subscribers have run.
func WithStore(store persistence.MessageStore) Option {
	return func(b *MessageBus) { b.store = store }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(b *MessageBus) { b.collector = collector }
}

// WithProcessors seeds the processor chain.
func WithProcessors(processors ...Processor) Option {
	return func(b *MessageBus) {
		for _, p := range processors {
			b.chain.Add(p)
		}
	}
}

// NewMessageBus creates a message bus.
func NewMessageBus(opts ...Option) *MessageBus {
	b := &MessageBus{
		chain:       NewProcessorChain(),
		subscribers: make(map[string]Handler),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("component", "message_bus"))
	return b
}

// AddProcessor appends a processor to the chain.
func (b *MessageBus) AddProcessor(p Processor) {
	b.chain.Add(p)
}

// RemoveProcessor drops the first processor with the given name.
func (b *MessageBus) RemoveProcessor(name string) bool {
	return b.chain.Remove(name)
}

// Subscribe registers a handler for the given agent ID. A second
// subscription under the same ID replaces the first.
func (b *MessageBus) Subscribe(agentID string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[agentID]; !exists {
		b.order = append(b.order, agentID)
	}
	b.subscribers[agentID] = handler

	b.logger.Debug("subscriber registered", zap.String("agent_id", agentID))
}

// Unsubscribe removes the handler for the given agent ID. Unsubscribing an
// unknown ID is a no-op.
func (b *MessageBus) Unsubscribe(agentID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[agentID]; !exists {
		return
	}
	delete(b.subscribers, agentID)
	for i, id := range b.order {
		if id == agentID {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	b.logger.Debug("subscriber removed", zap.String("agent_id", agentID))
}

// Publish runs the message through the processor chain, records the
// processed message in history, then delivers it. A nil message out of the
// chain means a processor dropped it; Publish returns (nil, nil) in that
// case. An unknown direct receiver is logged and dropped, not an error.
func (b *MessageBus) Publish(ctx context.Context, msg *types.Message) (*types.Message, error) {
	if msg == nil {
		return nil, types.NewValidationError("message", "message must not be nil")
	}

	start := time.Now()
	processed, err := b.chain.Process(ctx, msg)
	if err != nil {
		return nil, err
	}
	if b.collector != nil {
		b.collector.RecordProcessDuration(string(msg.Type()), time.Since(start))
	}
	if processed == nil {
		b.logger.Debug("message dropped by processor chain", zap.String("message_id", msg.ID()))
		if b.collector != nil {
			b.collector.RecordDrop("processor")
		}
		return nil, nil
	}

	b.mu.Lock()
	b.history = append(b.history, processed)
	b.mu.Unlock()

	if b.collector != nil {
		b.collector.RecordPublish(string(processed.Type()))
	}

	if b.store != nil {
		if err := b.store.SaveMessage(ctx, persistence.RecordFromMessage(processed)); err != nil {
			return nil, err
		}
	}

	b.deliver(ctx, processed)

	if b.store != nil {
		if err := b.store.AckMessage(ctx, processed.ID()); err != nil {
			b.logger.Warn("failed to ack message",
				zap.String("message_id", processed.ID()),
				zap.Error(err))
		}
	}

	return processed, nil
}

// PublishMap coerces a plain map into a Message and publishes it.
func (b *MessageBus) PublishMap(ctx context.Context, data map[string]any) (*types.Message, error) {
	msg, err := types.MessageFromMap(data)
	if err != nil {
		return nil, err
	}
	return b.Publish(ctx, msg)
}

// deliver hands the message to the matching subscribers sequentially.
func (b *MessageBus) deliver(ctx context.Context, msg *types.Message) {
	b.mu.RLock()
	var targets []string
	if msg.IsBroadcast() {
		targets = make([]string, len(b.order))
		copy(targets, b.order)
	} else if _, ok := b.subscribers[msg.ReceiverID()]; ok {
		targets = []string{msg.ReceiverID()}
	}
	handlers := make(map[string]Handler, len(targets))
	for _, id := range targets {
		handlers[id] = b.subscribers[id]
	}
	b.mu.RUnlock()

	if !msg.IsBroadcast() && len(targets) == 0 {
		b.logger.Warn("no subscriber for receiver, dropping message",
			zap.String("message_id", msg.ID()),
			zap.String("receiver_id", msg.ReceiverID()))
		if b.collector != nil {
			b.collector.RecordDrop("unknown_receiver")
		}
		return
	}

	for _, id := range targets {
		if err := handlers[id](ctx, msg); err != nil {
			// Log-and-continue: one failing subscriber must not starve the rest.
			b.logger.Error("subscriber failed",
				zap.String("agent_id", id),
				zap.String("message_id", msg.ID()),
				zap.Error(err))
			if b.collector != nil {
				b.collector.RecordDrop("subscriber_error")
			}
			continue
		}
		if b.collector != nil {
			b.collector.RecordDelivery(string(msg.Type()))
		}
	}
}

// History returns a copy of the published message history.
func (b *MessageBus) History() []*types.Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*types.Message, len(b.history))
	copy(out, b.history)
	return out
}

// ClearHistory discards the published message history.
func (b *MessageBus) ClearHistory() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history = nil
}

// SubscriberCount returns the number of registered subscribers.
func (b *MessageBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
