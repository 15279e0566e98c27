// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records framework-level Prometheus metrics.
type Collector struct {
	// Bus metrics
	messagesPublished *prometheus.CounterVec
	messagesDelivered *prometheus.CounterVec
	messagesDropped   *prometheus.CounterVec
	processDuration   *prometheus.HistogramVec

	// Conversation metrics
	conversationTransitions *prometheus.CounterVec
	turnsAdvanced           *prometheus.CounterVec

	// Group chat metrics
	chatRounds   *prometheus.CounterVec
	chatDuration *prometheus.HistogramVec

	// Persistence metrics
	storeOperations *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered against reg.
// A nil reg falls back to the default Prometheus registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.messagesPublished = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of messages published to the bus",
		},
		[]string{"message_type"},
	)

	c.messagesDelivered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Total number of messages delivered to subscribers",
		},
		[]string{"message_type"},
	)

	c.messagesDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Total number of messages dropped by the bus",
		},
		[]string{"reason"}, // reason: unknown_receiver, processor, subscriber_error
	)

	c.processDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_process_duration_seconds",
			Help:      "Processor chain duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"message_type"},
	)

	c.conversationTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_transitions_total",
			Help:      "Total number of conversation state transitions",
		},
		[]string{"from_status", "to_status"},
	)

	c.turnsAdvanced = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_advanced_total",
			Help:      "Total number of turn advances in turn-based conversations",
		},
		[]string{"flow_type"},
	)

	c.chatRounds = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_rounds_total",
			Help:      "Total number of group chat rounds executed",
		},
		[]string{"chat_type"},
	)

	c.chatDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chat_duration_seconds",
			Help:      "Group chat duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"chat_type"},
	)

	c.storeOperations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of message store operations",
		},
		[]string{"operation", "status"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordPublish records a message accepted by the bus.
func (c *Collector) RecordPublish(messageType string) {
	c.messagesPublished.WithLabelValues(messageType).Inc()
}

// RecordDelivery records a message handed to a subscriber.
func (c *Collector) RecordDelivery(messageType string) {
	c.messagesDelivered.WithLabelValues(messageType).Inc()
}

// RecordDrop records a message the bus could not deliver.
func (c *Collector) RecordDrop(reason string) {
	c.messagesDropped.WithLabelValues(reason).Inc()
}

// RecordProcessDuration records the processor chain latency for one message.
func (c *Collector) RecordProcessDuration(messageType string, duration time.Duration) {
	c.processDuration.WithLabelValues(messageType).Observe(duration.Seconds())
}

// RecordConversationTransition records a conversation status change.
func (c *Collector) RecordConversationTransition(from, to string) {
	c.conversationTransitions.WithLabelValues(from, to).Inc()
}

// RecordTurnAdvance records a turn pointer advance.
func (c *Collector) RecordTurnAdvance(flowType string) {
	c.turnsAdvanced.WithLabelValues(flowType).Inc()
}

// RecordChatRound records one completed group chat round.
func (c *Collector) RecordChatRound(chatType string) {
	c.chatRounds.WithLabelValues(chatType).Inc()
}

// RecordChatDuration records the total duration of a group chat run.
func (c *Collector) RecordChatDuration(chatType string, duration time.Duration) {
	c.chatDuration.WithLabelValues(chatType).Observe(duration.Seconds())
}

// RecordStoreOperation records a message store operation outcome.
func (c *Collector) RecordStoreOperation(operation, status string) {
	c.storeOperations.WithLabelValues(operation, status).Inc()
}
