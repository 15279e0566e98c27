package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("vaahai_test", prometheus.NewRegistry(), zap.NewNop())
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	require.NotNil(t, collector)
	assert.NotNil(t, collector.messagesPublished)
	assert.NotNil(t, collector.messagesDelivered)
	assert.NotNil(t, collector.messagesDropped)
	assert.NotNil(t, collector.processDuration)
	assert.NotNil(t, collector.conversationTransitions)
	assert.NotNil(t, collector.turnsAdvanced)
	assert.NotNil(t, collector.chatRounds)
	assert.NotNil(t, collector.chatDuration)
	assert.NotNil(t, collector.storeOperations)
}

func TestNewCollector_NilLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		NewCollector("vaahai_test", prometheus.NewRegistry(), nil)
	})
}

func TestNewCollector_NilRegisterer(t *testing.T) {
	// nil falls back to the default registerer; a unique namespace avoids
	// duplicate registration across test runs in the same process.
	assert.NotPanics(t, func() {
		NewCollector("vaahai_test_default_reg", nil, zap.NewNop())
	})
}

func TestCollector_BusMetrics(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordPublish("text")
	collector.RecordPublish("text")
	collector.RecordDelivery("text")
	collector.RecordDrop("unknown_receiver")
	collector.RecordProcessDuration("text", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.messagesPublished.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.messagesDelivered.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.messagesDropped.WithLabelValues("unknown_receiver")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.processDuration))
}

func TestCollector_ConversationMetrics(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordConversationTransition("created", "active")
	collector.RecordConversationTransition("active", "ended")
	collector.RecordTurnAdvance("turn_based")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.conversationTransitions.WithLabelValues("created", "active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.conversationTransitions.WithLabelValues("active", "ended")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.turnsAdvanced.WithLabelValues("turn_based")))
}

func TestCollector_ChatMetrics(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordChatRound("round_robin")
	collector.RecordChatRound("round_robin")
	collector.RecordChatRound("broadcast")
	collector.RecordChatDuration("round_robin", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.chatRounds.WithLabelValues("round_robin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.chatRounds.WithLabelValues("broadcast")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.chatDuration))
}

func TestCollector_StoreMetrics(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordStoreOperation("save", "ok")
	collector.RecordStoreOperation("save", "error")
	collector.RecordStoreOperation("ack", "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeOperations.WithLabelValues("save", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeOperations.WithLabelValues("save", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.storeOperations.WithLabelValues("ack", "ok")))
}
