package groupchat

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vaahai/vaahai/internal/metrics"
	"github.com/vaahai/vaahai/testutil"
	"github.com/vaahai/vaahai/types"
)

func TestOfflineChatIsDeterministic(t *testing.T) {
	agent := testutil.NewMockAgent("reviewer")

	cfg := DefaultConfig()
	cfg.Offline = true

	for i := 0; i < 3; i++ {
		m := NewGroupChatManager([]types.ChatAgent{agent}, cfg, nil, nil)
		result, err := m.StartChat(context.Background(), "review this code")
		require.NoError(t, err)

		assert.Equal(t, OfflineCompletion, result.Result)
		require.Len(t, result.Messages, 1)
		assert.Equal(t, "user", result.Messages[0].Sender)
		assert.Equal(t, "review this code", result.Messages[0].Content)
	}

	// The offline backend never invokes an agent.
	assert.Zero(t, agent.CallCount())
}

func TestRoundRobinOrder(t *testing.T) {
	a := testutil.NewMockAgent("a")
	b := testutil.NewMockAgent("b")
	c := testutil.NewMockAgent("c")

	cfg := DefaultConfig()
	cfg.MaxRounds = 5

	m := NewGroupChatManager([]types.ChatAgent{a, b, c}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	// user seed + 5 rounds in list order, wrapping around.
	require.Len(t, result.Messages, 6)
	senders := make([]string, 0, 5)
	for _, rec := range result.Messages[1:] {
		senders = append(senders, rec.Sender)
	}
	assert.Equal(t, []string{"a", "b", "c", "a", "b"}, senders)
}

func TestRoundRobinNoRepeatSpeaker(t *testing.T) {
	a := testutil.NewMockAgent("a")
	b := testutil.NewMockAgent("b")

	cfg := DefaultConfig()
	cfg.MaxRounds = 10
	cfg.AllowRepeatSpeaker = false

	m := NewGroupChatManager([]types.ChatAgent{a, b}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	// Each agent speaks at most once.
	require.Len(t, result.Messages, 3)
	assert.Equal(t, 1, a.CallCount())
	assert.Equal(t, 1, b.CallCount())
}

func TestSelectorChat(t *testing.T) {
	a := testutil.NewMockAgent("a")
	b := testutil.NewMockAgent("b")

	cfg := DefaultConfig()
	cfg.ChatType = ChatSelector
	cfg.MaxRounds = 3
	// Always pick b.
	cfg.SelectorFunc = func(transcript []ChatRecord, agents []types.ChatAgent) types.ChatAgent {
		for _, agent := range agents {
			if agent.Name() == "b" {
				return agent
			}
		}
		return nil
	}

	m := NewGroupChatManager([]types.ChatAgent{a, b}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, result.Messages, 4)
	for _, rec := range result.Messages[1:] {
		assert.Equal(t, "b", rec.Sender)
	}
	assert.Zero(t, a.CallCount())
}

func TestSelectorAgentChat(t *testing.T) {
	a := testutil.NewMockAgent("alpha")
	b := testutil.NewMockAgent("beta")
	// The selector always names beta.
	selector := testutil.NewMockAgent("selector").WithResponses("the next speaker is beta")

	cfg := DefaultConfig()
	cfg.ChatType = ChatSelector
	cfg.MaxRounds = 2
	cfg.SelectorAgent = selector

	m := NewGroupChatManager([]types.ChatAgent{a, b}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, result.Messages, 3)
	assert.Equal(t, "beta", result.Messages[1].Sender)
	assert.Equal(t, "beta", result.Messages[2].Sender)
}

func TestSelectorWithoutSelectorFallsBack(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.ChatType = ChatSelector
	cfg.MaxRounds = 1

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, logger, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, "a", result.Messages[1].Sender)
	assert.Equal(t, 1, logs.FilterMessageSnippet("falling back to round_robin").Len())
}

func TestCustomEngineFallsBackWhenMissing(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.ChatType = ChatCustom
	cfg.MaxRounds = 1

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, logger, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, 1, logs.FilterMessageSnippet("falling back to round_robin").Len())
}

func TestCustomEngine(t *testing.T) {
	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.ChatType = ChatCustom
	cfg.MaxRounds = 1
	cfg.CustomEngine = func(agents []types.ChatAgent, engineCfg EngineConfig, logger *zap.Logger) Engine {
		// Broadcast topology under the custom constructor contract.
		return NewBroadcastEngine(agents, engineCfg, logger)
	}

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)
	require.Len(t, result.Messages, 2)
}

func TestBroadcastChat(t *testing.T) {
	a := testutil.NewMockAgent("a")
	b := testutil.NewMockAgent("b")
	c := testutil.NewMockAgent("c")

	cfg := DefaultConfig()
	cfg.ChatType = ChatBroadcast
	cfg.MaxRounds = 2

	m := NewGroupChatManager([]types.ChatAgent{a, b, c}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	// user seed + 2 rounds x 3 agents, replies in agent list order.
	require.Len(t, result.Messages, 7)
	assert.Equal(t, "a", result.Messages[1].Sender)
	assert.Equal(t, "b", result.Messages[2].Sender)
	assert.Equal(t, "c", result.Messages[3].Sender)
	assert.Equal(t, 2, a.CallCount())
}

func TestAgentErrorBecomesErrorRecord(t *testing.T) {
	ok := testutil.NewMockAgent("ok")
	bad := testutil.NewMockAgent("bad").WithError(errors.New("model unavailable"))

	cfg := DefaultConfig()
	cfg.MaxRounds = 2

	m := NewGroupChatManager([]types.ChatAgent{bad, ok}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	// The failing agent contributes an error record and the chat continues.
	require.Len(t, result.Messages, 3)
	assert.True(t, result.Messages[1].IsError())
	assert.Equal(t, "bad", result.Messages[1].Sender)
	assert.False(t, result.Messages[2].IsError())
	assert.Equal(t, "ok", result.Messages[2].Sender)
}

func TestTerminationByMaxMessages(t *testing.T) {
	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.MaxRounds = 100
	cfg.MaxMessages = 3

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)
	assert.Len(t, result.Messages, 3)
}

func TestTerminationByCompletionIndicator(t *testing.T) {
	a := testutil.NewMockAgent("a").WithResponses("thinking", "all done, TERMINATE", "never sent")

	cfg := DefaultConfig()
	cfg.MaxRounds = 100
	cfg.CompletionIndicators = []string{"TERMINATE"}

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, result.Messages, 3)
	assert.Contains(t, result.Result, "TERMINATE")
	assert.Equal(t, 2, a.CallCount())
}

func TestCustomTerminationWins(t *testing.T) {
	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.MaxRounds = 100
	cfg.MaxMessages = 50 // would allow far more
	cfg.TerminationFunc = func(transcript []ChatRecord) bool {
		return len(transcript) >= 2
	}

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)
	assert.Len(t, result.Messages, 2)
}

func TestFilterExcludesRecords(t *testing.T) {
	noisy := testutil.NewMockAgent("noisy")
	quiet := testutil.NewMockAgent("quiet")

	cfg := DefaultConfig()
	cfg.MaxRounds = 2
	cfg.ExcludedAgents = []string{"noisy"}

	m := NewGroupChatManager([]types.ChatAgent{noisy, quiet}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	for _, rec := range result.Messages {
		assert.NotEqual(t, "noisy", rec.Sender)
	}
}

func TestFilterExcludesContent(t *testing.T) {
	a := testutil.NewMockAgent("a").WithResponses("contains SECRET data", "clean reply")

	cfg := DefaultConfig()
	cfg.MaxRounds = 2
	cfg.ExcludedContent = []string{"SECRET"}

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	require.Len(t, result.Messages, 2)
	assert.Equal(t, "clean reply", result.Messages[1].Content)
}

func TestAddRemoveAgent(t *testing.T) {
	a := testutil.NewMockAgent("a")
	b := testutil.NewMockAgent("b")

	m := NewGroupChatManager([]types.ChatAgent{a}, DefaultConfig(), nil, nil)

	m.AddAgent(b)
	m.AddAgent(b) // duplicate name is a no-op
	assert.Len(t, m.Agents(), 2)

	assert.True(t, m.RemoveAgent("a"))
	assert.False(t, m.RemoveAgent("a"))
	require.Len(t, m.Agents(), 1)
	assert.Equal(t, "b", m.Agents()[0].Name())
}

func TestChatHistory(t *testing.T) {
	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.MaxRounds = 1

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	assert.Empty(t, m.ChatHistory())

	_, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	history := m.ChatHistory()
	require.Len(t, history, 2)

	// The returned transcript is a copy.
	history[0].Sender = "mutated"
	assert.Equal(t, "user", m.ChatHistory()[0].Sender)
}

func TestSendIntroductions(t *testing.T) {
	a := testutil.NewMockAgent("a")
	b := testutil.NewMockAgent("b")

	cfg := DefaultConfig()
	cfg.MaxRounds = 1
	cfg.SendIntroductions = true

	m := NewGroupChatManager([]types.ChatAgent{a, b}, cfg, nil, nil)
	result, err := m.StartChat(context.Background(), "go")
	require.NoError(t, err)

	// user seed, two introductions, one round.
	require.Len(t, result.Messages, 4)
	assert.Equal(t, true, result.Messages[1].Metadata["introduction"])
	assert.Equal(t, "a", result.Messages[1].Sender)
	assert.Equal(t, "b", result.Messages[2].Sender)
}

func TestParseChatType(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	assert.Equal(t, ChatSelector, ParseChatType("Selector", logger))
	assert.Equal(t, ChatBroadcast, ParseChatType(" broadcast ", logger))
	assert.Equal(t, 0, logs.Len())

	// Unknown values fall back with a warning, never an error.
	assert.Equal(t, ChatRoundRobin, ParseChatType("bogus", logger))
	assert.Equal(t, 1, logs.Len())
}

func TestParseHumanInputMode(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)

	assert.Equal(t, HumanInputNever, ParseHumanInputMode("NEVER", logger))
	assert.Equal(t, HumanInputFeedback, ParseHumanInputMode("feedback", logger))
	assert.Equal(t, 0, logs.Len())

	assert.Equal(t, HumanInputTerminate, ParseHumanInputMode("sometimes", logger))
	assert.Equal(t, 1, logs.Len())
}

func TestContextCancellation(t *testing.T) {
	a := testutil.NewMockAgent("a")

	cfg := DefaultConfig()
	cfg.MaxRounds = 100

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewGroupChatManager([]types.ChatAgent{a}, cfg, nil, nil)
	_, err := m.StartChat(ctx, "go")
	require.ErrorIs(t, err, context.Canceled)
}

func TestStartChatRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector("vaahai", reg, zap.NewNop())

	cfg := DefaultConfig()
	cfg.MaxRounds = 3

	agents := []types.ChatAgent{
		testutil.NewMockAgent("alpha"),
		testutil.NewMockAgent("beta"),
	}
	m := NewGroupChatManager(agents, cfg, nil, collector)

	_, err := m.StartChat(context.Background(), "kick off")
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	var rounds float64
	var durations uint64
	for _, mf := range families {
		switch mf.GetName() {
		case "vaahai_chat_rounds_total":
			for _, metric := range mf.GetMetric() {
				rounds += metric.GetCounter().GetValue()
			}
		case "vaahai_chat_duration_seconds":
			for _, metric := range mf.GetMetric() {
				durations += metric.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, 3.0, rounds)
	assert.Equal(t, uint64(1), durations)
}
