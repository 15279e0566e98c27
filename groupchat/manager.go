package groupchat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vaahai/vaahai/internal/metrics"
	"github.com/vaahai/vaahai/types"
)

// GroupChatManager composes a list of agents into a chat topology and
// drives the conversation to completion.
type GroupChatManager struct {
	agents    []types.ChatAgent
	config    Config
	backend   Backend
	logger    *zap.Logger
	collector *metrics.Collector
	mu        sync.RWMutex
}

// NewGroupChatManager creates a manager for the given agents. logger and
// collector may be nil. The execution backend is fixed at construction:
// offline when Config.Offline is set, otherwise a live engine for the
// configured topology.
func NewGroupChatManager(agents []types.ChatAgent, cfg Config, logger *zap.Logger, collector *metrics.Collector) *GroupChatManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "group_chat_manager"))

	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 10
	}
	if cfg.SpeakerSelectionMethod == "" {
		cfg.SpeakerSelectionMethod = "auto"
	}
	if cfg.HumanInputMode == "" {
		cfg.HumanInputMode = HumanInputTerminate
	}

	m := &GroupChatManager{
		agents:    append([]types.ChatAgent(nil), agents...),
		config:    cfg,
		logger:    logger,
		collector: collector,
	}
	m.backend = m.buildBackend()
	return m
}

// buildBackend selects the execution backend for the configured mode and
// topology.
func (m *GroupChatManager) buildBackend() Backend {
	if m.config.Offline {
		m.logger.Info("using offline chat backend")
		return newOfflineBackend()
	}

	engineCfg := EngineConfig{
		MaxRounds:              m.config.MaxRounds,
		AllowRepeatSpeaker:     m.config.AllowRepeatSpeaker,
		SpeakerSelectionMethod: m.config.SpeakerSelectionMethod,
		SendIntroductions:      m.config.SendIntroductions,
		HumanInputMode:         m.config.HumanInputMode,
		AgentCallTimeout:       m.config.AgentCallTimeout,
		Terminate:              buildTermination(m.config),
		Filter:                 buildFilter(m.config),
	}
	if m.collector != nil {
		chatType := string(m.config.ChatType)
		engineCfg.OnRound = func() { m.collector.RecordChatRound(chatType) }
	}

	switch m.config.ChatType {
	case ChatSelector:
		selector := m.config.SelectorFunc
		if selector == nil && m.config.SelectorAgent != nil {
			selector = AgentSelector(m.config.SelectorAgent)
		}
		if selector == nil {
			m.logger.Warn("selector chat without selector, falling back to round_robin")
			return newLiveBackend(NewRoundRobinEngine(m.agents, engineCfg, m.logger))
		}
		return newLiveBackend(NewSelectorEngine(m.agents, engineCfg, selector, m.logger))

	case ChatBroadcast:
		return newLiveBackend(NewBroadcastEngine(m.agents, engineCfg, m.logger))

	case ChatCustom:
		if m.config.CustomEngine == nil {
			m.logger.Warn("custom chat without engine constructor, falling back to round_robin")
			return newLiveBackend(NewRoundRobinEngine(m.agents, engineCfg, m.logger))
		}
		return newLiveBackend(m.config.CustomEngine(m.agents, engineCfg, m.logger))

	default:
		return newLiveBackend(NewRoundRobinEngine(m.agents, engineCfg, m.logger))
	}
}

// StartChat drives the chat from the initial message and returns the
// result plus the full transcript.
func (m *GroupChatManager) StartChat(ctx context.Context, initial string) (*ChatResult, error) {
	start := time.Now()

	m.mu.RLock()
	backend := m.backend
	m.mu.RUnlock()

	result, err := backend.StartChat(ctx, initial)

	if m.collector != nil {
		m.collector.RecordChatDuration(string(m.config.ChatType), time.Since(start))
	}
	if err != nil {
		m.logger.Error("chat failed", zap.Error(err))
		return nil, err
	}

	m.logger.Info("chat completed",
		zap.String("chat_type", string(m.config.ChatType)),
		zap.Int("messages", len(result.Messages)))
	return result, nil
}

// AddAgent registers an agent with the manager and, in live mode, with the
// running engine.
func (m *GroupChatManager) AddAgent(agent types.ChatAgent) {
	if agent == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.agents {
		if a.Name() == agent.Name() {
			return
		}
	}
	m.agents = append(m.agents, agent)
	m.backend.SetAgents(m.agents)
}

// RemoveAgent unregisters the named agent. It reports whether an agent was
// removed.
func (m *GroupChatManager) RemoveAgent(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, a := range m.agents {
		if a.Name() == name {
			m.agents = append(m.agents[:i], m.agents[i+1:]...)
			m.backend.SetAgents(m.agents)
			return true
		}
	}
	return false
}

// Agents returns a copy of the agent list.
func (m *GroupChatManager) Agents() []types.ChatAgent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.ChatAgent, len(m.agents))
	copy(out, m.agents)
	return out
}

// ChatHistory returns a copy of the transcript so far.
func (m *GroupChatManager) ChatHistory() []ChatRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.backend.History()
}
