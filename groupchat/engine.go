package groupchat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vaahai/vaahai/types"
)

// userSender labels transcript records originating from the caller.
const userSender = "user"

// baseEngine carries the state and helpers shared by all engines.
type baseEngine struct {
	agents     []types.ChatAgent
	transcript []ChatRecord
	cfg        EngineConfig
	logger     *zap.Logger
	mu         sync.RWMutex
}

func newBaseEngine(agents []types.ChatAgent, cfg EngineConfig, logger *zap.Logger) baseEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	copied := make([]types.ChatAgent, len(agents))
	copy(copied, agents)
	return baseEngine{agents: copied, cfg: cfg, logger: logger}
}

// SetAgents replaces the engine's agent set.
func (e *baseEngine) SetAgents(agents []types.ChatAgent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.agents = make([]types.ChatAgent, len(agents))
	copy(e.agents, agents)
}

// Transcript returns a copy of the transcript so far.
func (e *baseEngine) Transcript() []ChatRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ChatRecord, len(e.transcript))
	copy(out, e.transcript)
	return out
}

func (e *baseEngine) agentList() []types.ChatAgent {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.ChatAgent, len(e.agents))
	copy(out, e.agents)
	return out
}

// reset clears the transcript and seeds it with the initial user message
// and optional introductions.
func (e *baseEngine) reset(initial string) {
	e.mu.Lock()
	e.transcript = nil
	e.mu.Unlock()

	e.append(ChatRecord{Sender: userSender, Content: initial})

	if e.cfg.SendIntroductions {
		for _, agent := range e.agentList() {
			e.append(ChatRecord{
				Sender:   agent.Name(),
				Content:  fmt.Sprintf("Hello, I am %s.", agent.Name()),
				Metadata: map[string]any{"introduction": true},
			})
		}
	}
}

// append adds a record to the transcript unless the filter excludes it. It
// reports whether the record was appended.
func (e *baseEngine) append(rec ChatRecord) bool {
	if e.cfg.Filter != nil && !e.cfg.Filter(rec) {
		e.logger.Debug("record excluded by filter", zap.String("sender", rec.Sender))
		return false
	}
	e.mu.Lock()
	e.transcript = append(e.transcript, rec)
	e.mu.Unlock()
	return true
}

// terminated evaluates the termination predicate over the transcript.
func (e *baseEngine) terminated() bool {
	if e.cfg.Terminate == nil {
		return false
	}
	return e.cfg.Terminate(e.Transcript())
}

// last returns the most recent transcript record.
func (e *baseEngine) last() ChatRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if len(e.transcript) == 0 {
		return ChatRecord{}
	}
	return e.transcript[len(e.transcript)-1]
}

// result derives the final chat result from the transcript.
func (e *baseEngine) result() string {
	return e.last().Content
}

func (e *baseEngine) roundDone() {
	if e.cfg.OnRound != nil {
		e.cfg.OnRound()
	}
}

// callAgent invokes one agent with the given prompt record. Agent failures
// are converted into an error-typed record so the chat can continue.
func (e *baseEngine) callAgent(ctx context.Context, agent types.ChatAgent, prompt ChatRecord) ChatRecord {
	if e.cfg.AgentCallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AgentCallTimeout)
		defer cancel()
	}

	msg, err := types.NewTextMessage(prompt.Sender, agent.Name(), prompt.Content, types.TextFormatPlain)
	if err == nil {
		var reply *types.Message
		reply, err = agent.ProcessMessage(ctx, msg)
		if err == nil {
			if reply == nil {
				err = fmt.Errorf("agent %q returned no reply", agent.Name())
			} else {
				return ChatRecord{Sender: agent.Name(), Content: reply.Text()}
			}
		}
	}

	e.logger.Warn("agent call failed",
		zap.String("agent", agent.Name()),
		zap.Error(err))
	return ChatRecord{
		Sender:  agent.Name(),
		Content: fmt.Sprintf("error: %v", err),
		Metadata: map[string]any{
			"error_type": types.ErrorTypeProcessing,
		},
	}
}

// RoundRobinEngine lets agents speak in list order. With AllowRepeatSpeaker
// disabled each agent speaks at most once.
type RoundRobinEngine struct {
	baseEngine
}

// NewRoundRobinEngine creates a round robin engine.
func NewRoundRobinEngine(agents []types.ChatAgent, cfg EngineConfig, logger *zap.Logger) *RoundRobinEngine {
	return &RoundRobinEngine{baseEngine: newBaseEngine(agents, cfg, logger)}
}

func (e *RoundRobinEngine) Run(ctx context.Context, initial string) (string, []ChatRecord, error) {
	e.reset(initial)

	for round := 0; round < e.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return e.result(), e.Transcript(), err
		}
		if e.terminated() {
			break
		}

		agents := e.agentList()
		if len(agents) == 0 {
			break
		}
		if !e.cfg.AllowRepeatSpeaker && round >= len(agents) {
			break
		}
		speaker := agents[round%len(agents)]

		e.append(e.callAgent(ctx, speaker, e.last()))
		e.roundDone()

		if e.terminated() {
			break
		}
	}

	return e.result(), e.Transcript(), nil
}

// SelectorEngine asks a selection function to choose the next speaker each
// round. When the selector declines to choose, the engine falls back to
// list order.
type SelectorEngine struct {
	baseEngine
	selector SelectorFunc
}

// NewSelectorEngine creates a selector engine driven by the given
// selection function.
func NewSelectorEngine(agents []types.ChatAgent, cfg EngineConfig, selector SelectorFunc, logger *zap.Logger) *SelectorEngine {
	return &SelectorEngine{
		baseEngine: newBaseEngine(agents, cfg, logger),
		selector:   selector,
	}
}

// AgentSelector adapts a selector agent into a SelectorFunc: the agent is
// asked to name the next speaker and its reply is matched against the agent
// names. An unmatched reply yields no selection.
func AgentSelector(selectorAgent types.ChatAgent) SelectorFunc {
	return func(transcript []ChatRecord, agents []types.ChatAgent) types.ChatAgent {
		names := make([]string, len(agents))
		for i, a := range agents {
			names[i] = a.Name()
		}

		lastContent := ""
		if len(transcript) > 0 {
			lastContent = transcript[len(transcript)-1].Content
		}
		prompt := fmt.Sprintf("Choose the next speaker from [%s] given the last message: %s",
			strings.Join(names, ", "), lastContent)

		msg, err := types.NewTextMessage(userSender, selectorAgent.Name(), prompt, types.TextFormatPlain)
		if err != nil {
			return nil
		}
		reply, err := selectorAgent.ProcessMessage(context.Background(), msg)
		if err != nil || reply == nil {
			return nil
		}

		answer := reply.Text()
		for _, a := range agents {
			if strings.Contains(answer, a.Name()) {
				return a
			}
		}
		return nil
	}
}

func (e *SelectorEngine) Run(ctx context.Context, initial string) (string, []ChatRecord, error) {
	e.reset(initial)

	for round := 0; round < e.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return e.result(), e.Transcript(), err
		}
		if e.terminated() {
			break
		}

		agents := e.agentList()
		if len(agents) == 0 {
			break
		}

		var speaker types.ChatAgent
		if e.selector != nil {
			speaker = e.selector(e.Transcript(), agents)
		}
		if speaker == nil {
			// List-order fallback when the selector declines.
			speaker = agents[round%len(agents)]
		}

		e.append(e.callAgent(ctx, speaker, e.last()))
		e.roundDone()

		if e.terminated() {
			break
		}
	}

	return e.result(), e.Transcript(), nil
}

// BroadcastEngine delivers each round's message to every agent
// concurrently. Replies are appended in agent list order regardless of
// completion order.
type BroadcastEngine struct {
	baseEngine
}

// NewBroadcastEngine creates a broadcast engine.
func NewBroadcastEngine(agents []types.ChatAgent, cfg EngineConfig, logger *zap.Logger) *BroadcastEngine {
	return &BroadcastEngine{baseEngine: newBaseEngine(agents, cfg, logger)}
}

func (e *BroadcastEngine) Run(ctx context.Context, initial string) (string, []ChatRecord, error) {
	e.reset(initial)

	for round := 0; round < e.cfg.MaxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return e.result(), e.Transcript(), err
		}
		if e.terminated() {
			break
		}

		agents := e.agentList()
		if len(agents) == 0 {
			break
		}

		prompt := e.last()
		replies := make([]ChatRecord, len(agents))

		g, gctx := errgroup.WithContext(ctx)
		for i, agent := range agents {
			g.Go(func() error {
				// Agent failures become error records, never group errors.
				replies[i] = e.callAgent(gctx, agent, prompt)
				return nil
			})
		}
		_ = g.Wait()

		for _, rec := range replies {
			e.append(rec)
		}
		e.roundDone()

		if e.terminated() {
			break
		}
	}

	return e.result(), e.Transcript(), nil
}

var (
	_ Engine = (*RoundRobinEngine)(nil)
	_ Engine = (*SelectorEngine)(nil)
	_ Engine = (*BroadcastEngine)(nil)
)
