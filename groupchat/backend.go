package groupchat

import (
	"context"
	"sync"

	"github.com/vaahai/vaahai/types"
)

// OfflineCompletion is the canned result returned by the offline backend.
const OfflineCompletion = "Chat completed (offline mode)"

// Backend executes chats. The live backend drives a topology engine; the
// offline backend is deterministic and never invokes an agent.
type Backend interface {
	StartChat(ctx context.Context, initial string) (*ChatResult, error)
	History() []ChatRecord
	SetAgents(agents []types.ChatAgent)
}

// offlineBackend records the initial message and returns a canned
// completion. It exists for deterministic, network-free testing and is
// selectable explicitly via Config.Offline.
type offlineBackend struct {
	transcript []ChatRecord
	mu         sync.RWMutex
}

func newOfflineBackend() *offlineBackend {
	return &offlineBackend{}
}

func (b *offlineBackend) StartChat(ctx context.Context, initial string) (*ChatResult, error) {
	b.mu.Lock()
	b.transcript = append(b.transcript, ChatRecord{Sender: userSender, Content: initial})
	b.mu.Unlock()

	return &ChatResult{
		Result:   OfflineCompletion,
		Messages: b.History(),
	}, nil
}

func (b *offlineBackend) History() []ChatRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ChatRecord, len(b.transcript))
	copy(out, b.transcript)
	return out
}

// SetAgents is a no-op: offline mode only tracks the manager's own
// bookkeeping.
func (b *offlineBackend) SetAgents(agents []types.ChatAgent) {}

// liveBackend drives a topology engine.
type liveBackend struct {
	engine Engine
}

func newLiveBackend(engine Engine) *liveBackend {
	return &liveBackend{engine: engine}
}

func (b *liveBackend) StartChat(ctx context.Context, initial string) (*ChatResult, error) {
	result, records, err := b.engine.Run(ctx, initial)
	if err != nil {
		return nil, err
	}
	return &ChatResult{Result: result, Messages: records}, nil
}

func (b *liveBackend) History() []ChatRecord {
	return b.engine.Transcript()
}

func (b *liveBackend) SetAgents(agents []types.ChatAgent) {
	b.engine.SetAgents(agents)
}

var (
	_ Backend = (*offlineBackend)(nil)
	_ Backend = (*liveBackend)(nil)
)
