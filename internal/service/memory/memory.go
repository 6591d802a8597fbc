package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/kaidesk/internal/core"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	DefaultTurnLimit = 12

	// KeyPrefix namespaces conversation logs in the state store.
	KeyPrefix   = "conv:"
	lockStripes = 64
)

// Memory keeps a bounded, FIFO turn log per conversation key.
type Memory struct {
	store core.StateStore
	limit int
	ttl   time.Duration
	locks [lockStripes]sync.Mutex
}

func New(store core.StateStore, limit int, idleTTL time.Duration) *Memory {
	if limit <= 0 {
		limit = DefaultTurnLimit
	}
	return &Memory{store: store, limit: limit, ttl: idleTTL}
}

func (m *Memory) Limit() int {
	return m.limit
}

// Append pushes a turn, evicting the oldest ones past the limit.
// Empty content is ignored.
func (m *Memory) Append(ctx context.Context, key, role, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	mu := m.lock(key)
	mu.Lock()
	defer mu.Unlock()

	turns, err := m.load(ctx, key)
	if err != nil {
		return err
	}

	turns = append(turns, core.Turn{Role: role, Content: content})
	if over := len(turns) - m.limit; over > 0 {
		turns = turns[over:]
	}

	data, err := msgpack.Marshal(turns)
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := m.store.Set(ctx, KeyPrefix+key, data, m.ttl); err != nil {
		return fmt.Errorf("failed to store conversation: %w", err)
	}
	return nil
}

// Recent returns the stored turns, oldest first.
func (m *Memory) Recent(ctx context.Context, key string) ([]core.Turn, error) {
	mu := m.lock(key)
	mu.Lock()
	defer mu.Unlock()

	return m.load(ctx, key)
}

func (m *Memory) Reset(ctx context.Context, key string) error {
	mu := m.lock(key)
	mu.Lock()
	defer mu.Unlock()

	if err := m.store.Delete(ctx, KeyPrefix+key); err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	return nil
}

func (m *Memory) load(ctx context.Context, key string) ([]core.Turn, error) {
	data, ok, err := m.store.Get(ctx, KeyPrefix+key)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if !ok {
		return []core.Turn{}, nil
	}

	var turns []core.Turn
	if err := msgpack.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("failed to decode conversation: %w", err)
	}
	if turns == nil {
		turns = []core.Turn{}
	}
	return turns, nil
}

func (m *Memory) lock(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.locks[h.Sum32()%lockStripes]
}

// ResolveKey picks the conversation key for a request. Authenticated
// subjects always share one conversation; anonymous callers keep theirs by
// echoing the id back, or get a fresh one.
func ResolveKey(session *core.Session, conversationID string) (key string, id string, created bool) {
	if session != nil && session.SubjectID != "" {
		return "user:" + session.SubjectID, session.SubjectID, false
	}

	id = strings.TrimSpace(conversationID)
	if id == "" {
		id = uuid.NewString()
		created = true
	}
	return "guest:" + id, id, created
}
