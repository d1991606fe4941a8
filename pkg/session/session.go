// Package session keeps the off-topic counter of a conversation between
// requests. The pipeline itself is request-scoped; callers that pass a
// session id load the counter before a turn and add the turn's increment
// after it. Counters only grow, so overlapping turns on one session never
// lose an increment.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Defaults for both stores.
const (
	DefaultTTL  = 30 * time.Minute
	DefaultSize = 10000
)

// ErrInvalidID is returned for an empty session id.
var ErrInvalidID = errors.New("session: invalid session id")

// Store persists off-topic counters by session id. Load returns 0 for an
// unknown or expired session. Add increases the counter by delta and
// returns the stored value; a delta <= 0 changes nothing but refreshes
// the TTL of an existing session.
type Store interface {
	Load(ctx context.Context, id string) (int, error)
	Add(ctx context.Context, id string, delta int) (int, error)
	Close() error
}

// MemoryStore is an in-process Store with LRU eviction and a TTL.
type MemoryStore struct {
	mu    sync.Mutex
	cache *expirable.LRU[string, int]
}

// NewMemoryStore creates a MemoryStore. Zero values select the defaults.
func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{cache: expirable.NewLRU[string, int](size, nil, ttl)}
}

// Load implements Store.
func (m *MemoryStore) Load(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	n, _ := m.cache.Get(id)
	return n, nil
}

// Add implements Store.
func (m *MemoryStore) Add(ctx context.Context, id string, delta int) (int, error) {
	if id == "" {
		return 0, ErrInvalidID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.cache.Get(id)
	if delta <= 0 && !ok {
		return 0, nil
	}
	n += max(delta, 0)
	m.cache.Add(id, n)
	return n, nil
}

// Len returns the number of live sessions.
func (m *MemoryStore) Len() int { return m.cache.Len() }

// Close purges the cache.
func (m *MemoryStore) Close() error {
	m.cache.Purge()
	return nil
}

// Nop is a Store that remembers nothing.
type Nop struct{}

func (Nop) Load(ctx context.Context, id string) (int, error)           { return 0, nil }
func (Nop) Add(ctx context.Context, id string, delta int) (int, error) { return 0, nil }
func (Nop) Close() error                                               { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = Nop{}
)
