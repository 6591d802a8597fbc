package state

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	gocache "github.com/patrickmn/go-cache"
)

const cleanupInterval = 10 * time.Minute

// Memory is an in-process StateStore. Entries expire after their TTL and the
// number of live capped keys is bounded; the least recently used goes first.
// Keys outside the capped prefixes are never evicted before their TTL.
type Memory struct {
	cache  *gocache.Cache
	keys   *lru.Cache[string, struct{}]
	capped []string
}

// NewMemory builds the store. With no cappedPrefixes every key counts
// against maxKeys.
func NewMemory(defaultTTL time.Duration, maxKeys int, cappedPrefixes ...string) (*Memory, error) {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}

	c := gocache.New(defaultTTL, cleanupInterval)
	keys, err := lru.NewWithEvict[string, struct{}](maxKeys, func(key string, _ struct{}) {
		c.Delete(key)
	})
	if err != nil {
		return nil, err
	}

	return &Memory{cache: c, keys: keys, capped: cappedPrefixes}, nil
}

func (m *Memory) bounded(key string) bool {
	if len(m.capped) == 0 {
		return true
	}
	for _, p := range m.capped {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		m.keys.Remove(key)
		return nil, false, nil
	}
	if m.bounded(key) {
		m.keys.Get(key)
	}

	stored := v.([]byte)
	out := make([]byte, len(stored))
	copy(out, stored)
	return out, true, nil
}

// Set stores a copy of value. A zero ttl uses the store default.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	m.cache.Set(key, stored, ttl)
	if m.bounded(key) {
		m.keys.Add(key, struct{}{})
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.keys.Remove(key)
	m.cache.Delete(key)
	return nil
}

// Len reports the number of capped keys.
func (m *Memory) Len() int {
	return m.keys.Len()
}
