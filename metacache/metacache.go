// Package metacache caches OIDC discovery documents so that repeated plugin
// initializations and multi-process deployments do not refetch provider
// metadata on every start. Entries carry a TTL; tokens and other per-attempt
// secret material are never stored here.
package metacache

import (
	"context"
	"sync"
	"time"
)

// Cache stores discovery documents keyed by discovery endpoint URL.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached document and whether a live entry existed.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a document for at most ttl.
	Set(ctx context.Context, key string, doc []byte, ttl time.Duration) error
	// Close releases backend resources.
	Close() error
}

// DefaultTTL bounds how long a cached discovery document is trusted.
const DefaultTTL = time.Hour

type memoryEntry struct {
	doc       []byte
	expiresAt time.Time
}

// Memory is an in-process Cache. The zero value is not usable; call NewMemory.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemory returns an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if m.now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.doc...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, doc []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{doc: append([]byte(nil), doc...), expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]memoryEntry)
	return nil
}
