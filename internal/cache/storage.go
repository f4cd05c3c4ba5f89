// ABOUTME: Storage interface for cached responses plus an in-memory implementation
// ABOUTME: Entries are keyed by namespace and request URL

package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Storage holds cached responses. Only the Router writes to it.
type Storage interface {
	// Get returns the entry for key, or ok=false if there is none.
	Get(ctx context.Context, namespace, key string) (resp *Response, ok bool, err error)
	Put(ctx context.Context, namespace, key string, resp *Response) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, namespace string, entries map[string]*Response) error
	Keys(ctx context.Context, namespace string) ([]string, error)
	Namespaces(ctx context.Context) ([]string, error)
	DeleteNamespace(ctx context.Context, namespace string) error
}

// MemoryStorage keeps entries in process memory.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]map[string]*Response
	now     func() time.Time
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]map[string]*Response),
		now:     time.Now,
	}
}

func (m *MemoryStorage) Get(ctx context.Context, namespace, key string) (*Response, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp, ok := m.entries[namespace][key]
	if !ok {
		return nil, false, nil
	}
	return resp.clone(SourceCache), true, nil
}

func (m *MemoryStorage) Put(ctx context.Context, namespace, key string, resp *Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putLocked(namespace, key, resp)
	return nil
}

func (m *MemoryStorage) PutAll(ctx context.Context, namespace string, entries map[string]*Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, resp := range entries {
		m.putLocked(namespace, key, resp)
	}
	return nil
}

func (m *MemoryStorage) putLocked(namespace, key string, resp *Response) {
	ns, ok := m.entries[namespace]
	if !ok {
		ns = make(map[string]*Response)
		m.entries[namespace] = ns
	}
	stored := resp.clone("")
	stored.StoredAt = m.now().UTC()
	ns[key] = stored
}

func (m *MemoryStorage) Keys(ctx context.Context, namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.entries[namespace]))
	for k := range m.entries[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStorage) Namespaces(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStorage) DeleteNamespace(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, namespace)
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
