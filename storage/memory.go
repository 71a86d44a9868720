package storage

import "sync"

// MemStore is an in-memory Store. It is used by unit tests and by the
// in-process integration test; it is never durable across a process
// restart, so it must never back a production replica. Modeled on the
// teacher library's InmemStore (komuw/kshaka's protocol.InmemStore),
// generalized from a StableStore with separate uint64 accessors to the
// single byte-string Get/Put this spec calls for.
type MemStore struct {
	mu sync.RWMutex
	kv map[string][]byte
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{kv: make(map[string][]byte)}
}

// Get implements Store.
func (m *MemStore) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.kv[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put implements Store. sync is accepted for interface compatibility;
// an in-memory map has nothing to fsync.
func (m *MemStore) Put(key []byte, value []byte, sync bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.kv[string(key)] = v
	return nil
}

// Close implements Store; it is a no-op.
func (m *MemStore) Close() error {
	return nil
}
