package pocdb

import "sync"

// KeyTable is the concurrent key -> proposer-state-machine mapping
// spec.md section 4.6 calls for: at most one live state object per key,
// fine-grained locking so distinct keys never contend, and safe
// reclamation of idle entries.
//
// Grounded on the teacher library's pattern of a Node aggregating
// per-key protected state behind a mutex (node.go), generalized here
// from "one mutex for the whole node" to "one entry, with its own
// mutex, per key" and a small reference count in place of the reference
// source's epoch-based garbage collector -- spec.md section 9 names
// reference counting as an equally valid reclamation scheme, provided a
// handler's reference stays valid for the call's duration without
// blocking creation of other keys. Because every caller acquires,
// uses, and releases a handle within one handler invocation (never
// across a suspension point it doesn't own), a plain mutex-guarded
// refcount meets that bar without hazard pointers.
type KeyTable struct {
	mu      sync.Mutex
	entries map[string]*tableEntry
	factory func(key []byte) (*proposerState, error)
}

type tableEntry struct {
	state *proposerState
	refs  int
}

// NewKeyTable returns an empty table. factory is invoked (outside the
// table lock, so it does not block lookups of other keys) the first time
// a key is acquired or re-acquired after being idle.
func NewKeyTable(factory func(key []byte) (*proposerState, error)) *KeyTable {
	return &KeyTable{
		entries: make(map[string]*tableEntry),
		factory: factory,
	}
}

// Acquire returns the live proposerState for key, creating one via the
// factory if none exists, and increments its reference count. The
// caller must call Release(key) exactly once when done.
func (t *KeyTable) Acquire(key []byte) (*proposerState, error) {
	k := string(key)

	t.mu.Lock()
	e, ok := t.entries[k]
	if ok {
		e.refs++
		t.mu.Unlock()
		return e.state, nil
	}
	t.mu.Unlock()

	// Build the new state machine outside the table lock: the factory
	// reads the acceptor record to seed version (per spec.md's
	// lifecycle rule), which touches storage, not other keys' table
	// entries, so it must not block unrelated key lookups.
	s, err := t.factory(key)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[k]; ok {
		// Lost a race with a concurrent Acquire for the same key; use
		// the entry that won and discard the redundant state we built.
		e.refs++
		return e.state, nil
	}
	t.entries[k] = &tableEntry{state: s, refs: 1}
	return s, nil
}

// Release decrements key's reference count. Once it reaches zero and
// the state machine has no pending writes or in-flight round, the entry
// is dropped; a later Acquire recreates it with version re-seeded from
// the acceptor record.
func (t *KeyTable) Release(key []byte) {
	k := string(key)

	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[k]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 && e.state.idle() {
		delete(t.entries, k)
	}
}

// Len reports the number of live entries; used by tests.
func (t *KeyTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// ForEach calls fn for every live entry's key and state. fn must not
// call back into the table (Acquire/Release) for the same key it was
// given, since the table lock is not held while fn runs -- only the
// snapshot of entries is taken under lock.
func (t *KeyTable) ForEach(fn func(key []byte, state *proposerState)) {
	t.mu.Lock()
	snapshot := make(map[string]*proposerState, len(t.entries))
	for k, e := range t.entries {
		snapshot[k] = e.state
	}
	t.mu.Unlock()

	for k, s := range snapshot {
		fn([]byte(k), s)
	}
}
