package pocdb

import "testing"

func trivialProposerFactory(key []byte) (*proposerState, error) {
	return newProposerState(key, HostA, []uint64{HostA}, nil, discardOutbox{}, 0), nil
}

type discardOutbox struct{}

func (discardOutbox) SendTo(uint64, interface{}) {}
func (discardOutbox) Broadcast(interface{})      {}

func TestKeyTableAcquireCreatesAndReuses(t *testing.T) {
	tab := NewKeyTable(trivialProposerFactory)

	s1, err := tab.Acquire([]byte("k"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s2, err := tab.Acquire([]byte("k"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s1 != s2 {
		t.Fatalf("expected same state instance across Acquire calls for one key")
	}
	if tab.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", tab.Len())
	}
}

func TestKeyTableReleaseDropsIdleEntry(t *testing.T) {
	tab := NewKeyTable(trivialProposerFactory)

	if _, err := tab.Acquire([]byte("k")); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	tab.Release([]byte("k"))

	if tab.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after releasing an idle entry", tab.Len())
	}
}

func TestKeyTableReleaseKeepsBusyEntry(t *testing.T) {
	tab := NewKeyTable(trivialProposerFactory)

	s, err := tab.Acquire([]byte("k"))
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	s.pending = append(s.pending, pendingWrite{clientID: 1, value: []byte("v")})
	tab.Release([]byte("k"))

	if tab.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 for a non-idle entry", tab.Len())
	}
}

func TestKeyTableIndependentKeysDoNotShareState(t *testing.T) {
	tab := NewKeyTable(trivialProposerFactory)

	a, err := tab.Acquire([]byte("a"))
	if err != nil {
		t.Fatalf("Acquire a: %v", err)
	}
	b, err := tab.Acquire([]byte("b"))
	if err != nil {
		t.Fatalf("Acquire b: %v", err)
	}
	if a == b {
		t.Fatalf("distinct keys got the same state instance")
	}
}
