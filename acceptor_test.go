package pocdb

import (
	"testing"

	"github.com/deadbeef-labs/pocdb/storage"
)

func TestAcceptorHandlePhase1AAcceptsHigherBallotFromOwnLeader(t *testing.T) {
	a := NewAcceptor(HostB, storage.NewMemStore())
	key := []byte("k")
	ballot := Ballot{Number: 10, Leader: HostA}

	reply, err := a.HandlePhase1A(HostA, Phase1A{Key: key, Version: 0, Ballot: ballot})
	if err != nil {
		t.Fatalf("HandlePhase1A: %v", err)
	}
	if reply.Promised != ballot {
		t.Fatalf("promised = %v, want %v", reply.Promised, ballot)
	}

	cur, err := a.State(key)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if cur.Promised != ballot {
		t.Fatalf("persisted promised = %v, want %v", cur.Promised, ballot)
	}
}

func TestAcceptorHandlePhase1ARejectsWrongLeader(t *testing.T) {
	a := NewAcceptor(HostB, storage.NewMemStore())
	key := []byte("k")
	ballot := Ballot{Number: 10, Leader: HostA}

	// fromPeer (HostC) does not match the ballot's own leader (HostA),
	// so the promise must not be recorded even though the ballot is high.
	reply, err := a.HandlePhase1A(HostC, Phase1A{Key: key, Version: 0, Ballot: ballot})
	if err != nil {
		t.Fatalf("HandlePhase1A: %v", err)
	}
	if !reply.Promised.IsZero() {
		t.Fatalf("promised = %v, want zero", reply.Promised)
	}
}

func TestAcceptorHandlePhase1ARejectsLowerBallot(t *testing.T) {
	a := NewAcceptor(HostB, storage.NewMemStore())
	key := []byte("k")
	high := Ballot{Number: 10, Leader: HostA}
	low := Ballot{Number: 5, Leader: HostA}

	if _, err := a.HandlePhase1A(HostA, Phase1A{Key: key, Version: 0, Ballot: high}); err != nil {
		t.Fatalf("HandlePhase1A(high): %v", err)
	}
	reply, err := a.HandlePhase1A(HostA, Phase1A{Key: key, Version: 0, Ballot: low})
	if err != nil {
		t.Fatalf("HandlePhase1A(low): %v", err)
	}
	if reply.Promised != high {
		t.Fatalf("promised regressed to %v, want still %v", reply.Promised, high)
	}
}

func TestAcceptorHandlePhase2AAcceptsMatchingView(t *testing.T) {
	a := NewAcceptor(HostB, storage.NewMemStore())
	key := []byte("k")
	ballot := Ballot{Number: 10, Leader: HostA}

	if _, err := a.HandlePhase1A(HostA, Phase1A{Key: key, Version: 0, Ballot: ballot}); err != nil {
		t.Fatalf("HandlePhase1A: %v", err)
	}

	reply, err := a.HandlePhase2A(Phase2A{
		Key:     key,
		Version: 0,
		Ballot:  ballot,
		Value:   PValue{Ballot: ballot, Value: []byte("v")},
	})
	if err != nil {
		t.Fatalf("HandlePhase2A: %v", err)
	}
	b2, ok := reply.(Phase2B)
	if !ok {
		t.Fatalf("got %T, want Phase2B", reply)
	}
	if b2.Ballot != ballot {
		t.Fatalf("ballot = %v, want %v", b2.Ballot, ballot)
	}
}

func TestAcceptorHandlePhase2ARetriesOnMismatch(t *testing.T) {
	a := NewAcceptor(HostB, storage.NewMemStore())
	key := []byte("k")

	reply, err := a.HandlePhase2A(Phase2A{
		Key:     key,
		Version: 5,
		Ballot:  Ballot{Number: 1, Leader: HostA},
		Value:   PValue{Value: []byte("v")},
	})
	if err != nil {
		t.Fatalf("HandlePhase2A: %v", err)
	}
	if _, ok := reply.(Retry); !ok {
		t.Fatalf("got %T, want Retry", reply)
	}
}

func TestAcceptorStateAdvancesVersionAfterLearn(t *testing.T) {
	store := storage.NewMemStore()
	a := NewAcceptor(HostB, store)
	l := NewLearner(store)
	key := []byte("k")

	if _, err := a.HandlePhase1A(HostA, Phase1A{Key: key, Version: 0, Ballot: Ballot{Number: 1, Leader: HostA}}); err != nil {
		t.Fatalf("HandlePhase1A: %v", err)
	}
	if err := l.HandleLearn(Learn{Key: key, Version: 0, Value: []byte("v")}); err != nil {
		t.Fatalf("HandleLearn: %v", err)
	}

	cur, err := a.State(key)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if cur.Version != 1 {
		t.Fatalf("version = %d, want 1", cur.Version)
	}
	if !cur.Promised.IsZero() || !cur.Accepted.Ballot.IsZero() {
		t.Fatalf("expected fresh promised/accepted after closing version, got %+v", cur)
	}
}
