package pocdb

import "testing"

func TestBallotOrdering(t *testing.T) {
	low := Ballot{Number: 1, Leader: 5}
	high := Ballot{Number: 2, Leader: 1}
	tie := Ballot{Number: 1, Leader: 9}

	if !low.Less(high) {
		t.Fatalf("expected %v < %v", low, high)
	}
	if !high.Greater(low) {
		t.Fatalf("expected %v > %v", high, low)
	}
	if !low.Less(tie) {
		t.Fatalf("expected tie-break on leader: %v < %v", low, tie)
	}
	if !ZeroBallot.IsZero() {
		t.Fatalf("ZeroBallot.IsZero() = false")
	}
	if low.IsZero() {
		t.Fatalf("non-zero ballot reported IsZero")
	}
}

func TestBallotRoundTrip(t *testing.T) {
	b := Ballot{Number: 0xdeadbeef, Leader: HostC}
	buf := b.marshalTo(nil)

	var got Ballot
	if err := got.unmarshal(newReader(buf)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != b {
		t.Fatalf("got %v, want %v", got, b)
	}
}

func TestPValueRoundTrip(t *testing.T) {
	p := PValue{Ballot: Ballot{Number: 7, Leader: HostA}, Value: []byte("hello")}
	buf := p.marshalTo(nil)

	var got PValue
	if err := got.unmarshal(newReader(buf)); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Ballot != p.Ballot || string(got.Value) != string(p.Value) {
		t.Fatalf("got %+v, want %+v", got, p)
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := newReader([]byte{0, 0, 0})
	if _, err := r.uint64(); err == nil {
		t.Fatalf("expected short-buffer error")
	}
	// A reader remembers its error and returns it on every later call.
	if _, err := r.uint32(); err == nil {
		t.Fatalf("expected sticky error on second call")
	}
}
