package pocdb

import (
	"bytes"
	"testing"
)

func TestMarshalUnmarshalRoundTrips(t *testing.T) {
	cases := []interface{}{
		ClientPut{Key: []byte("k"), Value: []byte("v")},
		ClientGet{Key: []byte("k")},
		Phase1A{Key: []byte("k"), Version: 3, Ballot: Ballot{Number: 9, Leader: HostA}},
		Phase1B{
			Key:      []byte("k"),
			Version:  3,
			Promised: Ballot{Number: 9, Leader: HostA},
			Accepted: PValue{Ballot: Ballot{Number: 4, Leader: HostB}, Value: []byte("old")},
		},
		Phase2A{
			Key:     []byte("k"),
			Version: 3,
			Ballot:  Ballot{Number: 9, Leader: HostA},
			Value:   PValue{Ballot: Ballot{Number: 9, Leader: HostA}, Value: []byte("new")},
		},
		Phase2B{Key: []byte("k"), Version: 3, Ballot: Ballot{Number: 9, Leader: HostA}},
		Learn{Key: []byte("k"), Version: 3, Value: []byte("new")},
		Retry{Key: []byte("k")},
		Reply{Status: StatusSuccess, Value: []byte("v")},
	}

	for _, c := range cases {
		buf, err := Marshal(c)
		if err != nil {
			t.Fatalf("Marshal(%T): %v", c, err)
		}
		got, err := Unmarshal(buf)
		if err != nil {
			t.Fatalf("Unmarshal(%T): %v", c, err)
		}
		if !messagesEqual(c, got) {
			t.Fatalf("round trip mismatch for %T: got %+v, want %+v", c, got, c)
		}
	}
}

func TestUnmarshalRetryDecodesKey(t *testing.T) {
	// Regression test: an earlier version of this decoder discarded the
	// retry payload's key instead of reading it.
	buf, err := Marshal(Retry{Key: []byte("my-key")})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	r, ok := got.(Retry)
	if !ok {
		t.Fatalf("got %T, want Retry", got)
	}
	if !bytes.Equal(r.Key, []byte("my-key")) {
		t.Fatalf("key = %q, want %q", r.Key, "my-key")
	}
}

func TestUnmarshalUnknownTag(t *testing.T) {
	if _, err := Unmarshal([]byte{'Z'}); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestUnmarshalEmptyBuffer(t *testing.T) {
	if _, err := Unmarshal(nil); err == nil {
		t.Fatalf("expected error for empty buffer")
	}
}

func TestUnmarshalTruncatedPayload(t *testing.T) {
	buf, _ := Marshal(ClientPut{Key: []byte("k"), Value: []byte("v")})
	if _, err := Unmarshal(buf[:len(buf)-2]); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func messagesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case ClientPut:
		bv := b.(ClientPut)
		return bytes.Equal(av.Key, bv.Key) && bytes.Equal(av.Value, bv.Value)
	case ClientGet:
		bv := b.(ClientGet)
		return bytes.Equal(av.Key, bv.Key)
	case Phase1A:
		bv := b.(Phase1A)
		return bytes.Equal(av.Key, bv.Key) && av.Version == bv.Version && av.Ballot == bv.Ballot
	case Phase1B:
		bv := b.(Phase1B)
		return bytes.Equal(av.Key, bv.Key) && av.Version == bv.Version &&
			av.Promised == bv.Promised && av.Accepted.Ballot == bv.Accepted.Ballot &&
			bytes.Equal(av.Accepted.Value, bv.Accepted.Value)
	case Phase2A:
		bv := b.(Phase2A)
		return bytes.Equal(av.Key, bv.Key) && av.Version == bv.Version && av.Ballot == bv.Ballot &&
			av.Value.Ballot == bv.Value.Ballot && bytes.Equal(av.Value.Value, bv.Value.Value)
	case Phase2B:
		bv := b.(Phase2B)
		return bytes.Equal(av.Key, bv.Key) && av.Version == bv.Version && av.Ballot == bv.Ballot
	case Learn:
		bv := b.(Learn)
		return bytes.Equal(av.Key, bv.Key) && av.Version == bv.Version && bytes.Equal(av.Value, bv.Value)
	case Retry:
		bv := b.(Retry)
		return bytes.Equal(av.Key, bv.Key)
	case Reply:
		bv := b.(Reply)
		return av.Status == bv.Status && bytes.Equal(av.Value, bv.Value)
	default:
		return false
	}
}
