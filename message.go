package pocdb

import "github.com/pkg/errors"

// Tag is the one-byte message type that precedes every framed payload on
// the wire, per the wire protocol table.
type Tag byte

// The six inter-replica message kinds plus the three client-facing ones
// (ClientPut, ClientGet and their Reply).
const (
	TagClientPut Tag = 'P'
	TagClientGet Tag = 'G'
	TagPhase1A   Tag = 'a'
	TagPhase1B   Tag = 'b'
	TagPhase2A   Tag = 'A'
	TagPhase2B   Tag = 'B'
	TagLearn     Tag = 'L'
	TagRetry     Tag = 'R'
	TagReply     Tag = 'r' // status [+ value], reply to ClientPut/ClientGet
)

// ClientPut is sent client -> replica to request that key be bound to
// value.
type ClientPut struct {
	Key   []byte
	Value []byte
}

// ClientGet is sent client -> replica to request the current value of
// key.
type ClientGet struct {
	Key []byte
}

// Phase1A is the Paxos "prepare" message, proposer -> acceptor.
type Phase1A struct {
	Key     []byte
	Version uint64
	Ballot  Ballot
}

// Phase1B is the Paxos "promise" reply, acceptor -> proposer.
type Phase1B struct {
	Key      []byte
	Version  uint64
	Promised Ballot
	Accepted PValue
}

// Phase2A is the Paxos "accept" message, proposer -> acceptor.
type Phase2A struct {
	Key     []byte
	Version uint64
	Ballot  Ballot
	Value   PValue
}

// Phase2B is the Paxos "accepted" reply, acceptor -> proposer.
type Phase2B struct {
	Key     []byte
	Version uint64
	Ballot  Ballot
}

// Learn broadcasts a decided value, proposer -> all.
type Learn struct {
	Key     []byte
	Version uint64
	Value   []byte
}

// Retry tells a proposer that its (version, ballot) view of a key is
// stale and it should restart with a fresh ballot.
type Retry struct {
	Key []byte
}

// Reply carries the client-visible outcome of a ClientPut or ClientGet.
type Reply struct {
	Status ReturnCode
	Value  []byte // only meaningful for a ClientGet reply
}

// Marshal encodes m (one of the message types above) with its tag byte,
// matching the wire layout in spec.md section 4.1: one tag byte followed
// by a type-specific payload, u64 big-endian, byte strings as u32 length
// plus raw bytes, Ballot as two u64, PValue as a Ballot then a byte
// string.
func Marshal(m interface{}) ([]byte, error) {
	switch v := m.(type) {
	case ClientPut:
		buf := []byte{byte(TagClientPut)}
		buf = appendBytes(buf, v.Key)
		buf = appendBytes(buf, v.Value)
		return buf, nil
	case ClientGet:
		buf := []byte{byte(TagClientGet)}
		buf = appendBytes(buf, v.Key)
		return buf, nil
	case Phase1A:
		buf := []byte{byte(TagPhase1A)}
		buf = appendBytes(buf, v.Key)
		buf = appendUint64(buf, v.Version)
		buf = v.Ballot.marshalTo(buf)
		return buf, nil
	case Phase1B:
		buf := []byte{byte(TagPhase1B)}
		buf = appendBytes(buf, v.Key)
		buf = appendUint64(buf, v.Version)
		buf = v.Promised.marshalTo(buf)
		buf = v.Accepted.marshalTo(buf)
		return buf, nil
	case Phase2A:
		buf := []byte{byte(TagPhase2A)}
		buf = appendBytes(buf, v.Key)
		buf = appendUint64(buf, v.Version)
		buf = v.Ballot.marshalTo(buf)
		buf = v.Value.marshalTo(buf)
		return buf, nil
	case Phase2B:
		buf := []byte{byte(TagPhase2B)}
		buf = appendBytes(buf, v.Key)
		buf = appendUint64(buf, v.Version)
		buf = v.Ballot.marshalTo(buf)
		return buf, nil
	case Learn:
		buf := []byte{byte(TagLearn)}
		buf = appendBytes(buf, v.Key)
		buf = appendUint64(buf, v.Version)
		buf = appendBytes(buf, v.Value)
		return buf, nil
	case Retry:
		buf := []byte{byte(TagRetry)}
		buf = appendBytes(buf, v.Key)
		return buf, nil
	case Reply:
		buf := []byte{byte(TagReply), byte(v.Status)}
		buf = appendBytes(buf, v.Value)
		return buf, nil
	default:
		return nil, errors.Errorf("pocdb: cannot marshal message of type %T", m)
	}
}

// Unmarshal decodes a framed payload (tag byte plus body) into the
// appropriate message type. The returned value's concrete type matches
// the tag: Tag('P') -> ClientPut, and so on.
func Unmarshal(buf []byte) (interface{}, error) {
	if len(buf) == 0 {
		return nil, errors.New("pocdb: empty message")
	}
	tag := Tag(buf[0])
	r := newReader(buf[1:])

	switch tag {
	case TagClientPut:
		var m ClientPut
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal ClientPut key")
		}
		if m.Value, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal ClientPut value")
		}
		return m, r.done()
	case TagClientGet:
		var m ClientGet
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal ClientGet key")
		}
		return m, r.done()
	case TagPhase1A:
		var m Phase1A
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1A key")
		}
		if m.Version, err = r.uint64(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1A version")
		}
		if err = m.Ballot.unmarshal(r); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1A ballot")
		}
		return m, r.done()
	case TagPhase1B:
		var m Phase1B
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1B key")
		}
		if m.Version, err = r.uint64(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1B version")
		}
		if err = m.Promised.unmarshal(r); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1B promised")
		}
		if err = m.Accepted.unmarshal(r); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase1B accepted")
		}
		return m, r.done()
	case TagPhase2A:
		var m Phase2A
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2A key")
		}
		if m.Version, err = r.uint64(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2A version")
		}
		if err = m.Ballot.unmarshal(r); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2A ballot")
		}
		if err = m.Value.unmarshal(r); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2A value")
		}
		return m, r.done()
	case TagPhase2B:
		var m Phase2B
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2B key")
		}
		if m.Version, err = r.uint64(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2B version")
		}
		if err = m.Ballot.unmarshal(r); err != nil {
			return nil, errors.Wrap(err, "unmarshal Phase2B ballot")
		}
		return m, r.done()
	case TagLearn:
		var m Learn
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Learn key")
		}
		if m.Version, err = r.uint64(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Learn version")
		}
		if m.Value, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Learn value")
		}
		return m, r.done()
	case TagRetry:
		// Mandated fix (spec.md section 9): the retry payload's key must
		// actually be decoded here, not silently dropped.
		var m Retry
		var err error
		if m.Key, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Retry key")
		}
		return m, r.done()
	case TagReply:
		var m Reply
		status, err := r.byte()
		if err != nil {
			return nil, errors.Wrap(err, "unmarshal Reply status")
		}
		m.Status = ReturnCode(status)
		if m.Value, err = r.bytes(); err != nil {
			return nil, errors.Wrap(err, "unmarshal Reply value")
		}
		return m, r.done()
	default:
		return nil, errors.Errorf("pocdb: unknown message tag %q", tag)
	}
}
