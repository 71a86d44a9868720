package pocdb

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Ballot is a totally ordered proposal identifier. Proposers pick numbers
// from their local wallclock; the leader id breaks ties so that two
// replicas never produce the same ballot even if their clocks collide.
//
// The zero Ballot, (0, 0), is the sentinel meaning "no ballot".
type Ballot struct {
	Number uint64
	Leader uint64
}

// ZeroBallot is the sentinel "no ballot" value.
var ZeroBallot = Ballot{}

// Less reports whether b sorts strictly before rhs under the
// lexicographic (Number, Leader) order.
func (b Ballot) Less(rhs Ballot) bool {
	if b.Number != rhs.Number {
		return b.Number < rhs.Number
	}
	return b.Leader < rhs.Leader
}

// Greater reports whether b sorts strictly after rhs.
func (b Ballot) Greater(rhs Ballot) bool {
	return rhs.Less(b)
}

// IsZero reports whether b is the sentinel "no ballot".
func (b Ballot) IsZero() bool {
	return b == ZeroBallot
}

func (b Ballot) marshalTo(buf []byte) []byte {
	buf = appendUint64(buf, b.Number)
	buf = appendUint64(buf, b.Leader)
	return buf
}

func (b *Ballot) unmarshal(r *reader) error {
	var err error
	if b.Number, err = r.uint64(); err != nil {
		return errors.Wrap(err, "unmarshal ballot number")
	}
	if b.Leader, err = r.uint64(); err != nil {
		return errors.Wrap(err, "unmarshal ballot leader")
	}
	return nil
}

// PValue pairs a ballot with the value it accepted: "this ballot accepted
// this value". The zero PValue, (ZeroBallot, ""), means nothing has been
// accepted yet.
type PValue struct {
	Ballot Ballot
	Value  []byte
}

// ZeroPValue is the sentinel "nothing accepted" value.
var ZeroPValue = PValue{}

func (p PValue) marshalTo(buf []byte) []byte {
	buf = p.Ballot.marshalTo(buf)
	buf = appendBytes(buf, p.Value)
	return buf
}

func (p *PValue) unmarshal(r *reader) error {
	if err := p.Ballot.unmarshal(r); err != nil {
		return errors.Wrap(err, "unmarshal pvalue ballot")
	}
	v, err := r.bytes()
	if err != nil {
		return errors.Wrap(err, "unmarshal pvalue value")
	}
	p.Value = v
	return nil
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendBytes(buf []byte, v []byte) []byte {
	buf = appendUint32(buf, uint32(len(v)))
	return append(buf, v...)
}

// reader walks a []byte payload, decoding the u64/u32-length-prefixed
// fields the wire protocol uses. It never panics: once an error occurs
// every subsequent call returns the same error.
type reader struct {
	buf []byte
	off int
	err error
}

func newReader(buf []byte) *reader {
	return &reader{buf: buf}
}

func (r *reader) uint64() (uint64, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(r.buf)-r.off < 8 {
		r.err = errors.New("short buffer reading uint64")
		return 0, r.err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v, nil
}

func (r *reader) uint32() (uint32, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(r.buf)-r.off < 4 {
		r.err = errors.New("short buffer reading uint32")
		return 0, r.err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) byte() (byte, error) {
	if r.err != nil {
		return 0, r.err
	}
	if len(r.buf)-r.off < 1 {
		r.err = errors.New("short buffer reading byte")
		return 0, r.err
	}
	v := r.buf[r.off]
	r.off++
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	if uint32(len(r.buf)-r.off) < n {
		r.err = errors.New("short buffer reading byte string")
		return nil, r.err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.off:r.off+int(n)])
	r.off += int(n)
	return v, nil
}

func (r *reader) done() error {
	return r.err
}
