package pocdb

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/deadbeef-labs/pocdb/storage"
)

// acceptorSuffix and learnerSuffix distinguish the two record kinds that
// share one Store per key, per spec.md section 3: "Stored under durable
// key key || 'A'" / "key || 'L'".
const (
	acceptorSuffix = 'A'
	learnerSuffix  = 'L'
)

func acceptorKey(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	out[len(key)] = acceptorSuffix
	return out
}

func learnerKey(key []byte) []byte {
	out := make([]byte, len(key)+1)
	copy(out, key)
	out[len(key)] = learnerSuffix
	return out
}

// AcceptorRecord is the per-key persisted Paxos acceptor state described
// in spec.md section 3.
type AcceptorRecord struct {
	Version  uint64
	Promised Ballot
	Accepted PValue
}

// Acceptor implements the Paxos acceptor role shared by every key on one
// replica, backed by a single storage.Store. Grounded on the teacher
// library's acceptor.go/proposer_acceptor.go (Prepare/Accept reading and
// writing a StableStore-backed AcceptorState) and on
// original_source/pocdb.cc's get_acceptor_state/save_acceptor_state,
// generalized here to a distinct Store interface and to the version
// bookkeeping spec.md's I2 invariant requires.
type Acceptor struct {
	selfID uint64
	store  storage.Store
}

// NewAcceptor returns an Acceptor identified as selfID and backed by
// store. The accept rules do not consult selfID: HandlePhase1A compares
// the sender's id against the leader field of the incoming ballot, so
// that a peer may only drive its own ballots.
func NewAcceptor(selfID uint64, store storage.Store) *Acceptor {
	return &Acceptor{selfID: selfID, store: store}
}

// State reads the persisted acceptor record for key, applying the I2
// version-advance rule: if the acceptor's version equals the version
// recorded in the learner record, the key is "closed at this version"
// and the next read starts a fresh (version+1, zero, zero) round.
func (a *Acceptor) State(key []byte) (AcceptorRecord, error) {
	raw, err := a.store.Get(acceptorKey(key))
	if err != nil && err != storage.ErrNotFound {
		return AcceptorRecord{}, errors.Wrapf(err, "get acceptor state for key %q", key)
	}

	rec := AcceptorRecord{}
	if err == nil {
		if rec, err = decodeAcceptorRecord(raw); err != nil {
			return AcceptorRecord{}, errors.Wrapf(err, "corrupt acceptor state for key %q", key)
		}
	}

	learned, err := a.store.Get(learnerKey(key))
	if err != nil && err != storage.ErrNotFound {
		return AcceptorRecord{}, errors.Wrapf(err, "get learner state for key %q", key)
	}
	if err == nil {
		writtenVersion, err := decodeLearnerVersion(learned)
		if err != nil {
			return AcceptorRecord{}, errors.Wrapf(err, "corrupt learner state for key %q", key)
		}
		if rec.Version == writtenVersion {
			rec = AcceptorRecord{Version: rec.Version + 1}
		}
	}

	return rec, nil
}

// Save durably persists rec for key.
func (a *Acceptor) Save(key []byte, rec AcceptorRecord) error {
	buf := encodeAcceptorRecord(rec)
	if err := a.store.Put(acceptorKey(key), buf, true); err != nil {
		return errors.Wrapf(err, "save acceptor state for key %q", key)
	}
	return nil
}

// HandlePhase1A implements spec.md section 4.2's Phase1A handler: accept
// the proposal (bump promised/version and persist) iff the sender is the
// ballot's own leader, the ballot strictly exceeds the current promise,
// and the proposed version is not behind the acceptor's. Either way,
// reply with the (possibly updated) state.
func (a *Acceptor) HandlePhase1A(fromPeer uint64, m Phase1A) (Phase1B, error) {
	cur, err := a.State(m.Key)
	if err != nil {
		return Phase1B{}, err
	}

	reply := Phase1B{
		Key:      m.Key,
		Version:  cur.Version,
		Promised: cur.Promised,
		Accepted: cur.Accepted,
	}

	if fromPeer == m.Ballot.Leader && m.Ballot.Greater(cur.Promised) && m.Version >= cur.Version {
		cur.Version = m.Version
		cur.Promised = m.Ballot
		if err := a.Save(m.Key, cur); err != nil {
			return Phase1B{}, err
		}
		// The reply carries the pre-accept accepted pvalue (untouched
		// by this promise) but the post-accept version/promised.
		reply.Version = cur.Version
		reply.Promised = cur.Promised
	}

	return reply, nil
}

// HandlePhase2A implements spec.md section 4.2's Phase2A handler: accept
// iff the proposer's (version, ballot) view matches the acceptor's
// exactly. On mismatch, reply Retry so the proposer knows to restart.
func (a *Acceptor) HandlePhase2A(m Phase2A) (interface{}, error) {
	cur, err := a.State(m.Key)
	if err != nil {
		return nil, err
	}

	if m.Version == cur.Version && m.Ballot == cur.Promised {
		cur.Accepted = m.Value
		if err := a.Save(m.Key, cur); err != nil {
			return nil, err
		}
		return Phase2B{Key: m.Key, Version: cur.Version, Ballot: cur.Promised}, nil
	}

	return Retry{Key: m.Key}, nil
}

func encodeAcceptorRecord(rec AcceptorRecord) []byte {
	buf := make([]byte, 0, 64)
	buf = appendUint64(buf, rec.Version)
	buf = rec.Promised.marshalTo(buf)
	buf = rec.Accepted.marshalTo(buf)
	return buf
}

func decodeAcceptorRecord(buf []byte) (AcceptorRecord, error) {
	r := newReader(buf)
	var rec AcceptorRecord
	var err error
	if rec.Version, err = r.uint64(); err != nil {
		return rec, errors.Wrap(err, "decode version")
	}
	if err = rec.Promised.unmarshal(r); err != nil {
		return rec, errors.Wrap(err, "decode promised ballot")
	}
	if err = rec.Accepted.unmarshal(r); err != nil {
		return rec, errors.Wrap(err, "decode accepted pvalue")
	}
	return rec, r.done()
}

// decodeLearnerVersion extracts the trailing 8-byte little-endian
// version suffix from a learner record, per spec.md section 3: "value
// bytes || version_u64_le".
func decodeLearnerVersion(raw []byte) (uint64, error) {
	if len(raw) < 8 {
		return 0, errors.New("learner record shorter than version suffix")
	}
	return binary.LittleEndian.Uint64(raw[len(raw)-8:]), nil
}
