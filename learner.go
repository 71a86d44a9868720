package pocdb

import (
	"encoding/binary"
	"log"

	"github.com/pkg/errors"

	"github.com/deadbeef-labs/pocdb/storage"
)

// Learner implements the Paxos learner role: it durably records the
// decided (version, value) pair for a key, and serves Get from that
// record alone, without any cross-replica coordination (spec.md section
// 4.5: "No coordination with peers.").
//
// Grounded on original_source/pocdb.cc's process_learn and process_get,
// but with the I3 fix spec.md section 9 mandates: the source comment
// there reads "there's a race condition here; should only write to
// leveldb if newly learned value has (ver) higher than previously
// learned value" -- this implementation adds exactly that guard.
type Learner struct {
	store storage.Store
}

// NewLearner returns a Learner backed by store.
func NewLearner(store storage.Store) *Learner {
	return &Learner{store: store}
}

// HandleLearn implements spec.md section 4.3. Unlike the reference
// implementation, an incoming version that is not strictly greater than
// the stored version is ignored rather than blindly overwriting it, so
// that a reordered late Learn for an old version cannot clobber a newer
// one (invariant I3).
func (l *Learner) HandleLearn(m Learn) error {
	key := learnerKey(m.Key)
	existing, err := l.store.Get(key)
	if err != nil && err != storage.ErrNotFound {
		return errors.Wrapf(err, "read learner state for key %q", m.Key)
	}
	if err == nil {
		if len(existing) < 8 {
			return errors.Errorf("corrupt learner record for key %q", m.Key)
		}
		writtenVersion := binary.LittleEndian.Uint64(existing[len(existing)-8:])
		if m.Version <= writtenVersion {
			// Mandated fix for I3: never regress a learned version.
			return nil
		}
	}

	rec := make([]byte, 0, len(m.Value)+8)
	rec = append(rec, m.Value...)
	var vbuf [8]byte
	binary.LittleEndian.PutUint64(vbuf[:], m.Version)
	rec = append(rec, vbuf[:]...)

	if err := l.store.Put(key, rec, true); err != nil {
		return errors.Wrapf(err, "write learner state for key %q", m.Key)
	}
	log.Printf("pocdb: learned %q version %d -> %q", m.Key, m.Version, m.Value)
	return nil
}

// Get implements spec.md section 4.5: strip the trailing 8-byte version
// suffix and return the value, or StatusNotFound if the key was never
// learned.
func (l *Learner) Get(key []byte) (ReturnCode, []byte) {
	raw, err := l.store.Get(learnerKey(key))
	if err == storage.ErrNotFound {
		return StatusNotFound, nil
	}
	if err != nil {
		log.Printf("pocdb: learner get %q: %v", key, err)
		return StatusServerError, nil
	}
	if len(raw) < 8 {
		log.Printf("pocdb: learner get %q: corrupt record", key)
		return StatusServerError, nil
	}
	return StatusSuccess, raw[:len(raw)-8]
}
