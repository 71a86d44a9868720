package pocdb

import (
	"bytes"
	"sync"
	"time"
)

// pendingWrite is one queued client Put awaiting a successful decree.
type pendingWrite struct {
	clientID uint64
	value    []byte
}

// proposerState is the per-key Paxos proposer state machine described in
// spec.md section 4.4 -- "the single largest component" of this system.
// Every field below is protected by mu; spec.md invariant I5 requires
// that no other key's state is ever touched while holding it.
//
// Grounded on the teacher library's proposer.go (sendPrepare/sendAccept
// with an F+1-confirmation quorum loop and per-round ballot state) and
// on original_source/pocdb.cc's write_state_machine, which this more
// directly mirrors: both keep a pending value queue, an executing flag,
// a leading ballot, promise/accepted sets, and a max_accepted pvalue,
// and both drive forward by re-entering a work procedure after every
// external event. Per DESIGN NOTES section 9 ("model as a loop rather
// than recursion to keep stack bounded"), the original's recursive
// work_state_machine becomes the iterative drive loop below.
type proposerState struct {
	mu sync.Mutex

	key      []byte
	selfID   uint64
	peers    []uint64
	acceptor *Acceptor
	outbox   Outbox

	pending   []pendingWrite
	executing bool
	leading   Ballot
	version   uint64

	promises    map[uint64]struct{}
	accepted    map[uint64]struct{}
	maxAccepted PValue

	// lastBallotNumber enforces the DESIGN NOTES section 9 guard:
	// "a single proposer that retries within the same nanosecond must
	// ensure strict monotonicity by bumping the number if unchanged."
	lastBallotNumber uint64

	nowNanos func() uint64 // overridable for deterministic tests
}

func newProposerState(key []byte, selfID uint64, peers []uint64, acceptor *Acceptor, outbox Outbox, startVersion uint64) *proposerState {
	return &proposerState{
		key:      key,
		selfID:   selfID,
		peers:    peers,
		acceptor: acceptor,
		outbox:   outbox,
		version:  startVersion,
		nowNanos: func() uint64 { return uint64(time.Now().UnixNano()) },
	}
}

// idle reports whether this state machine can be safely dropped from
// the KeyTable: no queued writes and no round in flight.
func (s *proposerState) idle() bool {
	return !s.executing && len(s.pending) == 0
}

// Write implements the write(client_id, value) trigger from spec.md
// section 4.4.
func (s *proposerState) Write(clientID uint64, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingWrite{clientID: clientID, value: value})
	s.drive()
}

// Phase1B implements the phase1b integration rule from spec.md
// section 4.4.
func (s *proposerState) Phase1B(peer uint64, ver uint64, promised Ballot, acceptedPV PValue) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if (s.version != 0 && ver > s.version) || promised.Greater(s.leading) {
		s.executing = false
		s.version = ver
		s.drive()
		return
	}

	s.version = ver
	if !acceptedPV.Ballot.IsZero() && acceptedPV.Ballot.Greater(s.maxAccepted.Ballot) {
		s.maxAccepted = acceptedPV
	}
	if s.promises == nil {
		s.promises = make(map[uint64]struct{})
	}
	s.promises[peer] = struct{}{}
	s.drive()
}

// Phase2B implements the phase2b integration rule from spec.md
// section 4.4.
func (s *proposerState) Phase2B(peer uint64, ver uint64, b Ballot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ver != s.version || b != s.leading {
		return
	}
	if s.accepted == nil {
		s.accepted = make(map[uint64]struct{})
	}
	s.accepted[peer] = struct{}{}
	s.drive()
}

// Nudge re-enters drive() without changing any round state, causing an
// in-flight round to re-send its outstanding Phase1A/Phase2A messages to
// whichever peers have not yet answered. Used by a replica's stall-retry
// ticker to recover from a message lost before any Retry was provoked.
func (s *proposerState) Nudge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drive()
}

// Retry implements the retry() trigger from spec.md section 4.4: the
// acceptor told us our (version, ballot) view is stale.
func (s *proposerState) Retry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executing = false
	s.version++
	s.drive()
}

// drive is the procedure from spec.md section 4.4, steps D0-D5. It must
// be called with mu held, and it is the only place that emits messages
// or mutates round state. It loops instead of recursing so that a long
// chain of "abandon and restart" or "decide and make progress on the
// next pending write" transitions runs in constant stack space.
func (s *proposerState) drive() {
	for {
		// D0 -- idle check.
		if !s.executing && len(s.pending) == 0 {
			return
		}

		// D1 -- start a round.
		if !s.executing {
			s.executing = true
			s.leading = Ballot{Number: s.nextBallotNumber(), Leader: s.selfID}
			s.promises = make(map[uint64]struct{})
			s.accepted = make(map[uint64]struct{})
			s.maxAccepted = PValue{Ballot: ZeroBallot, Value: s.pending[0].value}
		}

		// D2 -- adopted-value dominance: a peer already reported a
		// pvalue whose ballot beats ours. Abandon and restart with a
		// fresh, higher ballot.
		if s.maxAccepted.Ballot.Greater(s.leading) {
			s.executing = false
			if n := s.maxAccepted.Ballot.Number; n > s.lastBallotNumber {
				s.lastBallotNumber = n
			}
			continue
		}

		// D3 -- Phase 1 broadcast.
		if len(s.promises) < Quorum {
			for _, p := range s.peers {
				if _, ok := s.promises[p]; ok {
					continue
				}
				s.outbox.SendTo(p, Phase1A{Key: s.key, Version: s.version, Ballot: s.leading})
			}
			return
		}

		// D4 -- Phase 2 broadcast.
		if len(s.accepted) < Quorum {
			s.maxAccepted.Ballot = s.leading
			for _, p := range s.peers {
				if _, ok := s.accepted[p]; ok {
					continue
				}
				s.outbox.SendTo(p, Phase2A{Key: s.key, Version: s.version, Ballot: s.leading, Value: s.maxAccepted})
			}
			return
		}

		// D5 -- decision reached.
		s.outbox.Broadcast(Learn{Key: s.key, Version: s.version, Value: s.maxAccepted.Value})
		s.executing = false
		s.version++

		if len(s.pending) > 0 && bytes.Equal(s.maxAccepted.Value, s.pending[0].value) {
			head := s.pending[0]
			s.pending = s.pending[1:]
			s.outbox.SendTo(head.clientID, Reply{Status: StatusSuccess})
		}
		// else: a peer's write won this decree; ours stays queued for
		// the next round.

		continue // make progress on any remaining pending writes
	}
}

// nextBallotNumber returns a wallclock-derived ballot number, bumped by
// one over lastBallotNumber (the last number this proposer used, or the
// number of a dominating ballot seen in D2) if the clock has not passed
// it -- the strict-monotonicity guard from DESIGN NOTES section 9.
func (s *proposerState) nextBallotNumber() uint64 {
	n := s.nowNanos()
	if n <= s.lastBallotNumber {
		n = s.lastBallotNumber + 1
	}
	s.lastBallotNumber = n
	return n
}
