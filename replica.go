package pocdb

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/deadbeef-labs/pocdb/storage"
	"github.com/deadbeef-labs/pocdb/transport"
)

// DefaultStallRetryInterval is how often a Replica nudges every in-flight
// proposer round to re-send its outstanding messages, covering for a
// message lost before any Retry was ever provoked. original_source's
// pocdaemon has no equivalent: it relies solely on client-driven retries.
// This is a supplemental robustness measure, not a correctness
// requirement -- Paxos's safety does not depend on it firing at all.
const DefaultStallRetryInterval = 2 * time.Second

// Stats are the per-replica counters SPEC_FULL.md calls for. No metrics
// library appears anywhere in the example retrieval set, so these are
// exported as plain atomics for a caller to poll or expose however it
// likes, rather than wired to a reporting backend.
type Stats struct {
	PutsServed    uint64
	GetsServed    uint64
	RoundsStarted uint64
	RetriesHandled uint64
}

// Replica is one of the five pocdb servers: it owns a Store, runs the
// Acceptor and Learner roles against it, and drives a KeyTable of
// proposer state machines, all fed by messages arriving on a Transport.
//
// Grounded on the teacher library's Node (node.go), which aggregates a
// StableStore, a Transport and a changeFunc behind one receive loop;
// generalized here to dispatch by the wire protocol's tag byte across
// nine message kinds instead of one RPC method, and to fan work out
// across per-key state machines instead of a single node-wide mutex.
type Replica struct {
	selfID uint64
	peers  []uint64

	store    storage.Store
	acceptor *Acceptor
	learner  *Learner
	outbox   Outbox
	trans    transport.Transport
	keys     *KeyTable

	stats Stats

	stallInterval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewReplica wires together a Replica for selfID, talking to peers over
// trans and persisting through store. peers should list every member of
// the cluster including selfID, per Outbox.Broadcast's "sending to self
// is allowed" rule.
func NewReplica(selfID uint64, peers []uint64, store storage.Store, trans transport.Transport) *Replica {
	acceptor := NewAcceptor(selfID, store)
	learner := NewLearner(store)
	outbox := newOutbox(selfID, trans, peers)

	r := &Replica{
		selfID:        selfID,
		peers:         peers,
		store:         store,
		acceptor:      acceptor,
		learner:       learner,
		outbox:        outbox,
		trans:         trans,
		stallInterval: DefaultStallRetryInterval,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	r.keys = NewKeyTable(func(key []byte) (*proposerState, error) {
		st, err := acceptor.State(key)
		if err != nil {
			return nil, errors.Wrapf(err, "seed proposer state for key %q", key)
		}
		return newProposerState(key, selfID, peers, acceptor, outbox, st.Version), nil
	})
	return r
}

// Run reads messages from the transport and dispatches them until Stop
// is called or the transport's Recv reports a permanent error. It is
// meant to be run in its own goroutine; Stop blocks until it returns.
func (r *Replica) Run() {
	defer close(r.doneCh)

	var stallTick <-chan time.Time
	if r.stallInterval > 0 {
		ticker := time.NewTicker(r.stallInterval)
		defer ticker.Stop()
		stallTick = ticker.C
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-r.stopCh
		cancel()
	}()

	for {
		select {
		case <-r.stopCh:
			return
		case <-stallTick:
			r.nudgeAll()
			continue
		default:
		}

		// Bound each Recv by the stall interval so that a tick is noticed
		// even when no message arrives.
		recvCtx, cancelRecv := ctx, context.CancelFunc(func() {})
		if r.stallInterval > 0 {
			recvCtx, cancelRecv = context.WithTimeout(ctx, r.stallInterval)
		}
		from, payload, err := r.trans.Recv(recvCtx)
		cancelRecv()
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
			}
			if ctx.Err() == nil && recvCtx.Err() == context.DeadlineExceeded {
				continue
			}
			log.Printf("pocdb: replica %d: recv: %v", r.selfID, err)
			return
		}

		m, err := Unmarshal(payload)
		if err != nil {
			log.Printf("pocdb: replica %d: dropping unparseable message from %d: %v", r.selfID, from, err)
			continue
		}
		r.dispatch(from, m)
	}
}

// Stop signals Run to exit and waits for it to do so.
func (r *Replica) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	<-r.doneCh
}

// Snapshot returns a snapshot of the replica's counters.
func (r *Replica) Snapshot() Stats {
	return Stats{
		PutsServed:     atomic.LoadUint64(&r.stats.PutsServed),
		GetsServed:     atomic.LoadUint64(&r.stats.GetsServed),
		RoundsStarted:  atomic.LoadUint64(&r.stats.RoundsStarted),
		RetriesHandled: atomic.LoadUint64(&r.stats.RetriesHandled),
	}
}

func (r *Replica) dispatch(from uint64, m interface{}) {
	switch v := m.(type) {
	case ClientPut:
		r.handleClientPut(from, v)
	case ClientGet:
		r.handleClientGet(from, v)
	case Phase1A:
		r.handlePhase1A(from, v)
	case Phase1B:
		r.handlePhase1B(from, v)
	case Phase2A:
		r.handlePhase2A(v)
	case Phase2B:
		r.handlePhase2B(from, v)
	case Learn:
		r.handleLearn(v)
	case Retry:
		r.handleRetry(v)
	case Reply:
		// A reply is only ever meaningful to a client; a replica
		// receiving one (e.g. a stray loopback) has nothing to do.
	default:
		log.Printf("pocdb: replica %d: dispatch: unhandled message type %T", r.selfID, m)
	}
}

func (r *Replica) handleClientPut(clientID uint64, m ClientPut) {
	atomic.AddUint64(&r.stats.PutsServed, 1)
	s, err := r.keys.Acquire(m.Key)
	if err != nil {
		log.Printf("pocdb: replica %d: acquire key %q: %v", r.selfID, m.Key, err)
		r.outbox.SendTo(clientID, Reply{Status: StatusServerError})
		return
	}
	atomic.AddUint64(&r.stats.RoundsStarted, 1)
	s.Write(clientID, m.Value)
	r.keys.Release(m.Key)
}

func (r *Replica) handleClientGet(clientID uint64, m ClientGet) {
	atomic.AddUint64(&r.stats.GetsServed, 1)
	status, value := r.learner.Get(m.Key)
	r.outbox.SendTo(clientID, Reply{Status: status, Value: value})
}

func (r *Replica) handlePhase1A(from uint64, m Phase1A) {
	reply, err := r.acceptor.HandlePhase1A(from, m)
	if err != nil {
		log.Printf("pocdb: replica %d: phase1a for key %q: %v", r.selfID, m.Key, err)
		return
	}
	r.outbox.SendTo(m.Ballot.Leader, reply)
}

func (r *Replica) handlePhase2A(m Phase2A) {
	reply, err := r.acceptor.HandlePhase2A(m)
	if err != nil {
		log.Printf("pocdb: replica %d: phase2a for key %q: %v", r.selfID, m.Key, err)
		return
	}
	r.outbox.SendTo(m.Ballot.Leader, reply)
}

func (r *Replica) handlePhase1B(from uint64, m Phase1B) {
	s, err := r.keys.Acquire(m.Key)
	if err != nil {
		log.Printf("pocdb: replica %d: acquire key %q for phase1b: %v", r.selfID, m.Key, err)
		return
	}
	s.Phase1B(from, m.Version, m.Promised, m.Accepted)
	r.keys.Release(m.Key)
}

func (r *Replica) handlePhase2B(from uint64, m Phase2B) {
	s, err := r.keys.Acquire(m.Key)
	if err != nil {
		log.Printf("pocdb: replica %d: acquire key %q for phase2b: %v", r.selfID, m.Key, err)
		return
	}
	s.Phase2B(from, m.Version, m.Ballot)
	r.keys.Release(m.Key)
}

func (r *Replica) handleLearn(m Learn) {
	if err := r.learner.HandleLearn(m); err != nil {
		log.Printf("pocdb: replica %d: learn for key %q: %v", r.selfID, m.Key, err)
	}
}

func (r *Replica) handleRetry(m Retry) {
	atomic.AddUint64(&r.stats.RetriesHandled, 1)
	s, err := r.keys.Acquire(m.Key)
	if err != nil {
		log.Printf("pocdb: replica %d: acquire key %q for retry: %v", r.selfID, m.Key, err)
		return
	}
	s.Retry()
	r.keys.Release(m.Key)
}

// nudgeAll re-enters drive() on every live proposer state, causing any
// round still waiting on a quorum to re-send to whichever peers have not
// yet answered. It never changes ballot or version, so it is safe to
// call at any time.
func (r *Replica) nudgeAll() {
	r.keys.ForEach(func(key []byte, s *proposerState) {
		s.Nudge()
	})
}
