package pocdb

import (
	"context"
	"log"

	"github.com/deadbeef-labs/pocdb/transport"
)

// Outbox is the narrow capability a per-key proposer is given instead of
// a back-pointer to the owning Replica. spec.md section 9 calls out the
// reference source's cyclic proposer<->daemon reference and asks for it
// to be modeled as "the proposer holding a handle to a small Outbox
// capability (send by peer id) and nothing else -- no cycle." A
// proposer that only has an Outbox cannot reach the key table, the
// store, or any other key's state, which is what keeps per-key locking
// (I5) enforceable by construction.
type Outbox interface {
	// SendTo marshals and sends m to exactly one peer.
	SendTo(peerID uint64, m interface{})
	// Broadcast marshals and sends m to every replica, self included
	// (spec.md section 4.4: "Sending to self is allowed").
	Broadcast(m interface{})
}

// replicaOutbox implements Outbox on top of a transport.Transport and
// the fixed membership table.
type replicaOutbox struct {
	selfID uint64
	trans  transport.Transport
	peers  []uint64
}

func newOutbox(selfID uint64, trans transport.Transport, peers []uint64) *replicaOutbox {
	return &replicaOutbox{selfID: selfID, trans: trans, peers: peers}
}

func (o *replicaOutbox) SendTo(peerID uint64, m interface{}) {
	buf, err := Marshal(m)
	if err != nil {
		log.Printf("pocdb: outbox: marshal %T for peer %d: %v", m, peerID, err)
		return
	}
	if err := o.trans.Send(context.Background(), peerID, buf); err != nil {
		// Transport failures are silent drops per spec.md section 7;
		// Paxos's retry paths cover for lost messages.
		log.Printf("pocdb: outbox: send %T to peer %d: %v", m, peerID, err)
	}
}

func (o *replicaOutbox) Broadcast(m interface{}) {
	buf, err := Marshal(m)
	if err != nil {
		log.Printf("pocdb: outbox: marshal %T for broadcast: %v", m, err)
		return
	}
	for _, p := range o.peers {
		if err := o.trans.Send(context.Background(), p, buf); err != nil {
			log.Printf("pocdb: outbox: broadcast %T to peer %d: %v", m, p, err)
		}
	}
}
