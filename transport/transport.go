/*
Package transport provides the point-to-point messaging primitive
spec.md treats as an opaque collaborator: send(peer_id, bytes) and
recv() -> (peer_id, bytes). pocdb's replica only ever calls Send and
Recv; it never inspects how bytes cross the wire.

Two implementations are provided: MemoryBus for tests, and
TCPTransport for real inter-process replicas, both modeled
on the teacher library's Transport implementations (InmemTransport and
NetworkTransport), generalized from kshaka's RPC-call shape to the
raw frame send/recv shape this protocol calls for.
*/
package transport

import "context"

// Transport is the messaging abstraction a Replica is built on.
type Transport interface {
	// Send delivers payload to peerID. Implementations may buffer or
	// drop on failure; pocdb treats every send as best-effort per
	// spec.md section 7 ("transport send failure ... silent drop").
	Send(ctx context.Context, peerID uint64, payload []byte) error

	// Recv blocks until a message arrives, returning the sender's peer
	// id and the raw payload. It is the transport's responsibility to
	// strip its own framing (e.g. TCPTransport's length prefix) before
	// returning.
	Recv(ctx context.Context) (peerID uint64, payload []byte, err error)

	// Close releases any resources (listeners, connections) the
	// transport holds.
	Close() error
}
