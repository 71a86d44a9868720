package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

type envelope struct {
	from    uint64
	payload []byte
}

// MemoryNetwork is a shared in-process registry of MemoryBus endpoints,
// used so that several replicas running as goroutines in the same test
// binary can exchange messages without a real socket. Grounded on the
// teacher library's InmemTransport, generalized from a single Node
// back-pointer to a registry of many peers since pocdb's Transport talks
// to N=5 peer ids rather than one fixed remote node.
type MemoryNetwork struct {
	mu    sync.RWMutex
	buses map[uint64]*MemoryBus
}

// NewMemoryNetwork returns an empty shared network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{buses: make(map[uint64]*MemoryBus)}
}

// NewBus registers and returns a new endpoint bound to peerID on this
// network.
func (n *MemoryNetwork) NewBus(peerID uint64) *MemoryBus {
	b := &MemoryBus{
		self:    peerID,
		network: n,
		inbox:   make(chan envelope, 256),
	}
	n.mu.Lock()
	n.buses[peerID] = b
	n.mu.Unlock()
	return b
}

func (n *MemoryNetwork) deliver(to uint64, e envelope) bool {
	n.mu.RLock()
	b, ok := n.buses[to]
	n.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case b.inbox <- e:
		return true
	default:
		// Full inbox: treat like a lossy network link and drop.
		return false
	}
}

// MemoryBus is a Transport implementation backed by a MemoryNetwork.
// Sending to a peer id with no registered bus is a silent drop, matching
// the "transport send failure is a silent drop" rule in spec.md
// section 7.
type MemoryBus struct {
	self    uint64
	network *MemoryNetwork
	inbox   chan envelope
	once    sync.Once
}

// Send implements Transport.
func (b *MemoryBus) Send(ctx context.Context, peerID uint64, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.network.deliver(peerID, envelope{from: b.self, payload: cp})
	return nil
}

// Recv implements Transport.
func (b *MemoryBus) Recv(ctx context.Context) (uint64, []byte, error) {
	select {
	case e, ok := <-b.inbox:
		if !ok {
			return 0, nil, errors.New("transport: bus closed")
		}
		return e.from, e.payload, nil
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Close implements Transport.
func (b *MemoryBus) Close() error {
	b.once.Do(func() { close(b.inbox) })
	return nil
}
