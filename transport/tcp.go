package transport

import (
	"context"
	"encoding/binary"
	"io"
	"log"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// TCPTransport is a length-framed TCP Transport: each connection opens
// with an 8-byte big-endian peer id (so the accepting side learns who is
// calling) and then carries a stream of 4-byte-length-prefixed frames,
// each frame being one pocdb wire message. Grounded on the teacher
// library's NetworkTransport/net_transport.go, but built on a raw
// net.Conn rather than net/rpc: this protocol's wire format is the
// spec's own tag+payload framing, not an RPC method call.
type TCPTransport struct {
	selfID uint64
	peers  map[uint64]string // peerID -> "host:port"

	listener net.Listener
	recvCh   chan envelope

	mu    sync.Mutex
	conns map[uint64]net.Conn

	closeOnce sync.Once
	closed    chan struct{}
}

// NewTCPTransport starts listening on listenAddr and returns a
// TCPTransport identified as selfID to its peers. peers maps every
// cluster member's id (including selfID) to its "host:port" address.
func NewTCPTransport(selfID uint64, listenAddr string, peers map[uint64]string) (*TCPTransport, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %q", listenAddr)
	}

	t := &TCPTransport{
		selfID: selfID,
		peers:  peers,
		listener: ln,
		recvCh:   make(chan envelope, 256),
		conns:    make(map[uint64]net.Conn),
		closed:   make(chan struct{}),
	}
	go t.acceptLoop()
	return t, nil
}

func (t *TCPTransport) acceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.closed:
				return
			default:
				log.Printf("pocdb/transport: accept error: %v", err)
				return
			}
		}
		go t.serveConn(conn)
	}
}

func (t *TCPTransport) serveConn(conn net.Conn) {
	var idbuf [8]byte
	if _, err := io.ReadFull(conn, idbuf[:]); err != nil {
		log.Printf("pocdb/transport: reading peer preamble: %v", err)
		conn.Close()
		return
	}
	from := binary.BigEndian.Uint64(idbuf[:])

	// Register the inbound connection under the sender's self-declared
	// id so that a reply addressed to that id (Send(from, ...)) reuses
	// this same socket instead of trying to dial an address we may not
	// have -- this is how a client, which has no entry in the peers
	// table, still receives its reply on a TCPTransport.
	t.mu.Lock()
	if _, exists := t.conns[from]; !exists {
		t.conns[from] = conn
	}
	t.mu.Unlock()

	t.readFrames(conn, from)
}

// readFrames reads length-prefixed frames from conn, attributed to
// peerID, until the connection closes or the transport is shut down. It
// is used both for inbound connections accepted from other peers (after
// their preamble is consumed) and for outbound connections this
// transport dialed itself: either side of an already-established TCP
// connection can carry a reply, so both directions need a reader.
func (t *TCPTransport) readFrames(conn net.Conn, peerID uint64) {
	defer conn.Close()
	for {
		var lenbuf [4]byte
		if _, err := io.ReadFull(conn, lenbuf[:]); err != nil {
			if err != io.EOF {
				log.Printf("pocdb/transport: reading frame length from peer %d: %v", peerID, err)
			}
			t.dropConn(peerID)
			return
		}
		n := binary.BigEndian.Uint32(lenbuf[:])
		payload := make([]byte, n)
		if _, err := io.ReadFull(conn, payload); err != nil {
			log.Printf("pocdb/transport: reading frame body from peer %d: %v", peerID, err)
			t.dropConn(peerID)
			return
		}
		select {
		case t.recvCh <- envelope{from: peerID, payload: payload}:
		case <-t.closed:
			return
		}
	}
}

func (t *TCPTransport) dial(peerID uint64) (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[peerID]; ok {
		return c, nil
	}
	addr, ok := t.peers[peerID]
	if !ok {
		return nil, errors.Errorf("no known address for peer %d", peerID)
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial peer %d at %q", peerID, addr)
	}
	var idbuf [8]byte
	binary.BigEndian.PutUint64(idbuf[:], t.selfID)
	if _, err := conn.Write(idbuf[:]); err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "send preamble to peer %d", peerID)
	}
	t.conns[peerID] = conn
	// A connection we dialed is just as duplex as one we accepted: the
	// peer may write a reply (e.g. a client's Reply to a ClientPut) back
	// down the same socket, so it needs a reader too.
	go t.readFrames(conn, peerID)
	return conn, nil
}

func (t *TCPTransport) dropConn(peerID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.conns[peerID]; ok {
		c.Close()
		delete(t.conns, peerID)
	}
}

// Send implements Transport. A failure to reach peerID is logged and
// treated as a silent drop, per spec.md section 7: Paxos tolerates lost
// messages and will retry at a higher ballot or version.
func (t *TCPTransport) Send(ctx context.Context, peerID uint64, payload []byte) error {
	conn, err := t.dial(peerID)
	if err != nil {
		log.Printf("pocdb/transport: send to peer %d: %v", peerID, err)
		return nil
	}

	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(payload)))
	if _, err := conn.Write(lenbuf[:]); err != nil {
		t.dropConn(peerID)
		log.Printf("pocdb/transport: send length to peer %d: %v", peerID, err)
		return nil
	}
	if _, err := conn.Write(payload); err != nil {
		t.dropConn(peerID)
		log.Printf("pocdb/transport: send payload to peer %d: %v", peerID, err)
		return nil
	}
	return nil
}

// Recv implements Transport.
func (t *TCPTransport) Recv(ctx context.Context) (uint64, []byte, error) {
	select {
	case e := <-t.recvCh:
		return e.from, e.payload, nil
	case <-t.closed:
		return 0, nil, errors.New("transport: closed")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

// Close implements Transport.
func (t *TCPTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.listener.Close()
		t.mu.Lock()
		for _, c := range t.conns {
			c.Close()
		}
		t.mu.Unlock()
	})
	return nil
}
