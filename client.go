package pocdb

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/deadbeef-labs/pocdb/transport"
)

// DefaultRequestTimeout bounds how long a Client waits for a reply before
// giving up on a replica and moving to the next one, mirroring
// original_source/client.cc's request/response loop.
const DefaultRequestTimeout = 3 * time.Second

// Client is a synchronous pocdb client: it sends one request at a time
// and round-robins across the cluster's replicas on failure or timeout,
// matching original_source/client.cc, which simply retries against
// "the next host" whenever a request does not complete.
type Client struct {
	selfID  uint64
	peers   []uint64
	trans   transport.Transport
	timeout time.Duration

	next int
}

// NewClient returns a Client identified as selfID (its own address on
// trans, so replicas can reply to it) that talks to the given peers.
func NewClient(selfID uint64, peers []uint64, trans transport.Transport) *Client {
	return &Client{
		selfID:  selfID,
		peers:   peers,
		trans:   trans,
		timeout: DefaultRequestTimeout,
	}
}

// Put sends key/value to the cluster and blocks until it is durably
// decided, retrying against successive replicas on timeout or error.
func (c *Client) Put(key, value []byte) error {
	status, _, err := c.roundTrip(ClientPut{Key: key, Value: value})
	if err != nil {
		return err
	}
	if status != StatusSuccess {
		return errors.Errorf("pocdb: put %q: %s", key, status)
	}
	return nil
}

// Get fetches the current value of key, returning (nil, ErrKeyNotFound)
// if it was never written.
func (c *Client) Get(key []byte) ([]byte, error) {
	status, value, err := c.roundTrip(ClientGet{Key: key})
	if err != nil {
		return nil, err
	}
	switch status {
	case StatusSuccess:
		return value, nil
	case StatusNotFound:
		return nil, ErrKeyNotFound
	default:
		return nil, errors.Errorf("pocdb: get %q: %s", key, status)
	}
}

// ErrKeyNotFound is returned by Get when no value has ever been learned
// for the requested key.
var ErrKeyNotFound = errors.New("pocdb: key not found")

// roundTrip sends req to one replica and waits for a Reply, trying every
// replica in turn (starting from where the last call left off, so load
// is spread across the cluster) before giving up.
func (c *Client) roundTrip(req interface{}) (ReturnCode, []byte, error) {
	if len(c.peers) == 0 {
		return 0, nil, errors.New("pocdb: client has no peers configured")
	}

	payload, err := Marshal(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "marshal request")
	}

	var lastErr error
	for attempt := 0; attempt < len(c.peers); attempt++ {
		peer := c.peers[c.next%len(c.peers)]
		c.next++

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		status, value, err := c.sendAndWait(ctx, peer, payload)
		cancel()
		if err == nil {
			return status, value, nil
		}
		lastErr = err
	}
	return 0, nil, errors.Wrapf(lastErr, "pocdb: request failed against every replica")
}

func (c *Client) sendAndWait(ctx context.Context, peer uint64, payload []byte) (ReturnCode, []byte, error) {
	if err := c.trans.Send(ctx, peer, payload); err != nil {
		return 0, nil, errors.Wrapf(err, "send to replica %d", peer)
	}

	for {
		_, reply, err := c.trans.Recv(ctx)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "recv from replica %d", peer)
		}
		m, err := Unmarshal(reply)
		if err != nil {
			continue // ignore a stray unparseable frame and keep waiting
		}
		r, ok := m.(Reply)
		if !ok {
			continue // ignore anything that is not our reply
		}
		return r.Status, r.Value, nil
	}
}
