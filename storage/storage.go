/*
Package storage provides the "local durable store" that spec.md treats as
an opaque collaborator: something with Get and a sync-capable Put, keyed
by raw bytes. pocdb's acceptor and learner state share one Store per
replica, distinguished only by key suffix ('A' for acceptor records, 'L'
for learner records), so they never collide or need their own store
instances.
*/
package storage

import "github.com/pkg/errors"

// ErrNotFound is returned by Get when key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key-value primitive pocdb builds on. Every Put
// with sync=true must be safely on stable storage (fsynced, in the
// FileStore implementation) before it returns, since acceptor and
// learner correctness depends on that.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound if absent.
	Get(key []byte) ([]byte, error)
	// Put writes value at key. If sync is true the write is durable
	// (fsynced) before Put returns.
	Put(key []byte, value []byte, sync bool) error
	// Close releases any resources held by the store.
	Close() error
}
