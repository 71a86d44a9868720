package storage

import (
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
)

// FileStore is an append-structured, fsync-backed Store suitable for
// production use as a replica's durable store. Every record is
// length-prefixed (u32 key length, key bytes, u32 value length, value
// bytes) and appended to a single file; Get is served from an in-memory
// index rebuilt by replaying the file on Open. A later record for the
// same key shadows earlier ones, matching the overwrite semantics the
// acceptor and learner records need (spec.md section 3: "new learns
// overwrite").
//
// No embedded-database library appears in the example retrieval set (see
// DESIGN.md), so this is built directly on os/io/encoding/binary
// rather than wrapping a third-party engine.
type FileStore struct {
	mu  sync.Mutex
	f   *os.File
	idx map[string][]byte
}

// OpenFileStore opens (creating if necessary) the store at path and
// replays its contents into memory.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, errors.Wrapf(err, "open store file %q", path)
	}

	fs := &FileStore{f: f, idx: make(map[string][]byte)}
	if err := fs.replay(); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "replay store file %q", path)
	}
	return fs, nil
}

func (fs *FileStore) replay() error {
	if _, err := fs.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	var lenbuf [4]byte
	for {
		if _, err := io.ReadFull(fs.f, lenbuf[:]); err != nil {
			if err == io.EOF {
				break
			}
			return errors.Wrap(err, "read key length")
		}
		klen := binary.BigEndian.Uint32(lenbuf[:])
		key := make([]byte, klen)
		if _, err := io.ReadFull(fs.f, key); err != nil {
			return errors.Wrap(err, "read key")
		}
		if _, err := io.ReadFull(fs.f, lenbuf[:]); err != nil {
			return errors.Wrap(err, "read value length")
		}
		vlen := binary.BigEndian.Uint32(lenbuf[:])
		val := make([]byte, vlen)
		if _, err := io.ReadFull(fs.f, val); err != nil {
			return errors.Wrap(err, "read value")
		}
		fs.idx[string(key)] = val
	}
	_, err := fs.f.Seek(0, io.SeekEnd)
	return err
}

// Get implements Store.
func (fs *FileStore) Get(key []byte) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	v, ok := fs.idx[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Put implements Store. When sync is true the write is fsynced before
// Put returns, satisfying the durability every acceptor and learner
// write requires.
func (fs *FileStore) Put(key []byte, value []byte, sync bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	rec := make([]byte, 0, 8+len(key)+len(value))
	rec = appendLenPrefixed(rec, key)
	rec = appendLenPrefixed(rec, value)

	if _, err := fs.f.Write(rec); err != nil {
		return errors.Wrap(err, "append record")
	}
	if sync {
		if err := fs.f.Sync(); err != nil {
			return errors.Wrap(err, "fsync store file")
		}
	}

	v := make([]byte, len(value))
	copy(v, value)
	fs.idx[string(key)] = v
	return nil
}

// Close implements Store.
func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.f.Close()
}

func appendLenPrefixed(buf []byte, v []byte) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(len(v)))
	buf = append(buf, tmp[:]...)
	return append(buf, v...)
}
