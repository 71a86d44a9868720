package storage

import (
	"path/filepath"
	"testing"
)

func TestFileStorePutGet(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer fs.Close()

	if err := fs.Put([]byte("kA"), []byte("v1"), true); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := fs.Get([]byte("kA"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("Get = %q, want v1", got)
	}
}

func TestFileStoreGetMissing(t *testing.T) {
	dir := t.TempDir()
	fs, err := OpenFileStore(filepath.Join(dir, "data"))
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	defer fs.Close()

	if _, err := fs.Get([]byte("absent")); err != ErrNotFound {
		t.Fatalf("Get(absent) err = %v, want ErrNotFound", err)
	}
}

func TestFileStoreOverwriteShadowsOlder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")
	fs, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}

	if err := fs.Put([]byte("k"), []byte("v1"), true); err != nil {
		t.Fatalf("Put v1: %v", err)
	}
	if err := fs.Put([]byte("k"), []byte("v2"), true); err != nil {
		t.Fatalf("Put v2: %v", err)
	}
	fs.Close()

	fs2, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fs2.Close()

	got, err := fs2.Get([]byte("k"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "v2" {
		t.Fatalf("Get after reopen = %q, want v2 (replay must take the latest record)", got)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data")

	fs, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if err := fs.Put([]byte("key1A"), []byte("acceptor-state"), true); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fs2, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer fs2.Close()
	got, err := fs2.Get([]byte("key1A"))
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "acceptor-state" {
		t.Fatalf("Get after reopen = %q, want acceptor-state", got)
	}
}
