package storage

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
)

func TestFSStoreRoundTrip(t *testing.T) {
	store, err := NewFSStore(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if ok, _ := store.Exists("a.mp3"); ok {
		t.Fatalf("unexpected key before put")
	}
	if err := store.Put("a.mp3", []byte("audio")); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := store.Get("a.mp3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte("audio")) {
		t.Fatalf("unexpected payload %q", got)
	}
	if ok, _ := store.Exists("a.mp3"); !ok {
		t.Fatalf("expected key after put")
	}
	if err := store.Delete("a.mp3"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := store.Exists("a.mp3"); ok {
		t.Fatalf("expected key gone after delete")
	}
}

func TestFSStoreDeleteMissingKeyIsNoop(t *testing.T) {
	store, err := NewFSStore(afero.NewMemMapFs(), "/cache")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Delete("missing"); err != nil {
		t.Fatalf("delete of missing key must not fail: %v", err)
	}
}
