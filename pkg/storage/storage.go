// Package storage abstracts the persistent byte store backing the audio
// cache. The filesystem implementation sits on afero so tests run against
// an in-memory filesystem.
package storage

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Store is the persistence contract consumed by the cache: flat keyed blobs.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
	Delete(key string) error
	Exists(key string) (bool, error)
	// Path returns the absolute location backing key, for callers that
	// hand file references to a decoder.
	Path(key string) string
}

// FSStore stores each key as a file under a root directory.
type FSStore struct {
	fs   afero.Fs
	root string
}

func NewFSStore(fs afero.Fs, root string) (*FSStore, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{fs: fs, root: root}, nil
}

func (s *FSStore) Get(key string) ([]byte, error) {
	return afero.ReadFile(s.fs, s.Path(key))
}

func (s *FSStore) Put(key string, data []byte) error {
	path := s.Path(key)
	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, path, data, 0o644)
}

func (s *FSStore) Delete(key string) error {
	err := s.fs.Remove(s.Path(key))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *FSStore) Exists(key string) (bool, error) {
	return afero.Exists(s.fs, s.Path(key))
}

func (s *FSStore) Path(key string) string {
	return filepath.Join(s.root, key)
}

var _ Store = (*FSStore)(nil)
