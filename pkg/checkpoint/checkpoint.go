// Package checkpoint persists pagination cursors so a long extraction can
// resume from its last flushed position. Keys are run-scoped; values are
// opaque cursor tokens. Writes are idempotent overwrites and no concurrent
// writers share a key.
package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/hublift/hublift/pkg/errors"
	"github.com/hublift/hublift/pkg/jsonpool"
)

// Store is the cursor checkpoint store.
type Store interface {
	// Set records value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error
	// Get returns the value for key and whether one exists.
	Get(ctx context.Context, key string) (string, bool, error)
}

// MemoryStore is an in-process Store for tests and single-shot runs.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Set records value under key.
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Get returns the value for key.
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// FileStore persists checkpoints as a JSON map on disk. Every Set rewrites
// the file through a temp file and rename so a crash never leaves a torn
// checkpoint behind.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file is
// created on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Set records value under key.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value

	data, err := jsonpool.Marshal(values)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode checkpoint file")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write checkpoint file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to replace checkpoint file")
	}
	return nil
}

// Get returns the value for key.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		if dir := filepath.Dir(s.path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create checkpoint directory")
			}
		}
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to read checkpoint file")
	}

	values := make(map[string]string)
	if err := jsonpool.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to decode checkpoint file")
	}
	return values, nil
}
