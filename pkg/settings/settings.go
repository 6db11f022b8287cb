// Package settings persists pyshim's user settings as a flat TOML table.
//
// The core treats the store as an opaque key-value map and only ever reads
// the [KeyDefault] entry (the global fallback requirement). Writes come from
// the CLI (`pyshim select`).
//
// # Usage
//
//	store := settings.NewFileStore(layout.Settings())
//	if err := store.Set(settings.KeyDefault, "3.9"); err != nil {
//	    return err
//	}
//	req, ok, err := store.Get(settings.KeyDefault)
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
)

// KeyDefault holds the global default requirement used when no
// .python-version file is found.
const KeyDefault = "default"

// Reader is the read-only view the resolver depends on.
type Reader interface {
	// Get returns the value for key. ok is false when the key is unset.
	Get(key string) (value string, ok bool, err error)
}

// Store is a readable and writable settings backend.
type Store interface {
	Reader
	Set(key, value string) error
	Delete(key string) error
}

// FileStore is a TOML-file-backed Store.
// A missing file reads as an empty store.
type FileStore struct {
	mu   sync.RWMutex
	path string
}

// NewFileStore returns a store backed by path. The file is created lazily
// on the first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	values := map[string]string{}
	if err := toml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", s.path, err)
	}
	return values, nil
}

func (s *FileStore) save(values map[string]string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(values); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, err := s.load()
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	values[key] = value
	return s.save(values)
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := values[key]; !ok {
		return nil
	}
	delete(values, key)
	return s.save(values)
}

var _ Store = (*FileStore)(nil)

// MemoryStore is an in-process Store, used by tests and callers that want
// to inject a fixed default.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore returns a store seeded with values.
func NewMemoryStore(values map[string]string) *MemoryStore {
	m := &MemoryStore{values: make(map[string]string, len(values))}
	for k, v := range values {
		m.values[k] = v
	}
	return m
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

var _ Store = (*MemoryStore)(nil)
