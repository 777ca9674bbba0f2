package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ObjectStore is the durable object-store collaborator. Delivery is
// at-least-once: callers may re-put the same path with the same content.
type ObjectStore interface {
	PutObject(ctx context.Context, path string, data []byte) error
}

// FileObjectStore writes objects under a root directory. Writes go through a
// temp file and rename so a crash never leaves a half-written object.
type FileObjectStore struct {
	rootDir string
}

// NewFileObjectStore creates an object store rooted at rootDir.
func NewFileObjectStore(rootDir string) (*FileObjectStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("object store root directory required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store root %s: %w", rootDir, err)
	}
	return &FileObjectStore{rootDir: rootDir}, nil
}

func (s *FileObjectStore) PutObject(ctx context.Context, path string, data []byte) error {
	full := filepath.Join(s.rootDir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp object file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close object file: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to place object: %w", err)
	}
	return nil
}

// MemoryObjectStore is an in-memory ObjectStore for tests.
type MemoryObjectStore struct {
	objects map[string][]byte
	mutex   sync.Mutex
}

func NewMemoryObjectStore() *MemoryObjectStore {
	return &MemoryObjectStore{objects: map[string][]byte{}}
}

func (s *MemoryObjectStore) PutObject(ctx context.Context, path string, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.objects[path] = append([]byte(nil), data...)
	return nil
}

// Get returns a stored object and whether it exists.
func (s *MemoryObjectStore) Get(path string) ([]byte, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	data, ok := s.objects[path]
	return data, ok
}

// Len returns the number of stored objects.
func (s *MemoryObjectStore) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.objects)
}
