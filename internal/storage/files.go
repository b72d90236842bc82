package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrObjectNotFound is returned for unknown keys.
var ErrObjectNotFound = errors.New("object not found")

type object struct {
	data        []byte
	contentType string
}

// MemoryFileStore keeps objects in a map.
type MemoryFileStore struct {
	mu      sync.RWMutex
	objects map[string]object
}

// NewMemoryFileStore constructs a MemoryFileStore.
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{objects: make(map[string]object)}
}

// Put stores a copy of data under key.
func (s *MemoryFileStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Get returns a copy of the object.
func (s *MemoryFileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	return append([]byte(nil), obj.data...), nil
}

// Exists reports whether key is stored.
func (s *MemoryFileStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// ReadRange returns up to length bytes starting at offset. A negative length
// reads to the end; a zero length only checks that the object exists.
func (s *MemoryFileStore) ReadRange(_ context.Context, key string, offset, length int64) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrObjectNotFound)
	}
	size := int64(len(obj.data))
	if offset < 0 || offset > size {
		return nil, fmt.Errorf("%s: offset %d outside object of %d bytes", key, offset, size)
	}
	end := size
	if length >= 0 && offset+length < size {
		end = offset + length
	}
	return append([]byte(nil), obj.data[offset:end]...), nil
}
