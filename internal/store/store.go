// Package store defines the durable key/blob store the registry persists into
// and ships an in-memory implementation. Disk and database backends live in the
// file, sqlite and postgres subpackages.
package store

import (
	"context"
	"io"
	"strings"
	"sync"
)

// Store is a key to blob store. Implementations must make Put atomic per key:
// a reader never observes a partially written value.
type Store interface {
	// Get returns the value stored under key. The boolean is false when the key
	// has never been written.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Backend is a Store that holds resources which must be released.
type Backend interface {
	Store
	io.Closer
}

// Memory keeps values in process memory. Useful for tests and ephemeral runs.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	return clone(value), true, nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = clone(value)
	return nil
}

func (m *Memory) Close() error { return nil }

// ValidKey reports whether key is usable by every backend, including the
// file backend which maps keys to file names.
func ValidKey(key string) bool {
	if strings.TrimSpace(key) == "" || key == "." || key == ".." {
		return false
	}
	return !strings.ContainsAny(key, `/\`+"\x00")
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
