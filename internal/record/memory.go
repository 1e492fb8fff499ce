package record

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Store used by tests and throwaway runs.
//
// Thread-safety: all methods are safe for concurrent use. Change handlers
// run outside the lock so a handler may Read (but must not Replace).
type Memory struct {
	mu       sync.RWMutex
	values   map[string]memoryEntry
	watchers []ChangeFunc
	closed   bool
}

type memoryEntry struct {
	value []byte
	rev   Revision
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]memoryEntry)}
}

// Read returns the value and revision under key, or (nil, 0, nil) if absent.
func (m *Memory) Read(_ context.Context, key string) ([]byte, Revision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, 0, errors.New("record: store closed")
	}
	e, ok := m.values[key]
	if !ok {
		return nil, 0, nil
	}
	// Copy so callers can't mutate the stored value.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, e.rev, nil
}

// Replace writes value under key after validating rev.
func (m *Memory) Replace(_ context.Context, key string, value []byte, rev Revision) (Revision, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, errors.New("record: store closed")
	}
	current := m.values[key].rev
	if current != rev {
		m.mu.Unlock()
		return 0, ErrRevisionConflict
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	next := current + 1
	m.values[key] = memoryEntry{value: stored, rev: next}
	watchers := append([]ChangeFunc(nil), m.watchers...)
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(key)
	}
	return next, nil
}

// Delete removes key. Absent keys are a no-op and notify nothing.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errors.New("record: store closed")
	}
	_, ok := m.values[key]
	delete(m.values, key)
	watchers := append([]ChangeFunc(nil), m.watchers...)
	m.mu.Unlock()

	if ok {
		for _, fn := range watchers {
			fn(key)
		}
	}
	return nil
}

// Keys returns all keys with the given prefix, sorted.
func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errors.New("record: store closed")
	}
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Watch registers a change handler.
func (m *Memory) Watch(fn ChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}

// Close marks the store closed. Subsequent operations fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
