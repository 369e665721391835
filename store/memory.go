package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend keeps every collection in process memory. It is the default
// backend for development and the one the test suites run against.
type MemoryBackend struct {
	mu     sync.Mutex
	colls  map[string]map[string][]byte
	closed bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{colls: make(map[string]map[string][]byte)}
}

func (m *MemoryBackend) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	doc, ok := m.colls[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// Scan iterates over a snapshot taken when the scan starts, so fn may call
// back into the backend.
func (m *MemoryBackend) Scan(ctx context.Context, collection, prefix string, fn func(id string, doc []byte) error) error {
	type entry struct {
		id  string
		doc []byte
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	entries := make([]entry, 0, len(m.colls[collection]))
	for id, doc := range m.colls[collection] {
		if strings.HasPrefix(id, prefix) {
			entries = append(entries, entry{id: id, doc: append([]byte(nil), doc...)})
		}
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e.id, e.doc); err != nil {
			return err
		}
	}
	return nil
}

// Mutate holds the backend lock while fn runs, so fn must not call back into the backend.
func (m *MemoryBackend) Mutate(ctx context.Context, collection, id string, fn MutateFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}

	coll := m.colls[collection]
	var current []byte
	if doc, ok := coll[id]; ok {
		current = append([]byte(nil), doc...)
	}
	next, write, err := fn(current)
	if err != nil || !write {
		return false, err
	}
	if next == nil {
		delete(coll, id)
		return true, nil
	}
	if coll == nil {
		coll = make(map[string][]byte)
		m.colls[collection] = coll
	}
	coll[id] = append([]byte(nil), next...)
	return true, nil
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
