// Package store is the persistence layer behind the queue and federation
// services. Services never talk to a database directly: they work with typed
// collections of JSON documents (see Collection) that sit on top of a very
// small Backend contract. Any Backend that can read a document, scan a
// collection in key order and perform an atomic read-modify-write on a single
// document can host the whole system, which is how the same engine runs on the
// in-memory backend, on Pebble and on FoundationDB.
package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: document not found")
	// ErrDuplicateKey is returned by Insert when a document with the same id already exists.
	ErrDuplicateKey = errors.New("store: duplicate key")
	// ErrConditionFailed is returned when a guarded update or delete finds the
	// document in a state that no longer satisfies the guard.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrClosed is returned by backends after Close.
	ErrClosed = errors.New("store: backend closed")
)

// errStopScan lets a scan callback end iteration early without reporting an error.
var errStopScan = errors.New("store: stop scan")

// MutateFunc is handed the current raw document, or nil when the document
// does not exist, and returns its replacement. Returning write=false leaves the
// document untouched. A nil replacement with write=true deletes the document.
//
// Backends may invoke a MutateFunc more than once for a single Mutate call
// (FoundationDB retries conflicting transactions), so it must not have side
// effects beyond computing its result.
type MutateFunc func(current []byte) (next []byte, write bool, err error)

// Backend is the storage contract every persistence engine implements.
//
// Mutate is the only write primitive and must be atomic with respect to
// concurrent Mutate calls on the same document: the value handed to fn is
// the value that is replaced. Everything the services need (unique inserts,
// conditional updates, lease acquisition) is built from it.
type Backend interface {
	// Get returns a copy of the raw document, or ErrNotFound.
	Get(ctx context.Context, collection, id string) ([]byte, error)
	// Scan calls fn for every document whose id starts with prefix, in
	// ascending id order. Returning a non-nil error from fn stops the scan.
	Scan(ctx context.Context, collection, prefix string, fn func(id string, doc []byte) error) error
	// Mutate atomically replaces a single document. It reports whether a write happened.
	Mutate(ctx context.Context, collection, id string, fn MutateFunc) (bool, error)
	// Close releases the backend's resources.
	Close() error
}

// Store couples a Backend with the change hub that feeds watchers.
type Store struct {
	backend Backend
	hub     *Hub
}

// New wraps a backend. The returned Store owns the backend and closes it on Close.
func New(backend Backend) *Store {
	return &Store{backend: backend, hub: NewHub()}
}

// Backend returns the underlying storage engine.
func (s *Store) Backend() Backend { return s.backend }

// Watch subscribes to the changes made to a collection through this Store.
// The channel is closed when ctx is done. Slow readers miss events rather
// than block writers, so watchers must treat an event as a hint to re-read.
func (s *Store) Watch(ctx context.Context, collection string) <-chan Change {
	return s.hub.Subscribe(ctx, collection)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
