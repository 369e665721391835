// Package pebblestore is a durable single-node store.Backend on top of Pebble.
//
// Every document lives under the key "<collection>\x00<id>", so a collection
// (or an id prefix within it) is a contiguous key range. Pebble has no
// read-modify-write transactions, so Mutate serialises writers with a
// process-wide mutex; the database must not be shared between processes.
package pebblestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/tabeth/inhouseaws/store"
)

const sep = 0x00

// FsyncMode defines durability behaviour for writes.
type FsyncMode int

const (
	// FsyncModeInterval lets Pebble coalesce WAL syncs within a short interval.
	FsyncModeInterval FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every write.
	FsyncModeAlways
	// FsyncModeNever leaves syncing entirely to Pebble.
	FsyncModeNever
)

// Options configures the backend.
type Options struct {
	// DataDir is the Pebble database directory. Required.
	DataDir string
	// Fsync selects the durability mode.
	Fsync FsyncMode
	// FsyncInterval is the group-commit window for FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. Nil uses Pebble's defaults.
	PebbleOptions *pebble.Options
}

// Backend implements store.Backend.
type Backend struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions
	mu        sync.Mutex
}

var _ store.Backend = (*Backend)(nil)

// Open creates or opens the database in opts.DataDir.
func Open(opts Options) (*Backend, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblestore: Options.DataDir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	writeOpts := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		writeOpts = pebble.Sync
	case FsyncModeNever:
	default:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
		writeOpts = pebble.Sync
	}

	db, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db, writeOpts: writeOpts}, nil
}

func key(collection, id string) []byte {
	k := make([]byte, 0, len(collection)+1+len(id))
	k = append(k, collection...)
	k = append(k, sep)
	return append(k, id...)
}

// upperBound returns the smallest key greater than every key starting with prefix.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.get(key(collection, id))
}

func (b *Backend) get(k []byte) ([]byte, error) {
	val, closer, err := b.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

func (b *Backend) Scan(ctx context.Context, collection, prefix string, fn func(id string, doc []byte) error) error {
	lower := key(collection, prefix)
	iter, err := b.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upperBound(lower)})
	if err != nil {
		return err
	}
	defer iter.Close()

	strip := len(collection) + 1
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := string(iter.Key()[strip:])
		doc := append([]byte(nil), iter.Value()...)
		if err := fn(id, doc); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (b *Backend) Mutate(ctx context.Context, collection, id string, fn store.MutateFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := key(collection, id)

	b.mu.Lock()
	defer b.mu.Unlock()

	current, err := b.get(k)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	next, write, err := fn(current)
	if err != nil || !write {
		return false, err
	}
	if next == nil {
		return true, b.db.Delete(k, b.writeOpts)
	}
	return true, b.db.Set(k, next, b.writeOpts)
}

func (b *Backend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
