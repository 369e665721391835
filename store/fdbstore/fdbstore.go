//go:build fdb

// Package fdbstore is a store.Backend on FoundationDB. It is compiled only
// with the "fdb" build tag because the bindings link against libfdb_c.
//
// Documents live in a directory subspace: each collection is a tuple-packed
// sub-subspace and the document id is appended to it verbatim, so an id
// prefix is a contiguous key range. Mutate runs inside a serializable
// transaction, which gives the check-and-set semantics the services rely on
// across any number of server processes.
package fdbstore

import (
	"context"
	"sync"

	"github.com/apple/foundationdb/bindings/go/src/fdb"
	"github.com/apple/foundationdb/bindings/go/src/fdb/directory"
	"github.com/apple/foundationdb/bindings/go/src/fdb/tuple"

	"github.com/tabeth/inhouseaws/store"
)

// scanPageSize bounds each read transaction of a scan, keeping it well under
// FoundationDB's five second transaction limit.
const scanPageSize = 500

var (
	apiOnce sync.Once
	apiErr  error
)

// Options configures the connection.
type Options struct {
	// ClusterFile is the path to the cluster file. Empty uses the default.
	ClusterFile string
	// APIVersion is selected once per process.
	APIVersion int
	// Directory is the directory-layer path that holds all collections.
	Directory []string
}

// Backend implements store.Backend.
type Backend struct {
	db  fdb.Database
	dir directory.DirectorySubspace
}

var _ store.Backend = (*Backend)(nil)

// Open connects to the cluster and creates or opens the directory.
func Open(opts Options) (*Backend, error) {
	if opts.APIVersion == 0 {
		opts.APIVersion = 730
	}
	if len(opts.Directory) == 0 {
		opts.Directory = []string{"inhouse-aws"}
	}
	apiOnce.Do(func() {
		apiErr = fdb.APIVersion(opts.APIVersion)
	})
	if apiErr != nil {
		return nil, apiErr
	}

	db, err := fdb.OpenDatabase(opts.ClusterFile)
	if err != nil {
		return nil, err
	}
	dir, err := directory.CreateOrOpen(db, opts.Directory, nil)
	if err != nil {
		return nil, err
	}
	return &Backend{db: db, dir: dir}, nil
}

func (b *Backend) key(collection, id string) fdb.Key {
	prefix := b.dir.Pack(tuple.Tuple{collection})
	k := make([]byte, 0, len(prefix)+len(id))
	k = append(k, prefix...)
	return fdb.Key(append(k, id...))
}

func (b *Backend) Get(ctx context.Context, collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k := b.key(collection, id)
	v, err := b.db.ReadTransact(func(rtr fdb.ReadTransaction) (interface{}, error) {
		return rtr.Get(k).Get()
	})
	if err != nil {
		return nil, err
	}
	doc, _ := v.([]byte)
	if doc == nil {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

// Scan reads the range page by page, each page in its own read transaction.
// A scan is therefore not a point-in-time snapshot of the whole collection.
func (b *Backend) Scan(ctx context.Context, collection, prefix string, fn func(id string, doc []byte) error) error {
	strip := len(b.dir.Pack(tuple.Tuple{collection}))
	full, err := fdb.PrefixRange(b.key(collection, prefix))
	if err != nil {
		return err
	}

	var begin fdb.KeyConvertible = full.Begin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r := fdb.KeyRange{Begin: begin, End: full.End}
		v, err := b.db.ReadTransact(func(rtr fdb.ReadTransaction) (interface{}, error) {
			return rtr.GetRange(r, fdb.RangeOptions{Limit: scanPageSize}).GetSliceWithError()
		})
		if err != nil {
			return err
		}
		kvs := v.([]fdb.KeyValue)
		for _, kv := range kvs {
			if err := fn(string(kv.Key[strip:]), kv.Value); err != nil {
				return err
			}
		}
		if len(kvs) < scanPageSize {
			return nil
		}
		last := kvs[len(kvs)-1].Key
		begin = fdb.Key(append(append([]byte(nil), last...), 0x00))
	}
}

func (b *Backend) Mutate(ctx context.Context, collection, id string, fn store.MutateFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := b.key(collection, id)
	wrote, err := b.db.Transact(func(tr fdb.Transaction) (interface{}, error) {
		current, err := tr.Get(k).Get()
		if err != nil {
			return false, err
		}
		next, write, err := fn(current)
		if err != nil || !write {
			return false, err
		}
		if next == nil {
			tr.Clear(k)
		} else {
			tr.Set(k, next)
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return wrote.(bool), nil
}

// Close is a no-op: the bindings keep one network thread per process.
func (b *Backend) Close() error { return nil }
