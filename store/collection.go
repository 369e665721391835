package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Query selects documents from a collection. All fields are optional.
type Query[T any] struct {
	// Prefix restricts the scan to ids starting with it. Documents are keyed
	// so that related documents share a prefix (messages of one queue, for example).
	Prefix string
	// Filter keeps only the documents it returns true for.
	Filter func(*T) bool
	// Less orders the result. Without it documents come back in id order.
	Less func(a, b *T) bool
	// Limit caps the number of documents returned. Zero means no limit.
	Limit int
}

// Collection is a typed view over one backend collection. Documents are
// stored as JSON and identified by the id the key function derives from them.
type Collection[T any] struct {
	store *Store
	name  string
	key   func(*T) string
}

// NewCollection binds a document type to a named collection.
func NewCollection[T any](s *Store, name string, key func(*T) string) *Collection[T] {
	return &Collection[T]{store: s, name: name, key: key}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string { return c.name }

// Insert stores a new document. It fails with ErrDuplicateKey if the id is taken.
func (c *Collection[T]) Insert(ctx context.Context, doc *T) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: encode %s document: %w", c.name, err)
	}
	id := c.key(doc)
	_, err = c.store.backend.Mutate(ctx, c.name, id, func(current []byte) ([]byte, bool, error) {
		if current != nil {
			return nil, false, ErrDuplicateKey
		}
		return raw, true, nil
	})
	if err != nil {
		return err
	}
	c.store.hub.Publish(Change{Collection: c.name, ID: id, Op: OpInsert})
	return nil
}

// Get loads a document by id.
func (c *Collection[T]) Get(ctx context.Context, id string) (*T, error) {
	raw, err := c.store.backend.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	return c.decode(raw)
}

// Find returns the documents matching q.
func (c *Collection[T]) Find(ctx context.Context, q Query[T]) ([]*T, error) {
	var out []*T
	// Without a sort order the scan order is the result order, so the limit
	// can stop the scan early.
	earlyStop := q.Less == nil && q.Limit > 0
	err := c.store.backend.Scan(ctx, c.name, q.Prefix, func(_ string, raw []byte) error {
		doc, err := c.decode(raw)
		if err != nil {
			return err
		}
		if q.Filter != nil && !q.Filter(doc) {
			return nil
		}
		out = append(out, doc)
		if earlyStop && len(out) >= q.Limit {
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return nil, err
	}
	if q.Less != nil {
		sort.SliceStable(out, func(i, j int) bool { return q.Less(out[i], out[j]) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Mutate runs fn against the current document (nil when absent) as one
// atomic step. fn returns the replacement document, nil to delete, or an
// error to abort without writing. The stored result is returned.
func (c *Collection[T]) Mutate(ctx context.Context, id string, fn func(current *T) (*T, error)) (*T, error) {
	var (
		result *T
		op     Op
	)
	_, err := c.store.backend.Mutate(ctx, c.name, id, func(raw []byte) ([]byte, bool, error) {
		var current *T
		if raw != nil {
			doc, err := c.decode(raw)
			if err != nil {
				return nil, false, err
			}
			current = doc
		}
		next, err := fn(current)
		if err != nil {
			return nil, false, err
		}
		if next == nil {
			if current == nil {
				return nil, false, nil
			}
			result, op = nil, OpDelete
			return nil, true, nil
		}
		encoded, err := json.Marshal(next)
		if err != nil {
			return nil, false, fmt.Errorf("store: encode %s document: %w", c.name, err)
		}
		result = next
		op = OpUpdate
		if current == nil {
			op = OpInsert
		}
		return encoded, true, nil
	})
	if err != nil {
		return nil, err
	}
	if op != "" {
		c.store.hub.Publish(Change{Collection: c.name, ID: id, Op: op})
	}
	return result, nil
}

// Update applies apply to the document if guard accepts its current state.
// It returns ErrNotFound when the document is missing and ErrConditionFailed
// when the guard rejects it. A nil guard always passes.
func (c *Collection[T]) Update(ctx context.Context, id string, guard func(*T) bool, apply func(*T)) (*T, error) {
	return c.Mutate(ctx, id, func(current *T) (*T, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		if guard != nil && !guard(current) {
			return nil, ErrConditionFailed
		}
		apply(current)
		return current, nil
	})
}

// Delete removes the document if guard accepts it, with the same error
// contract as Update.
func (c *Collection[T]) Delete(ctx context.Context, id string, guard func(*T) bool) error {
	_, err := c.Mutate(ctx, id, func(current *T) (*T, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		if guard != nil && !guard(current) {
			return nil, ErrConditionFailed
		}
		return nil, nil
	})
	return err
}

// UpdateMany applies apply to every document matching q. Each document is
// updated in its own atomic step with q.Filter re-checked against the latest
// version, so documents that stopped matching in the meantime are skipped.
func (c *Collection[T]) UpdateMany(ctx context.Context, q Query[T], apply func(*T)) (int, error) {
	docs, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		_, err := c.Update(ctx, c.key(doc), q.Filter, apply)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConditionFailed):
		default:
			return n, err
		}
	}
	return n, nil
}

// DeleteMany removes every document matching q, re-checking q.Filter per document.
func (c *Collection[T]) DeleteMany(ctx context.Context, q Query[T]) (int, error) {
	docs, err := c.Find(ctx, q)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, doc := range docs {
		err := c.Delete(ctx, c.key(doc), q.Filter)
		switch {
		case err == nil:
			n++
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrConditionFailed):
		default:
			return n, err
		}
	}
	return n, nil
}

func (c *Collection[T]) decode(raw []byte) (*T, error) {
	doc := new(T)
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("store: decode %s document: %w", c.name, err)
	}
	return doc, nil
}
