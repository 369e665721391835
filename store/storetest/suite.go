// Package storetest holds the conformance suite every store.Backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabeth/inhouseaws/store"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) store.Backend

type doc struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
	Tag   string `json:"tag,omitempty"`
}

func docKey(d *doc) string { return d.ID }

// Run exercises the Backend contract through the typed Collection API.
func Run(t *testing.T, newBackend Factory) {
	t.Run("InsertGet", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		c := store.NewCollection(s, "docs", docKey)
		ctx := context.Background()

		require.NoError(t, c.Insert(ctx, &doc{ID: "a", Count: 1}))
		err := c.Insert(ctx, &doc{ID: "a", Count: 2})
		assert.ErrorIs(t, err, store.ErrDuplicateKey)

		got, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Count)

		_, err = c.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		ctx := context.Background()
		a := store.NewCollection(s, "a", docKey)
		b := store.NewCollection(s, "b", docKey)

		require.NoError(t, a.Insert(ctx, &doc{ID: "x"}))
		_, err := b.Get(ctx, "x")
		assert.ErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, b.Insert(ctx, &doc{ID: "x"}))
	})

	t.Run("FindPrefixFilterSortLimit", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		c := store.NewCollection(s, "docs", docKey)
		ctx := context.Background()

		for i, id := range []string{"q1/c", "q1/a", "q2/a", "q1/b", "q10/a"} {
			require.NoError(t, c.Insert(ctx, &doc{ID: id, Count: i}))
		}

		all, err := c.Find(ctx, store.Query[doc]{Prefix: "q1/"})
		require.NoError(t, err)
		assert.Equal(t, []string{"q1/a", "q1/b", "q1/c"}, ids(all))

		limited, err := c.Find(ctx, store.Query[doc]{Prefix: "q1/", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"q1/a", "q1/b"}, ids(limited))

		byCount, err := c.Find(ctx, store.Query[doc]{
			Filter: func(d *doc) bool { return d.Count >= 1 },
			Less:   func(a, b *doc) bool { return a.Count > b.Count },
			Limit:  3,
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"q10/a", "q1/b", "q2/a"}, ids(byCount))
	})

	t.Run("GuardedUpdateAndDelete", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		c := store.NewCollection(s, "docs", docKey)
		ctx := context.Background()
		require.NoError(t, c.Insert(ctx, &doc{ID: "a", Count: 1}))

		updated, err := c.Update(ctx, "a", func(d *doc) bool { return d.Count == 1 }, func(d *doc) { d.Count = 2 })
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Count)

		_, err = c.Update(ctx, "a", func(d *doc) bool { return d.Count == 1 }, func(d *doc) { d.Count = 3 })
		assert.ErrorIs(t, err, store.ErrConditionFailed)

		_, err = c.Update(ctx, "missing", nil, func(d *doc) {})
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = c.Delete(ctx, "a", func(d *doc) bool { return d.Count == 1 })
		assert.ErrorIs(t, err, store.ErrConditionFailed)
		require.NoError(t, c.Delete(ctx, "a", func(d *doc) bool { return d.Count == 2 }))
		_, err = c.Get(ctx, "a")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("UpdateManyDeleteMany", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		c := store.NewCollection(s, "docs", docKey)
		ctx := context.Background()
		for i := 0; i < 6; i++ {
			require.NoError(t, c.Insert(ctx, &doc{ID: fmt.Sprintf("d%d", i), Count: i}))
		}

		n, err := c.UpdateMany(ctx, store.Query[doc]{Filter: func(d *doc) bool { return d.Count%2 == 0 }}, func(d *doc) { d.Tag = "even" })
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = c.DeleteMany(ctx, store.Query[doc]{Filter: func(d *doc) bool { return d.Tag == "even" }})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		rest, err := c.Find(ctx, store.Query[doc]{})
		require.NoError(t, err)
		assert.Equal(t, []string{"d1", "d3", "d5"}, ids(rest))
	})

	t.Run("ConcurrentConditionalUpdateHasOneWinner", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		c := store.NewCollection(s, "docs", docKey)
		ctx := context.Background()
		require.NoError(t, c.Insert(ctx, &doc{ID: "lease"}))

		const workers = 16
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := c.Update(ctx, "lease",
					func(d *doc) bool { return d.Tag == "" },
					func(d *doc) { d.Tag = fmt.Sprintf("worker-%d", i) })
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.True(t, errors.Is(err, store.ErrConditionFailed), "unexpected error: %v", err)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("ConcurrentIncrementsAreNotLost", func(t *testing.T) {
		s := store.New(newBackend(t))
		defer s.Close()
		c := store.NewCollection(s, "docs", docKey)
		ctx := context.Background()
		require.NoError(t, c.Insert(ctx, &doc{ID: "counter"}))

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := c.Update(ctx, "counter", nil, func(d *doc) { d.Count++ })
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := c.Get(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, workers, got.Count)
	})
}

func ids(docs []*doc) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}
