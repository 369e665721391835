package store

import (
	"context"
	"sync"
)

// Op names the kind of write a Change describes.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Change is published after every successful write made through a Collection.
type Change struct {
	Collection string
	ID         string
	Op         Op
}

const subscriberBuffer = 64

type subscriber struct {
	ch chan Change
}

// Hub fans out change events to in-process subscribers.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers interest in a collection until ctx is done.
func (h *Hub) Subscribe(ctx context.Context, collection string) <-chan Change {
	sub := &subscriber{ch: make(chan Change, subscriberBuffer)}

	h.mu.Lock()
	set, ok := h.subs[collection]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[collection] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.subs[collection], sub)
		if len(h.subs[collection]) == 0 {
			delete(h.subs, collection)
		}
		close(sub.ch)
		h.mu.Unlock()
	}()
	return sub.ch
}

// Publish delivers c to every subscriber of its collection. It never blocks:
// a subscriber whose buffer is full misses the event.
func (h *Hub) Publish(c Change) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[c.Collection] {
		select {
		case sub.ch <- c:
		default:
		}
	}
}
