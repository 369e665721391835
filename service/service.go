// Package service implements the queue directory, the message engine, the
// identity federation flow and the background reconciler. It knows nothing
// about HTTP: the server package decodes requests into models and hands them
// to the types defined here, together with the Caller the request came from.
package service

import (
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tabeth/inhouseaws/kms"
	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

// Collection names.
const (
	CollectionQueues   = "queues"
	CollectionMessages = "messages"
	CollectionDedup    = "dedup"
	CollectionGroups   = "fifo_groups"
	CollectionSessions = "sessions"
)

// Fixed protocol constants.
const (
	// DedupWindow is how long a FIFO deduplication id suppresses repeats after it was last seen.
	DedupWindow = 5 * time.Minute
	// SessionDuration is the lifetime of federated credentials.
	SessionDuration = 15 * time.Minute
	// SenderID is reported as the SenderId of every message.
	SenderID = "000000000000"
)

// Caller identifies who a request came from. The server derives it from the
// request signature without verifying it.
type Caller struct {
	AccountID   string
	Region      string
	AccessKeyID string
}

// Options carries the dependencies shared by the services.
type Options struct {
	Clock   clockwork.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Sealer encrypts bodies of SSE-enabled queues. Without one such queues store plain bodies.
	Sealer *kms.Sealer
	// PollInterval is how often a long poll re-checks its queue.
	PollInterval time.Duration
	// MissingQueueDelayMin and MissingQueueDelayMax bound the random delay
	// before a receive on an unknown queue fails.
	MissingQueueDelayMin time.Duration
	MissingQueueDelayMax time.Duration
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.MissingQueueDelayMax < o.MissingQueueDelayMin {
		o.MissingQueueDelayMax = o.MissingQueueDelayMin
	}
	return o
}

// Collections are the typed document collections the services share.
type Collections struct {
	store    *store.Store
	Queues   *store.Collection[models.Queue]
	Messages *store.Collection[models.Message]
	Dedup    *store.Collection[models.DedupEntry]
	Groups   *store.Collection[models.GroupLease]
	Sessions *store.Collection[models.Session]
}

// NewCollections binds the entity types to their collections in s.
func NewCollections(s *store.Store) *Collections {
	return &Collections{
		store:    s,
		Queues:   store.NewCollection(s, CollectionQueues, (*models.Queue).Key),
		Messages: store.NewCollection(s, CollectionMessages, (*models.Message).Key),
		Dedup:    store.NewCollection(s, CollectionDedup, (*models.DedupEntry).Key),
		Groups:   store.NewCollection(s, CollectionGroups, (*models.GroupLease).Key),
		Sessions: store.NewCollection(s, CollectionSessions, (*models.Session).Key),
	}
}

// Services bundles everything the protocol layer dispatches to.
type Services struct {
	Queues     *Directory
	Messages   *Engine
	Federation *Federation
	Reconciler *Reconciler
}

// New wires all services on top of one store.
func New(s *store.Store, opts Options) *Services {
	opts = opts.withDefaults()
	c := NewCollections(s)
	dir := NewDirectory(c, opts)
	return &Services{
		Queues:     dir,
		Messages:   NewEngine(c, dir, opts),
		Federation: NewFederation(c, opts),
		Reconciler: NewReconciler(c, opts),
	}
}
