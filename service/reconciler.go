package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

// sessionRetention is how long expired sessions are kept before they are pruned.
const sessionRetention = 24 * time.Hour

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Queues          int
	ExpiredMessages int
	OrphanMessages  int
	ExpiredDedup    int
	ExpiredSessions int
}

// Reconciler is the background housekeeping job. It recomputes the advisory
// queue counters and removes expired or orphaned documents. Nothing on the
// request path depends on it having run.
type Reconciler struct {
	c       *Collections
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewReconciler returns a Reconciler over c.
func NewReconciler(c *Collections, opts Options) *Reconciler {
	opts = opts.withDefaults()
	return &Reconciler{c: c, clock: opts.Clock, log: opts.Logger, metrics: opts.Metrics}
}

// Run reconciles every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) error {
	ticker := r.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			report, err := r.RunOnce(ctx)
			r.metrics.ReconcileRun(err)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error("reconcile", slog.Any("error", err))
				continue
			}
			r.log.Debug("reconciled",
				slog.Int("queues", report.Queues),
				slog.Int("expiredMessages", report.ExpiredMessages),
				slog.Int("orphanMessages", report.OrphanMessages),
				slog.Int("expiredDedup", report.ExpiredDedup),
				slog.Int("expiredSessions", report.ExpiredSessions))
		}
	}
}

// RunOnce performs a single reconciliation pass.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	now := r.clock.Now().UTC()

	queues, err := r.c.Queues.Find(ctx, store.Query[models.Queue]{})
	if err != nil {
		return report, err
	}
	known := make(map[string]bool, len(queues))
	for _, q := range queues {
		known[q.ID] = true
		n, err := r.reconcileQueue(ctx, q, now)
		if err != nil {
			return report, err
		}
		report.Queues++
		report.ExpiredMessages += n
	}

	if report.OrphanMessages, err = r.removeOrphans(ctx, known); err != nil {
		return report, err
	}
	if report.ExpiredDedup, err = r.c.Dedup.DeleteMany(ctx, store.Query[models.DedupEntry]{
		Filter: func(d *models.DedupEntry) bool { return !now.Before(d.ExpiresAt) },
	}); err != nil {
		return report, err
	}
	cutoff := now.Add(-sessionRetention)
	if report.ExpiredSessions, err = r.c.Sessions.DeleteMany(ctx, store.Query[models.Session]{
		Filter: func(s *models.Session) bool { return s.ExpiresAt.Before(cutoff) },
	}); err != nil {
		return report, err
	}
	return report, nil
}

// reconcileQueue deletes the queue's expired messages and stores fresh counters.
func (r *Reconciler) reconcileQueue(ctx context.Context, q *models.Queue, now time.Time) (int, error) {
	expired, err := r.c.Messages.DeleteMany(ctx, store.Query[models.Message]{
		Prefix: q.ID + "/",
		Filter: func(m *models.Message) bool { return m.Expired(now) },
	})
	if err != nil {
		return 0, err
	}
	counters, err := countMessages(ctx, r.c, q, now)
	if err != nil {
		return expired, err
	}
	_, err = r.c.Queues.Update(ctx, q.ID, nil, func(cur *models.Queue) { cur.Counters = counters })
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return expired, err
	}
	r.metrics.SetQueueMessages(q.Name, counters.Visible, counters.NotVisible, counters.Delayed)
	return expired, nil
}

// removeOrphans deletes messages whose queue record no longer exists. The
// queue is looked up again before deleting, since it may have been created
// after the queue list was read.
func (r *Reconciler) removeOrphans(ctx context.Context, known map[string]bool) (int, error) {
	orphans, err := r.c.Messages.Find(ctx, store.Query[models.Message]{
		Filter: func(m *models.Message) bool { return !known[m.QueueID] },
	})
	if err != nil {
		return 0, err
	}
	checked := make(map[string]bool)
	n := 0
	for _, m := range orphans {
		gone, seen := checked[m.QueueID]
		if !seen {
			_, err := r.c.Queues.Get(ctx, m.QueueID)
			switch {
			case errors.Is(err, store.ErrNotFound):
				gone = true
			case err != nil:
				return n, err
			}
			checked[m.QueueID] = gone
		}
		if !gone {
			continue
		}
		err := r.c.Messages.Delete(ctx, m.Key(), nil)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return n, err
		}
		if err == nil {
			n++
		}
	}
	return n, nil
}
