package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/jonboulle/clockwork"

	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

const (
	defaultListLimit = 1000
	fifoSuffix       = ".fifo"
)

// SQS queue name validation: up to 80 alphanumeric characters, hyphens and
// underscores, plus the ".fifo" suffix for FIFO queues.
var queueNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,80}(\.fifo)?$`)

// QueueARN returns the ARN, which is also the queue's document id.
func QueueARN(region, accountID, name string) string {
	return arn.ARN{Partition: "aws", Service: "sqs", Region: region, AccountID: accountID, Resource: name}.String()
}

// QueueURL returns the public URL of a queue.
func QueueURL(region, accountID, name string) string {
	return fmt.Sprintf("https://sqs.%s.amazonaws.com/%s/%s", region, accountID, name)
}

// Directory manages queue records: creation, lookup, attributes, tags and deletion.
type Directory struct {
	c       *Collections
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewDirectory returns a Directory over c.
func NewDirectory(c *Collections, opts Options) *Directory {
	opts = opts.withDefaults()
	return &Directory{c: c, clock: opts.Clock, log: opts.Logger, metrics: opts.Metrics}
}

// CreateQueue creates a queue, or returns the existing one when a queue with
// the same name and an identical resolved configuration already exists.
func (d *Directory) CreateQueue(ctx context.Context, caller Caller, name string, attrs, tags map[string]string) (*models.Queue, error) {
	if name == "" {
		return nil, errMissingParameter("QueueName")
	}
	if !queueNameRegex.MatchString(name) {
		return nil, errInvalidParameter("Invalid queue name: can only include alphanumeric characters, hyphens, and underscores, 1 to 80 in length, with an optional .fifo suffix.")
	}
	cfg, err := applyAttributes(DefaultQueueConfig(), attrs)
	if err != nil {
		return nil, err
	}
	if err := validateFifoConfig(name, cfg); err != nil {
		return nil, err
	}

	now := d.clock.Now().UTC()
	q := &models.Queue{
		ID:         QueueARN(caller.Region, caller.AccountID, name),
		Name:       name,
		AccountID:  caller.AccountID,
		Region:     caller.Region,
		URL:        QueueURL(caller.Region, caller.AccountID, name),
		Config:     cfg,
		Tags:       copyTags(tags),
		CreatedAt:  now,
		ModifiedAt: now,
	}

	// A concurrent DeleteQueue can remove the existing record between the
	// failed insert and the read, so the pair is retried once.
	for attempt := 0; attempt < 2; attempt++ {
		err := d.c.Queues.Insert(ctx, q)
		if err == nil {
			d.log.Info("queue created", slog.String("queue", q.ID), slog.Bool("fifo", cfg.FifoQueue))
			return q, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, err
		}
		existing, err := d.c.Queues.Get(ctx, q.ID)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if attr, differs := firstDifference(existing.Config, cfg); differs {
			return nil, errQueueAlreadyExists(attr)
		}
		return existing, nil
	}
	return nil, fmt.Errorf("create queue %s: record changed concurrently", name)
}

func validateFifoConfig(name string, cfg models.QueueConfig) error {
	fifoName := strings.HasSuffix(name, fifoSuffix)
	if fifoName && !cfg.FifoQueue {
		return errInvalidFifoQueue("Queue name %s ends in .fifo but the FifoQueue attribute is not true.", name)
	}
	if !fifoName && cfg.FifoQueue {
		return errInvalidFifoQueue("The name of a FIFO queue must end with the .fifo suffix.")
	}
	if cfg.ContentBasedDeduplication && !cfg.FifoQueue {
		return errInvalidAttributeValue(attrContentBasedDeduplication, errors.New("only valid for FIFO queues"))
	}
	return nil
}

func copyTags(tags map[string]string) map[string]string {
	if len(tags) == 0 {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// queueNameFromURL takes the queue name from the last path segment of a
// queue URL. A bare name is accepted as well.
func queueNameFromURL(queueURL string) string {
	if u, err := url.Parse(queueURL); err == nil && u.Path != "" {
		return path.Base(u.Path)
	}
	return path.Base(queueURL)
}

// Resolve finds the queue a URL names within the caller's region and account.
func (d *Directory) Resolve(ctx context.Context, caller Caller, queueURL string) (*models.Queue, error) {
	if queueURL == "" {
		return nil, errMissingParameter("QueueUrl")
	}
	name := queueNameFromURL(queueURL)
	q, err := d.c.Queues.Get(ctx, QueueARN(caller.Region, caller.AccountID, name))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNoSuchQueue()
	}
	return q, err
}

// GetQueueURL looks a queue up by name. ownerAccountID, when set, replaces the caller's account.
func (d *Directory) GetQueueURL(ctx context.Context, caller Caller, name, ownerAccountID string) (string, error) {
	if name == "" {
		return "", errMissingParameter("QueueName")
	}
	if ownerAccountID != "" {
		caller.AccountID = ownerAccountID
	}
	q, err := d.c.Queues.Get(ctx, QueueARN(caller.Region, caller.AccountID, name))
	if errors.Is(err, store.ErrNotFound) {
		return "", errNoSuchQueue()
	}
	if err != nil {
		return "", err
	}
	return q.URL, nil
}

// ListQueues returns the URLs of the caller's queues in name order.
// nextToken is the last name of the previous page.
func (d *Directory) ListQueues(ctx context.Context, caller Caller, prefix string, maxResults int, nextToken string) ([]string, string, error) {
	if maxResults < 0 || maxResults > defaultListLimit {
		return nil, "", errInvalidParameter("MaxResults must be between 1 and %d.", defaultListLimit)
	}
	limit := maxResults
	if limit == 0 {
		limit = defaultListLimit
	}
	queues, err := d.c.Queues.Find(ctx, store.Query[models.Queue]{
		Filter: func(q *models.Queue) bool {
			return q.Region == caller.Region &&
				q.AccountID == caller.AccountID &&
				strings.HasPrefix(q.Name, prefix) &&
				(nextToken == "" || q.Name > nextToken)
		},
		Less: func(a, b *models.Queue) bool { return a.Name < b.Name },
	})
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(queues) > limit {
		queues = queues[:limit]
		next = queues[limit-1].Name
	}
	urls := make([]string, 0, len(queues))
	for _, q := range queues {
		urls = append(urls, q.URL)
	}
	return urls, next, nil
}

// GetQueueAttributes returns the requested attributes. "All" selects every
// attribute; requesting an unknown attribute is an error.
func (d *Directory) GetQueueAttributes(ctx context.Context, caller Caller, queueURL string, names []string) (map[string]string, error) {
	q, err := d.Resolve(ctx, caller, queueURL)
	if err != nil {
		return nil, err
	}
	selected := make(map[string]bool, len(names))
	for _, name := range names {
		switch {
		case name == attrAll:
			for n := range readableAttributes {
				selected[n] = true
			}
		case readableAttributes[name]:
			selected[name] = true
		default:
			return nil, errUnsupportedAttribute(name)
		}
	}

	counters := q.Counters
	if wantsCounters(selected) {
		counters, err = countMessages(ctx, d.c, q, d.clock.Now())
		if err != nil {
			return nil, err
		}
	}
	return renderAttributes(q, counters, selected), nil
}

// SetQueueAttributes changes the mutable configuration of a queue. FifoQueue cannot change.
func (d *Directory) SetQueueAttributes(ctx context.Context, caller Caller, queueURL string, attrs map[string]string) error {
	q, err := d.Resolve(ctx, caller, queueURL)
	if err != nil {
		return err
	}
	if len(attrs) == 0 {
		return errMissingParameter("Attributes")
	}
	cfg, err := applyAttributes(q.Config, attrs)
	if err != nil {
		return err
	}
	if cfg.FifoQueue != q.Config.FifoQueue {
		return newError(ErrInvalidArgument, CodeInvalidAttributeName, "The FifoQueue attribute of an existing queue cannot be changed.")
	}
	if err := validateFifoConfig(q.Name, cfg); err != nil {
		return err
	}
	now := d.clock.Now().UTC()
	_, err = d.c.Queues.Update(ctx, q.ID, nil, func(cur *models.Queue) {
		// Re-apply on the latest version so concurrent tag or counter updates survive.
		cur.Config, _ = applyAttributes(cur.Config, attrs)
		cur.ModifiedAt = now
	})
	if errors.Is(err, store.ErrNotFound) {
		return errNoSuchQueue()
	}
	return err
}

// TagQueue merges tags into the queue's tag set.
func (d *Directory) TagQueue(ctx context.Context, caller Caller, queueURL string, tags map[string]string) error {
	if len(tags) == 0 {
		return errMissingParameter("Tags")
	}
	for k := range tags {
		if k == "" {
			return errInvalidParameter("Tag keys must not be empty.")
		}
	}
	return d.updateTags(ctx, caller, queueURL, func(cur map[string]string) {
		for k, v := range tags {
			cur[k] = v
		}
	})
}

// UntagQueue removes tag keys. Unknown keys are ignored.
func (d *Directory) UntagQueue(ctx context.Context, caller Caller, queueURL string, keys []string) error {
	if len(keys) == 0 {
		return errMissingParameter("TagKeys")
	}
	return d.updateTags(ctx, caller, queueURL, func(cur map[string]string) {
		for _, k := range keys {
			delete(cur, k)
		}
	})
}

func (d *Directory) updateTags(ctx context.Context, caller Caller, queueURL string, change func(map[string]string)) error {
	q, err := d.Resolve(ctx, caller, queueURL)
	if err != nil {
		return err
	}
	_, err = d.c.Queues.Update(ctx, q.ID, nil, func(cur *models.Queue) {
		if cur.Tags == nil {
			cur.Tags = make(map[string]string)
		}
		change(cur.Tags)
		if len(cur.Tags) == 0 {
			cur.Tags = nil
		}
	})
	if errors.Is(err, store.ErrNotFound) {
		return errNoSuchQueue()
	}
	return err
}

// ListQueueTags returns the queue's tags.
func (d *Directory) ListQueueTags(ctx context.Context, caller Caller, queueURL string) (map[string]string, error) {
	q, err := d.Resolve(ctx, caller, queueURL)
	if err != nil {
		return nil, err
	}
	if q.Tags == nil {
		return map[string]string{}, nil
	}
	return q.Tags, nil
}

// PurgeQueue removes every message of a queue along with its dedup and group records.
func (d *Directory) PurgeQueue(ctx context.Context, caller Caller, queueURL string) error {
	q, err := d.Resolve(ctx, caller, queueURL)
	if err != nil {
		return err
	}
	n, err := purgeQueueData(ctx, d.c, q.ID)
	if err != nil {
		return err
	}
	d.log.Info("queue purged", slog.String("queue", q.ID), slog.Int("messages", n))
	return nil
}

// DeleteQueue removes a queue's messages and then its record. A send racing
// the deletion can leave a message behind, so messages are swept once more
// after the record is gone; the reconciler removes anything later still.
func (d *Directory) DeleteQueue(ctx context.Context, caller Caller, queueURL string) error {
	q, err := d.Resolve(ctx, caller, queueURL)
	if err != nil {
		return err
	}
	if _, err := purgeQueueData(ctx, d.c, q.ID); err != nil {
		return err
	}
	if err := d.c.Queues.Delete(ctx, q.ID, nil); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errNoSuchQueue()
		}
		return err
	}
	if _, err := purgeQueueData(ctx, d.c, q.ID); err != nil {
		return err
	}
	d.metrics.ForgetQueue(q.Name)
	d.log.Info("queue deleted", slog.String("queue", q.ID))
	return nil
}

func purgeQueueData(ctx context.Context, c *Collections, queueID string) (int, error) {
	prefix := queueID + "/"
	n, err := c.Messages.DeleteMany(ctx, store.Query[models.Message]{Prefix: prefix})
	if err != nil {
		return n, err
	}
	if _, err := c.Dedup.DeleteMany(ctx, store.Query[models.DedupEntry]{Prefix: prefix}); err != nil {
		return n, err
	}
	if _, err := c.Groups.DeleteMany(ctx, store.Query[models.GroupLease]{Prefix: prefix}); err != nil {
		return n, err
	}
	return n, nil
}

// countMessages derives the advisory counters of a queue from its messages.
func countMessages(ctx context.Context, c *Collections, q *models.Queue, now time.Time) (models.QueueCounters, error) {
	counters := models.QueueCounters{UpdatedAt: now.UTC()}
	msgs, err := c.Messages.Find(ctx, store.Query[models.Message]{Prefix: q.ID + "/"})
	if err != nil {
		return counters, err
	}
	for _, m := range msgs {
		switch {
		case m.Expired(now):
		case m.Leased(now):
			counters.NotVisible++
		case m.Delayed(now):
			counters.Delayed++
		case m.Eligible(now):
			counters.Visible++
		}
	}
	return counters, nil
}
