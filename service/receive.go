package service

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

const (
	maxReceiveMessages   = 10
	maxVisibilityTimeout = 43200
	maxWaitTimeSeconds   = 20
)

// System attribute names returned with received messages.
const (
	sysSenderID                         = "SenderId"
	sysSentTimestamp                    = "SentTimestamp"
	sysApproximateReceiveCount          = "ApproximateReceiveCount"
	sysApproximateFirstReceiveTimestamp = "ApproximateFirstReceiveTimestamp"
	sysMessageGroupID                   = "MessageGroupId"
	sysMessageDeduplicationID           = "MessageDeduplicationId"
	sysSequenceNumber                   = "SequenceNumber"
	sysAWSTraceHeader                   = "AWSTraceHeader"
)

var baseSystemAttributes = []string{
	sysSenderID,
	sysSentTimestamp,
	sysApproximateReceiveCount,
	sysApproximateFirstReceiveTimestamp,
}

type receiveParams struct {
	max        int
	visibility time.Duration
	wait       time.Duration
}

// ReceiveMessage leases up to MaxNumberOfMessages eligible messages. When
// none are eligible and a wait time applies, it long-polls until a message
// arrives, the wait time passes or ctx is done.
func (e *Engine) ReceiveMessage(ctx context.Context, caller Caller, req *models.ReceiveMessageRequest) (*models.ReceiveMessageResponse, error) {
	if err := validateReceive(req); err != nil {
		return nil, err
	}
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if errors.Is(err, ErrNotFound) {
		e.delayMissingQueue(ctx)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	p := receiveParams{
		max:        req.MaxNumberOfMessages,
		visibility: time.Duration(q.Config.VisibilityTimeout) * time.Second,
		wait:       time.Duration(q.Config.ReceiveMessageWaitTimeSeconds) * time.Second,
	}
	if p.max == 0 {
		p.max = 1
	}
	if req.VisibilityTimeout != nil {
		p.visibility = time.Duration(*req.VisibilityTimeout) * time.Second
	}
	if req.WaitTimeSeconds != nil {
		p.wait = time.Duration(*req.WaitTimeSeconds) * time.Second
	}

	msgs, err := e.poll(ctx, q, p)
	if err != nil {
		return nil, err
	}
	e.markPolled(ctx, q)
	e.metrics.MessagesReceived(len(msgs))

	attrNames := append(append([]string{}, req.AttributeNames...), req.MessageSystemAttributeNames...)
	resp := &models.ReceiveMessageResponse{Messages: make([]models.ResponseMessage, 0, len(msgs))}
	for _, m := range msgs {
		rendered, err := e.render(m, attrNames, req.MessageAttributeNames)
		if err != nil {
			return nil, err
		}
		resp.Messages = append(resp.Messages, rendered)
	}
	return resp, nil
}

func validateReceive(req *models.ReceiveMessageRequest) error {
	if req.MaxNumberOfMessages < 0 || req.MaxNumberOfMessages > maxReceiveMessages {
		return errInvalidParameter("Value %d for parameter MaxNumberOfMessages is invalid. Reason: Must be between 1 and %d, if provided.",
			req.MaxNumberOfMessages, maxReceiveMessages)
	}
	if v := req.VisibilityTimeout; v != nil && (*v < 0 || *v > maxVisibilityTimeout) {
		return errInvalidParameter("Value %d for parameter VisibilityTimeout is invalid. Reason: Must be between 0 and %d, if provided.",
			*v, maxVisibilityTimeout)
	}
	if w := req.WaitTimeSeconds; w != nil && (*w < 0 || *w > maxWaitTimeSeconds) {
		return errInvalidParameter("Value %d for parameter WaitTimeSeconds is invalid. Reason: Must be >= 0 and <= %d, if provided.",
			*w, maxWaitTimeSeconds)
	}
	return nil
}

// delayMissingQueue slows down clients polling a queue that does not exist.
func (e *Engine) delayMissingQueue(ctx context.Context) {
	delay := e.missingQueueDelayMin
	if spread := e.missingQueueDelayMax - e.missingQueueDelayMin; spread > 0 {
		delay += time.Duration(rand.Int63n(int64(spread)))
	}
	if delay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-e.clock.After(delay):
	}
}

// poll runs receive attempts until one yields messages or the wait ends.
// Besides the fixed poll interval, a write to any message of the queue
// triggers an immediate attempt.
func (e *Engine) poll(ctx context.Context, q *models.Queue, p receiveParams) ([]*models.Message, error) {
	msgs, err := e.receiveOnce(ctx, q, p)
	if err != nil || len(msgs) > 0 || p.wait <= 0 {
		return msgs, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	changes := e.c.store.Watch(watchCtx, CollectionMessages)
	prefix := q.ID + "/"

	deadline := e.clock.NewTimer(p.wait)
	defer deadline.Stop()
	ticker := e.clock.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.Chan():
			return e.receiveOnce(ctx, q, p)
		case <-ticker.Chan():
		case ch, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			if ch.Op == store.OpDelete || !strings.HasPrefix(ch.ID, prefix) {
				continue
			}
		}
		msgs, err := e.receiveOnce(ctx, q, p)
		if err != nil || len(msgs) > 0 {
			return msgs, err
		}
	}
}

// receiveOnce selects eligible messages in queue order and leases as many as
// it can, up to p.max. Losing a race for a message is not an error: the
// message is skipped.
func (e *Engine) receiveOnce(ctx context.Context, q *models.Queue, p receiveParams) ([]*models.Message, error) {
	now := e.clock.Now().UTC()
	candidates, err := e.c.Messages.Find(ctx, store.Query[models.Message]{
		Prefix: q.ID + "/",
		Filter: func(m *models.Message) bool { return m.Eligible(now) },
		Less:   func(a, b *models.Message) bool { return a.Order < b.Order },
	})
	if err != nil {
		return nil, err
	}

	var (
		out        []*models.Message
		seenGroups map[string]bool
	)
	if q.Config.FifoQueue {
		seenGroups = make(map[string]bool)
	}
	for _, m := range candidates {
		if len(out) >= p.max {
			break
		}
		if seenGroups != nil {
			// Only the oldest eligible message of a group is a candidate.
			if seenGroups[m.GroupID] {
				continue
			}
			seenGroups[m.GroupID] = true
			ok, err := e.acquireGroup(ctx, q, m, now)
			if err != nil {
				return out, err
			}
			if !ok {
				continue
			}
		}
		leased, err := e.lease(ctx, m, now, p.visibility)
		if err != nil {
			return out, err
		}
		if leased != nil {
			out = append(out, leased)
		}
	}
	return out, nil
}

// lease moves m from eligible to leased. It returns nil when another
// receiver got there first.
func (e *Engine) lease(ctx context.Context, m *models.Message, now time.Time, visibility time.Duration) (*models.Message, error) {
	deliveries := m.TotalDeliveries
	leased, err := e.c.Messages.Update(ctx, m.Key(),
		func(cur *models.Message) bool {
			return cur.Eligible(now) && cur.TotalDeliveries == deliveries
		},
		func(cur *models.Message) {
			cur.State = models.StateDelivered
			cur.VisibleAfter = now.Add(visibility)
			cur.TotalDeliveries++
			if cur.FirstDeliveredAt == nil {
				first := now
				cur.FirstDeliveredAt = &first
			}
			cur.ModifiedAt = now
		})
	if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return leased, err
}

// acquireGroup claims the FIFO group of m for its next delivery. The group is
// busy while the message recorded in its lease is still leased with the
// recorded delivery count. The claim is a compare-and-set on the lease
// version, so of two receivers racing for one group only one proceeds.
func (e *Engine) acquireGroup(ctx context.Context, q *models.Queue, m *models.Message, now time.Time) (bool, error) {
	key := q.ID + "/" + m.GroupID
	var version int64
	current, err := e.c.Groups.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return false, err
	default:
		version = current.Version
		if current.MessageID != "" {
			holder, err := e.c.Messages.Get(ctx, models.MessageKey(q.ID, current.MessageID))
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return false, err
			}
			if err == nil && holder.Leased(now) && holder.TotalDeliveries == current.Deliveries {
				return false, nil
			}
		}
	}

	_, err = e.c.Groups.Mutate(ctx, key, func(cur *models.GroupLease) (*models.GroupLease, error) {
		var curVersion int64
		if cur != nil {
			curVersion = cur.Version
		}
		if curVersion != version {
			return nil, store.ErrConditionFailed
		}
		return &models.GroupLease{
			QueueID:    q.ID,
			GroupID:    m.GroupID,
			MessageID:  m.ID,
			Deliveries: m.TotalDeliveries + 1,
			Version:    version + 1,
		}, nil
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return false, nil
	}
	return err == nil, err
}

// releaseGroup frees a FIFO group if messageID still holds it.
func (e *Engine) releaseGroup(ctx context.Context, queueID, groupID, messageID string) {
	err := e.c.Groups.Delete(ctx, queueID+"/"+groupID, func(cur *models.GroupLease) bool {
		return cur.MessageID == messageID
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrConditionFailed) {
		e.log.Warn("release message group", slog.String("queue", queueID), slog.String("group", groupID), slog.Any("error", err))
	}
}

func (e *Engine) markPolled(ctx context.Context, q *models.Queue) {
	now := e.clock.Now().UTC()
	_, err := e.c.Queues.Update(ctx, q.ID, nil, func(cur *models.Queue) {
		cur.LastPolledAt = &now
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.log.Warn("record queue poll", slog.String("queue", q.ID), slog.Any("error", err))
	}
}

func (e *Engine) render(m *models.Message, attrNames, messageAttrNames []string) (models.ResponseMessage, error) {
	body, err := e.openBody(m)
	if err != nil {
		return models.ResponseMessage{}, err
	}
	attrs := selectMessageAttributes(m.Attributes, messageAttrNames)
	return models.ResponseMessage{
		Attributes:             systemAttributes(m, attrNames),
		Body:                   body,
		MD5OfBody:              m.MD5OfBody,
		MD5OfMessageAttributes: optional(attributesDigest(attrs)),
		MessageAttributes:      attrs,
		MessageId:              m.ID,
		ReceiptHandle:          receiptHandle{MessageID: m.ID, Deliveries: m.TotalDeliveries}.String(),
	}, nil
}

func millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

// systemAttributes renders the requested system attributes. Without a
// request the four base attributes are returned.
func systemAttributes(m *models.Message, names []string) map[string]string {
	all := map[string]string{
		sysSenderID:                m.SenderID,
		sysSentTimestamp:           millis(m.CreatedAt),
		sysApproximateReceiveCount: strconv.Itoa(m.TotalDeliveries),
	}
	if m.FirstDeliveredAt != nil {
		all[sysApproximateFirstReceiveTimestamp] = millis(*m.FirstDeliveredAt)
	}
	if m.GroupID != "" {
		all[sysMessageGroupID] = m.GroupID
	}
	if m.DeduplicationID != "" {
		all[sysMessageDeduplicationID] = m.DeduplicationID
	}
	if m.SequenceNumber != "" {
		all[sysSequenceNumber] = m.SequenceNumber
	}
	if m.TraceHeader != "" {
		all[sysAWSTraceHeader] = m.TraceHeader
	}

	if len(names) == 0 {
		names = baseSystemAttributes
	}
	out := make(map[string]string)
	for _, name := range names {
		if name == attrAll {
			return all
		}
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}

// selectMessageAttributes filters custom attributes by the requested names:
// "All" or ".*" select everything, "prefix.*" selects by prefix, anything
// else is an exact name.
func selectMessageAttributes(attrs map[string]models.MessageAttributeValue, names []string) map[string]models.MessageAttributeValue {
	if len(attrs) == 0 || len(names) == 0 {
		return nil
	}
	out := make(map[string]models.MessageAttributeValue)
	for _, want := range names {
		switch {
		case want == attrAll || want == ".*":
			return attrs
		case strings.HasSuffix(want, ".*"):
			prefix := strings.TrimSuffix(want, "*")
			for name, v := range attrs {
				if strings.HasPrefix(name, prefix) {
					out[name] = v
				}
			}
		default:
			if v, ok := attrs[want]; ok {
				out[want] = v
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
