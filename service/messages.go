package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/tabeth/inhouseaws/kms"
	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

const (
	maxMessageAttributes = 10
	maxDelaySeconds      = 900
	maxBatchEntries      = 10
	maxBatchPayload      = 262144
	maxIDLength          = 128
	traceHeaderAttribute = "AWSTraceHeader"
)

var (
	messageAttributeNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
	batchEntryIDRegex         = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,80}$`)
)

// Engine implements the message operations: send, receive, acknowledge and
// visibility changes. Every state transition of a message is a conditional
// update in the store, so any number of engines may share one backend.
type Engine struct {
	c       *Collections
	dir     *Directory
	clock   clockwork.Clock
	log     *slog.Logger
	metrics *metrics.Metrics
	sealer  *kms.Sealer

	pollInterval         time.Duration
	missingQueueDelayMin time.Duration
	missingQueueDelayMax time.Duration

	orderMu   sync.Mutex
	lastOrder int64
}

// NewEngine returns an Engine that resolves queues through dir.
func NewEngine(c *Collections, dir *Directory, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		c:                    c,
		dir:                  dir,
		clock:                opts.Clock,
		log:                  opts.Logger,
		metrics:              opts.Metrics,
		sealer:               opts.Sealer,
		pollInterval:         opts.PollInterval,
		missingQueueDelayMin: opts.MissingQueueDelayMin,
		missingQueueDelayMax: opts.MissingQueueDelayMax,
	}
}

// nextOrder returns a strictly increasing position for a new message. It
// follows the clock so positions stay roughly ordered across processes.
func (e *Engine) nextOrder(now time.Time) int64 {
	e.orderMu.Lock()
	defer e.orderMu.Unlock()
	order := now.UnixNano()
	if order <= e.lastOrder {
		order = e.lastOrder + 1
	}
	e.lastOrder = order
	return order
}

// sendInput is the common shape of SendMessage and a SendMessageBatch entry.
type sendInput struct {
	Body              string
	DelaySeconds      *int32
	MessageAttributes map[string]models.MessageAttributeValue
	SystemAttributes  map[string]models.MessageSystemAttributeValue
	GroupID           *string
	DeduplicationID   *string
}

type sendResult struct {
	MessageID          string
	MD5OfBody          string
	MD5OfAttributes    string
	MD5OfSysAttributes string
	SequenceNumber     string
}

// SendMessage stores a message in the queue the request names.
func (e *Engine) SendMessage(ctx context.Context, caller Caller, req *models.SendMessageRequest) (*models.SendMessageResponse, error) {
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if err != nil {
		return nil, err
	}
	res, err := e.send(ctx, q, sendInput{
		Body:              req.MessageBody,
		DelaySeconds:      req.DelaySeconds,
		MessageAttributes: req.MessageAttributes,
		SystemAttributes:  req.MessageSystemAttributes,
		GroupID:           req.MessageGroupId,
		DeduplicationID:   req.MessageDeduplicationId,
	})
	if err != nil {
		return nil, err
	}
	return &models.SendMessageResponse{
		MessageId:                    res.MessageID,
		MD5OfMessageBody:             res.MD5OfBody,
		MD5OfMessageAttributes:       optional(res.MD5OfAttributes),
		MD5OfMessageSystemAttributes: optional(res.MD5OfSysAttributes),
		SequenceNumber:               optional(res.SequenceNumber),
	}, nil
}

// SendMessageBatch sends up to ten messages. Problems with individual entries
// are reported per entry; only structural problems with the batch as a whole
// fail the request.
func (e *Engine) SendMessageBatch(ctx context.Context, caller Caller, req *models.SendMessageBatchRequest) (*models.SendMessageBatchResponse, error) {
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(req.Entries))
	payload := 0
	for i, entry := range req.Entries {
		ids[i] = entry.Id
		payload += len(entry.MessageBody)
	}
	if err := validateBatch(ids); err != nil {
		return nil, err
	}
	if payload > maxBatchPayload {
		return nil, newError(ErrInvalidArgument, CodeBatchRequestTooLong,
			"Batch requests cannot be longer than %d bytes.", maxBatchPayload)
	}

	resp := &models.SendMessageBatchResponse{
		Successful: []models.SendMessageBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, entry := range req.Entries {
		if failed, ok := checkBatchEntryID(entry.Id); !ok {
			resp.Failed = append(resp.Failed, failed)
			continue
		}
		res, err := e.send(ctx, q, sendInput{
			Body:              entry.MessageBody,
			DelaySeconds:      entry.DelaySeconds,
			MessageAttributes: entry.MessageAttributes,
			SystemAttributes:  entry.MessageSystemAttributes,
			GroupID:           entry.MessageGroupId,
			DeduplicationID:   entry.MessageDeduplicationId,
		})
		if err != nil {
			resp.Failed = append(resp.Failed, batchError(entry.Id, err))
			continue
		}
		resp.Successful = append(resp.Successful, models.SendMessageBatchResultEntry{
			Id:                           entry.Id,
			MessageId:                    res.MessageID,
			MD5OfMessageBody:             res.MD5OfBody,
			MD5OfMessageAttributes:       optional(res.MD5OfAttributes),
			MD5OfMessageSystemAttributes: optional(res.MD5OfSysAttributes),
			SequenceNumber:               optional(res.SequenceNumber),
		})
	}
	return resp, nil
}

func (e *Engine) send(ctx context.Context, q *models.Queue, in sendInput) (*sendResult, error) {
	cfg := q.Config
	if err := validateSend(cfg, in); err != nil {
		return nil, err
	}

	var dedupID string
	if cfg.FifoQueue {
		switch {
		case in.DeduplicationID != nil:
			dedupID = *in.DeduplicationID
		case cfg.ContentBasedDeduplication:
			dedupID = contentDedupID(in.Body)
		default:
			return nil, errInvalidParameter("The queue should either have ContentBasedDeduplication enabled or MessageDeduplicationId provided explicitly.")
		}
	}

	now := e.clock.Now().UTC()
	delay := cfg.DelaySeconds
	if in.DelaySeconds != nil {
		delay = int(*in.DelaySeconds)
	}
	order := e.nextOrder(now)
	msg := &models.Message{
		ID:              uuid.NewString(),
		QueueID:         q.ID,
		MD5OfBody:       bodyDigest(in.Body),
		Attributes:      in.MessageAttributes,
		MD5OfAttributes: attributesDigest(in.MessageAttributes),
		SenderID:        SenderID,
		DeduplicationID: dedupID,
		State:           models.StateWaiting,
		Order:           order,
		VisibleAfter:    now.Add(time.Duration(delay) * time.Second),
		CreatedAt:       now,
		ModifiedAt:      now,
		ExpiresAt:       now.Add(time.Duration(cfg.MessageRetentionPeriod) * time.Second),
	}
	if in.GroupID != nil {
		msg.GroupID = *in.GroupID
	}
	if cfg.FifoQueue {
		msg.SequenceNumber = fmt.Sprintf("%020d", order)
	}
	if trace, ok := in.SystemAttributes[traceHeaderAttribute]; ok && trace.StringValue != nil {
		msg.TraceHeader = *trace.StringValue
	}
	if err := e.sealBody(msg, cfg, in.Body); err != nil {
		return nil, err
	}

	res := &sendResult{
		MessageID:          msg.ID,
		MD5OfBody:          msg.MD5OfBody,
		MD5OfAttributes:    msg.MD5OfAttributes,
		MD5OfSysAttributes: systemAttributesDigest(in.SystemAttributes),
		SequenceNumber:     msg.SequenceNumber,
	}

	if cfg.FifoQueue {
		entry, duplicate, err := e.claimDedup(ctx, q.ID, dedupID, msg, now)
		if err != nil {
			return nil, err
		}
		if duplicate {
			e.metrics.MessagesDeduplicated(1)
			res.MessageID = entry.MessageID
			res.SequenceNumber = entry.SequenceNumber
			return res, nil
		}
	}

	if err := e.c.Messages.Insert(ctx, msg); err != nil {
		if cfg.FifoQueue {
			e.releaseDedup(ctx, q.ID, dedupID, msg.ID)
		}
		return nil, err
	}
	e.metrics.MessagesSent(1)
	return res, nil
}

func (e *Engine) sealBody(msg *models.Message, cfg models.QueueConfig, body string) error {
	if !cfg.SqsManagedSseEnabled || e.sealer == nil {
		msg.Body = body
		return nil
	}
	sealed, err := e.sealer.Seal([]byte(body))
	if err != nil {
		return fmt.Errorf("seal message body: %w", err)
	}
	msg.SealedBody = sealed
	return nil
}

func (e *Engine) openBody(msg *models.Message) (string, error) {
	if msg.SealedBody == nil {
		return msg.Body, nil
	}
	if e.sealer == nil {
		return "", errors.New("message body is sealed but no sealing key is configured")
	}
	body, err := e.sealer.Open(msg.SealedBody)
	if err != nil {
		return "", fmt.Errorf("open message body: %w", err)
	}
	return string(body), nil
}

// claimDedup records dedupID for msg, or reports the message that already
// holds it within the dedup window. A duplicate refreshes the window.
func (e *Engine) claimDedup(ctx context.Context, queueID, dedupID string, msg *models.Message, now time.Time) (*models.DedupEntry, bool, error) {
	var duplicate bool
	entry, err := e.c.Dedup.Mutate(ctx, queueID+"/"+dedupID, func(cur *models.DedupEntry) (*models.DedupEntry, error) {
		duplicate = false
		if cur != nil && now.Before(cur.ExpiresAt) {
			duplicate = true
			cur.ExpiresAt = now.Add(DedupWindow)
			return cur, nil
		}
		return &models.DedupEntry{
			QueueID:         queueID,
			DeduplicationID: dedupID,
			MessageID:       msg.ID,
			SequenceNumber:  msg.SequenceNumber,
			ExpiresAt:       now.Add(DedupWindow),
		}, nil
	})
	return entry, duplicate, err
}

func (e *Engine) releaseDedup(ctx context.Context, queueID, dedupID, messageID string) {
	err := e.c.Dedup.Delete(ctx, queueID+"/"+dedupID, func(cur *models.DedupEntry) bool {
		return cur.MessageID == messageID
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) && !errors.Is(err, store.ErrConditionFailed) {
		e.log.Warn("release dedup entry", slog.String("queue", queueID), slog.Any("error", err))
	}
}

func validateSend(cfg models.QueueConfig, in sendInput) error {
	if in.Body == "" {
		return errMissingParameter("MessageBody")
	}
	if len(in.Body) > cfg.MaximumMessageSize {
		return errInvalidParameter("The message body must be shorter than %d bytes.", cfg.MaximumMessageSize)
	}
	if in.DelaySeconds != nil {
		if *in.DelaySeconds < 0 || *in.DelaySeconds > maxDelaySeconds {
			return errInvalidParameter("Value for parameter DelaySeconds is invalid. Reason: Must be an integer from 0 to %d.", maxDelaySeconds)
		}
		if cfg.FifoQueue {
			return errInvalidParameter("The request include parameter that is not valid for this queue type. Reason: DelaySeconds is not supported for FIFO queues.")
		}
	}
	if err := validateMessageAttributes(in.MessageAttributes); err != nil {
		return err
	}
	for name := range in.SystemAttributes {
		if name != traceHeaderAttribute {
			return errInvalidParameter("Message system attribute name '%s' is invalid.", name)
		}
	}

	if in.DeduplicationID != nil {
		if !cfg.FifoQueue {
			return errInvalidParameter("MessageDeduplicationId is supported only for FIFO queues.")
		}
		if err := validateFifoID("MessageDeduplicationId", *in.DeduplicationID); err != nil {
			return err
		}
	}
	if in.GroupID != nil {
		if err := validateFifoID("MessageGroupId", *in.GroupID); err != nil {
			return err
		}
	} else if cfg.FifoQueue {
		return errMissingParameter("MessageGroupId")
	}
	return nil
}

func validateFifoID(param, id string) error {
	if id == "" || len(id) > maxIDLength {
		return errInvalidParameter("%s must be between 1 and %d characters long.", param, maxIDLength)
	}
	if !isValidSqsChars(id) {
		return errInvalidParameter("%s can only contain alphanumeric characters and punctuation.", param)
	}
	return nil
}

// isValidSqsChars checks for alphanumeric characters and
// !"#$%&'()*+,-./:;<=>?@[\]^_`{|}~ only.
func isValidSqsChars(s string) bool {
	for _, r := range s {
		isAlphanumeric := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		isPunctuation := strings.ContainsRune("!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~", r)
		if !isAlphanumeric && !isPunctuation {
			return false
		}
	}
	return true
}

func validateMessageAttributes(attrs map[string]models.MessageAttributeValue) error {
	if len(attrs) > maxMessageAttributes {
		return errInvalidParameter("Number of message attributes [%d] exceeds the allowed maximum [%d].", len(attrs), maxMessageAttributes)
	}
	for name, v := range attrs {
		if !isValidMessageAttributeName(name) {
			return errInvalidParameter("Message attribute name '%s' is invalid.", name)
		}
		switch {
		case strings.HasPrefix(v.DataType, "String"), strings.HasPrefix(v.DataType, "Number"):
			if v.StringValue == nil || *v.StringValue == "" {
				return errInvalidParameter("Message attribute '%s' must contain a non-empty value of type '%s'.", name, v.DataType)
			}
		case strings.HasPrefix(v.DataType, "Binary"):
			if len(v.BinaryValue) == 0 {
				return errInvalidParameter("Message attribute '%s' must contain a non-empty value of type 'Binary'.", name)
			}
		case v.DataType == "":
			return errInvalidParameter("Message attribute '%s' must contain a DataType.", name)
		default:
			return errUnimplemented("Message attribute '%s' has unsupported data type '%s'.", name, v.DataType)
		}
	}
	return nil
}

// isValidMessageAttributeName validates a custom attribute name: at most 256
// characters of [a-zA-Z0-9_.-], no leading, trailing or doubled periods, and
// no reserved "aws." or "amazon." prefix.
func isValidMessageAttributeName(name string) bool {
	if name == "" || len(name) > 256 {
		return false
	}
	lower := strings.ToLower(name)
	if strings.HasPrefix(lower, "aws.") || strings.HasPrefix(lower, "amazon.") {
		return false
	}
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") || strings.Contains(name, "..") {
		return false
	}
	return messageAttributeNameRegex.MatchString(name)
}

// validateBatch checks the structure of a batch: it must have between one and
// ten entries and the entry ids must be distinct.
func validateBatch(ids []string) error {
	if len(ids) == 0 {
		return newError(ErrInvalidArgument, CodeEmptyBatchRequest, "There should be at least one entry in the request.")
	}
	if len(ids) > maxBatchEntries {
		return newError(ErrInvalidArgument, CodeTooManyEntriesInBatchRequest,
			"Maximum number of entries per request are %d. You have sent %d.", maxBatchEntries, len(ids))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if seen[id] {
			return newError(ErrInvalidArgument, CodeBatchEntryIdsNotDistinct, "Id %s repeated.", id)
		}
		seen[id] = true
	}
	return nil
}

// checkBatchEntryID reports a malformed entry id as a failed entry.
func checkBatchEntryID(id string) (models.BatchResultErrorEntry, bool) {
	if id == "" {
		return batchError("", errMissingParameter("Id")), false
	}
	if !batchEntryIDRegex.MatchString(id) {
		return batchError(id, newError(ErrInvalidArgument, CodeInvalidBatchEntryId,
			"A batch entry id can only contain alphanumeric characters, hyphens and underscores, up to 80 long.")), false
	}
	return models.BatchResultErrorEntry{}, true
}

func batchError(id string, err error) models.BatchResultErrorEntry {
	if e, ok := AsError(err); ok {
		return models.BatchResultErrorEntry{Id: id, Code: e.Code, Message: e.Message, SenderFault: true}
	}
	return models.BatchResultErrorEntry{Id: id, Code: CodeInternalFailure, Message: err.Error(), SenderFault: false}
}
