package service

import (
	"context"
	"errors"
	"time"

	"github.com/tabeth/inhouseaws/models"
	"github.com/tabeth/inhouseaws/store"
)

// DeleteMessage acknowledges a delivery. The receipt handle must carry the
// message's current delivery count; a handle from an earlier delivery fails
// with MessageHandleExpired. Deleting a message that is already gone succeeds.
func (e *Engine) DeleteMessage(ctx context.Context, caller Caller, req *models.DeleteMessageRequest) error {
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if err != nil {
		return err
	}
	return e.deleteMessage(ctx, q, req.ReceiptHandle)
}

// DeleteMessageBatch deletes up to ten messages, reporting failures per entry.
func (e *Engine) DeleteMessageBatch(ctx context.Context, caller Caller, req *models.DeleteMessageBatchRequest) (*models.DeleteMessageBatchResponse, error) {
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(req.Entries))
	for i, entry := range req.Entries {
		ids[i] = entry.Id
	}
	if err := validateBatch(ids); err != nil {
		return nil, err
	}

	resp := &models.DeleteMessageBatchResponse{
		Successful: []models.DeleteMessageBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, entry := range req.Entries {
		if failed, ok := checkBatchEntryID(entry.Id); !ok {
			resp.Failed = append(resp.Failed, failed)
			continue
		}
		if err := e.deleteMessage(ctx, q, entry.ReceiptHandle); err != nil {
			resp.Failed = append(resp.Failed, batchError(entry.Id, err))
			continue
		}
		resp.Successful = append(resp.Successful, models.DeleteMessageBatchResultEntry{Id: entry.Id})
	}
	return resp, nil
}

func (e *Engine) deleteMessage(ctx context.Context, q *models.Queue, handle string) error {
	h, err := parseReceiptHandle(handle)
	if err != nil {
		return err
	}
	var groupID string
	err = e.c.Messages.Delete(ctx, models.MessageKey(q.ID, h.MessageID), func(cur *models.Message) bool {
		groupID = cur.GroupID
		return cur.TotalDeliveries == h.Deliveries
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case errors.Is(err, store.ErrConditionFailed):
		return errHandleExpired()
	case err != nil:
		return err
	}
	if q.Config.FifoQueue && groupID != "" {
		e.releaseGroup(ctx, q.ID, groupID, h.MessageID)
	}
	e.metrics.MessagesDeleted(1)
	return nil
}

// ChangeMessageVisibility moves the end of a message's lease to now plus the
// given timeout. A timeout of zero makes the message eligible immediately.
func (e *Engine) ChangeMessageVisibility(ctx context.Context, caller Caller, req *models.ChangeMessageVisibilityRequest) error {
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if err != nil {
		return err
	}
	return e.changeVisibility(ctx, q, req.ReceiptHandle, req.VisibilityTimeout)
}

// ChangeMessageVisibilityBatch changes the visibility of up to ten messages,
// reporting failures per entry.
func (e *Engine) ChangeMessageVisibilityBatch(ctx context.Context, caller Caller, req *models.ChangeMessageVisibilityBatchRequest) (*models.ChangeMessageVisibilityBatchResponse, error) {
	q, err := e.dir.Resolve(ctx, caller, req.QueueUrl)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(req.Entries))
	for i, entry := range req.Entries {
		ids[i] = entry.Id
	}
	if err := validateBatch(ids); err != nil {
		return nil, err
	}

	resp := &models.ChangeMessageVisibilityBatchResponse{
		Successful: []models.ChangeMessageVisibilityBatchResultEntry{},
		Failed:     []models.BatchResultErrorEntry{},
	}
	for _, entry := range req.Entries {
		if failed, ok := checkBatchEntryID(entry.Id); !ok {
			resp.Failed = append(resp.Failed, failed)
			continue
		}
		if err := e.changeVisibility(ctx, q, entry.ReceiptHandle, entry.VisibilityTimeout); err != nil {
			resp.Failed = append(resp.Failed, batchError(entry.Id, err))
			continue
		}
		resp.Successful = append(resp.Successful, models.ChangeMessageVisibilityBatchResultEntry{Id: entry.Id})
	}
	return resp, nil
}

func (e *Engine) changeVisibility(ctx context.Context, q *models.Queue, handle string, timeout *int) error {
	h, err := parseReceiptHandle(handle)
	if err != nil {
		return err
	}
	if timeout == nil {
		return errMissingParameter("VisibilityTimeout")
	}
	if *timeout < 0 || *timeout > maxVisibilityTimeout {
		return errInvalidParameter("Value %d for parameter VisibilityTimeout is invalid. Reason: Must be between 0 and %d.",
			*timeout, maxVisibilityTimeout)
	}

	now := e.clock.Now().UTC()
	_, err = e.c.Messages.Update(ctx, models.MessageKey(q.ID, h.MessageID),
		func(cur *models.Message) bool { return cur.TotalDeliveries == h.Deliveries },
		func(cur *models.Message) {
			cur.VisibleAfter = now.Add(time.Duration(*timeout) * time.Second)
			if *timeout == 0 {
				cur.State = models.StateWaiting
			} else {
				cur.State = models.StateDelivered
			}
			cur.ModifiedAt = now
		})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errReceiptHandleInvalid(handle)
	case errors.Is(err, store.ErrConditionFailed):
		return errHandleExpired()
	}
	return err
}
