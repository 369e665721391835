package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabeth/inhouseaws/models"
)

func ptr[T any](v T) *T { return &v }

func send(t *testing.T, svc *Services, q *models.Queue, body string) *models.SendMessageResponse {
	t.Helper()
	resp, err := svc.Messages.SendMessage(context.Background(), testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: body})
	require.NoError(t, err)
	return resp
}

func receive(t *testing.T, svc *Services, q *models.Queue, req models.ReceiveMessageRequest) []models.ResponseMessage {
	t.Helper()
	req.QueueUrl = q.URL
	resp, err := svc.Messages.ReceiveMessage(context.Background(), testCaller, &req)
	require.NoError(t, err)
	return resp.Messages
}

func TestSendThenReceive(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)

	sent := send(t, svc, q, "hi")
	assert.Equal(t, bodyDigest("hi"), sent.MD5OfMessageBody)
	assert.Equal(t, "49f68a5c8493ec2c0bf489821c21fc3b", sent.MD5OfMessageBody)
	assert.Nil(t, sent.SequenceNumber)

	msgs := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 1, WaitTimeSeconds: ptr(0)})
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Body)
	assert.Equal(t, sent.MessageId, msgs[0].MessageId)
	assert.Equal(t, sent.MD5OfMessageBody, msgs[0].MD5OfBody)
	assert.Equal(t, sent.MessageId+"/1", msgs[0].ReceiptHandle)

	assert.Equal(t, SenderID, msgs[0].Attributes["SenderId"])
	assert.Equal(t, "1", msgs[0].Attributes["ApproximateReceiveCount"])
	assert.Contains(t, msgs[0].Attributes, "SentTimestamp")
	assert.Contains(t, msgs[0].Attributes, "ApproximateFirstReceiveTimestamp")

	// Leased messages are not delivered again.
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))
}

func TestReceiveEmptyQueueReturnsImmediately(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 1, WaitTimeSeconds: ptr(0)}))
}

func TestReceiveOrderAndMax(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	for _, body := range []string{"1", "2", "3", "4"} {
		send(t, svc, q, body)
	}

	msgs := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 3})
	require.Len(t, msgs, 3)
	assert.Equal(t, "1", msgs[0].Body)
	assert.Equal(t, "2", msgs[1].Body)
	assert.Equal(t, "3", msgs[2].Body)

	msgs = receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10})
	require.Len(t, msgs, 1)
	assert.Equal(t, "4", msgs[0].Body)
}

func TestStaleReceiptHandle(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	send(t, svc, q, "work")

	first := receive(t, svc, q, models.ReceiveMessageRequest{VisibilityTimeout: ptr(10)})
	require.Len(t, first, 1)

	clock.Advance(11 * time.Second)
	second := receive(t, svc, q, models.ReceiveMessageRequest{VisibilityTimeout: ptr(10)})
	require.Len(t, second, 1)
	assert.Equal(t, first[0].MessageId+"/2", second[0].ReceiptHandle)
	assert.Equal(t, "2", second[0].Attributes["ApproximateReceiveCount"])
	assert.Equal(t, first[0].Attributes["ApproximateFirstReceiveTimestamp"], second[0].Attributes["ApproximateFirstReceiveTimestamp"])

	err := svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL, ReceiptHandle: first[0].ReceiptHandle})
	requireCode(t, err, ErrHandleExpired, CodeMessageHandleExpired)

	err = svc.Messages.ChangeMessageVisibility(ctx, testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: first[0].ReceiptHandle, VisibilityTimeout: ptr(0),
	})
	requireCode(t, err, ErrHandleExpired, CodeMessageHandleExpired)

	// The current lease is untouched by the stale calls.
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))

	require.NoError(t, svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL, ReceiptHandle: second[0].ReceiptHandle}))
	clock.Advance(time.Minute)
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))
}

func TestDeleteMessage(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)

	err := svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL, ReceiptHandle: "gone/1"})
	assert.NoError(t, err, "deleting a message that no longer exists succeeds")

	err = svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL, ReceiptHandle: "garbage"})
	requireCode(t, err, ErrInvalidArgument, CodeReceiptHandleIsInvalid)

	err = svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL})
	requireCode(t, err, ErrInvalidArgument, CodeMissingParameter)

	err = svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL + "-missing", ReceiptHandle: "x/1"})
	requireCode(t, err, ErrNotFound, CodeQueueDoesNotExist)
}

func TestChangeMessageVisibility(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	send(t, svc, q, "work")

	msgs := receive(t, svc, q, models.ReceiveMessageRequest{})
	require.Len(t, msgs, 1)
	handle := msgs[0].ReceiptHandle

	// Extend the lease well past the queue default.
	require.NoError(t, svc.Messages.ChangeMessageVisibility(ctx, testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: handle, VisibilityTimeout: ptr(120),
	}))
	clock.Advance(60 * time.Second)
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))

	// Releasing the lease makes the message deliverable at once.
	require.NoError(t, svc.Messages.ChangeMessageVisibility(ctx, testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: handle, VisibilityTimeout: ptr(0),
	}))
	msgs = receive(t, svc, q, models.ReceiveMessageRequest{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "2", msgs[0].Attributes["ApproximateReceiveCount"])

	err := svc.Messages.ChangeMessageVisibility(ctx, testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: "unknown/1", VisibilityTimeout: ptr(10),
	})
	requireCode(t, err, ErrInvalidArgument, CodeReceiptHandleIsInvalid)

	err = svc.Messages.ChangeMessageVisibility(ctx, testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: msgs[0].ReceiptHandle, VisibilityTimeout: ptr(43201),
	})
	requireCode(t, err, ErrInvalidArgument, CodeInvalidParameterValue)

	err = svc.Messages.ChangeMessageVisibility(ctx, testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: msgs[0].ReceiptHandle,
	})
	requireCode(t, err, ErrInvalidArgument, CodeMissingParameter)
}

func TestConcurrentReceiversNeverShareAMessage(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	send(t, svc, q, "only one")

	const receivers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	start := make(chan struct{})
	for i := 0; i < receivers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			resp, err := svc.Messages.ReceiveMessage(context.Background(), testCaller, &models.ReceiveMessageRequest{QueueUrl: q.URL, MaxNumberOfMessages: 10})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			total += len(resp.Messages)
			mu.Unlock()
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, 1, total)
}

func TestConcurrentReceiversSplitAQueue(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	const messages = 40
	for i := 0; i < messages; i++ {
		send(t, svc, q, "m")
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]int)
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				resp, err := svc.Messages.ReceiveMessage(context.Background(), testCaller, &models.ReceiveMessageRequest{QueueUrl: q.URL, MaxNumberOfMessages: 3})
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				for _, m := range resp.Messages {
					seen[m.MessageId]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, messages)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s delivered more than once", id)
	}
}

func TestDelayedMessages(t *testing.T) {
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)

	_, err := svc.Messages.SendMessage(context.Background(), testCaller, &models.SendMessageRequest{
		QueueUrl: q.URL, MessageBody: "later", DelaySeconds: ptr(int32(5)),
	})
	require.NoError(t, err)
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))

	clock.Advance(5 * time.Second)
	msgs := receive(t, svc, q, models.ReceiveMessageRequest{})
	require.Len(t, msgs, 1)
	assert.Equal(t, "later", msgs[0].Body)

	delayed := createQueue(t, svc, "slow", map[string]string{"DelaySeconds": "30"})
	send(t, svc, delayed, "queue default")
	assert.Empty(t, receive(t, svc, delayed, models.ReceiveMessageRequest{}))
	clock.Advance(30 * time.Second)
	assert.Len(t, receive(t, svc, delayed, models.ReceiveMessageRequest{}), 1)
}

func TestRetentionExpiry(t *testing.T) {
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "short", map[string]string{"MessageRetentionPeriod": "60"})
	send(t, svc, q, "ephemeral")

	clock.Advance(61 * time.Second)
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))
}

func TestSendValidation(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", map[string]string{"MaximumMessageSize": "1024"})
	fifo := createQueue(t, svc, "jobs.fifo", map[string]string{"FifoQueue": "true"})

	tests := []struct {
		name string
		req  models.SendMessageRequest
		code string
	}{
		{"empty body", models.SendMessageRequest{QueueUrl: q.URL}, CodeMissingParameter},
		{"body too large", models.SendMessageRequest{QueueUrl: q.URL, MessageBody: strings.Repeat("x", 1025)}, CodeInvalidParameterValue},
		{"delay out of range", models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "x", DelaySeconds: ptr(int32(901))}, CodeInvalidParameterValue},
		{"dedup id on standard queue", models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "x", MessageDeduplicationId: ptr("d")}, CodeInvalidParameterValue},
		{"reserved attribute name", models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "x", MessageAttributes: map[string]models.MessageAttributeValue{
			"aws.thing": {DataType: "String", StringValue: ptr("v")},
		}}, CodeInvalidParameterValue},
		{"attribute without value", models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "x", MessageAttributes: map[string]models.MessageAttributeValue{
			"colour": {DataType: "String"},
		}}, CodeInvalidParameterValue},
		{"unknown system attribute", models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "x", MessageSystemAttributes: map[string]models.MessageSystemAttributeValue{
			"Other": {DataType: "String", StringValue: ptr("v")},
		}}, CodeInvalidParameterValue},
		{"fifo without group", models.SendMessageRequest{QueueUrl: fifo.URL, MessageBody: "x", MessageDeduplicationId: ptr("d")}, CodeMissingParameter},
		{"fifo without dedup", models.SendMessageRequest{QueueUrl: fifo.URL, MessageBody: "x", MessageGroupId: ptr("g")}, CodeInvalidParameterValue},
		{"fifo with delay", models.SendMessageRequest{QueueUrl: fifo.URL, MessageBody: "x", MessageGroupId: ptr("g"), MessageDeduplicationId: ptr("d"), DelaySeconds: ptr(int32(1))}, CodeInvalidParameterValue},
		{"fifo group with spaces", models.SendMessageRequest{QueueUrl: fifo.URL, MessageBody: "x", MessageGroupId: ptr("a b"), MessageDeduplicationId: ptr("d")}, CodeInvalidParameterValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Messages.SendMessage(context.Background(), testCaller, &tt.req)
			requireCode(t, err, ErrInvalidArgument, tt.code)
		})
	}

	t.Run("too many attributes", func(t *testing.T) {
		attrs := make(map[string]models.MessageAttributeValue)
		for _, name := range strings.Split("a b c d e f g h i j k", " ") {
			attrs[name] = models.MessageAttributeValue{DataType: "String", StringValue: ptr("v")}
		}
		_, err := svc.Messages.SendMessage(context.Background(), testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "x", MessageAttributes: attrs})
		requireCode(t, err, ErrInvalidArgument, CodeInvalidParameterValue)
	})
}

func TestMessageAttributesRoundTrip(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)

	attrs := map[string]models.MessageAttributeValue{
		"colour":       {DataType: "String", StringValue: ptr("red")},
		"size":         {DataType: "Number", StringValue: ptr("42")},
		"trace.id":     {DataType: "String", StringValue: ptr("abc")},
		"trace.parent": {DataType: "Binary", BinaryValue: []byte{1, 2, 3}},
	}
	sent, err := svc.Messages.SendMessage(context.Background(), testCaller, &models.SendMessageRequest{
		QueueUrl: q.URL, MessageBody: "x", MessageAttributes: attrs,
		MessageSystemAttributes: map[string]models.MessageSystemAttributeValue{
			"AWSTraceHeader": {DataType: "String", StringValue: ptr("Root=1-abc")},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, sent.MD5OfMessageAttributes)
	require.NotNil(t, sent.MD5OfMessageSystemAttributes)

	msgs := receive(t, svc, q, models.ReceiveMessageRequest{MessageAttributeNames: []string{"All"}, AttributeNames: []string{"All"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, attrs, msgs[0].MessageAttributes)
	require.NotNil(t, msgs[0].MD5OfMessageAttributes)
	assert.Equal(t, *sent.MD5OfMessageAttributes, *msgs[0].MD5OfMessageAttributes)
	assert.Equal(t, "Root=1-abc", msgs[0].Attributes["AWSTraceHeader"])

	require.NoError(t, svc.Messages.ChangeMessageVisibility(context.Background(), testCaller, &models.ChangeMessageVisibilityRequest{
		QueueUrl: q.URL, ReceiptHandle: msgs[0].ReceiptHandle, VisibilityTimeout: ptr(0),
	}))
	msgs = receive(t, svc, q, models.ReceiveMessageRequest{MessageAttributeNames: []string{"trace.*"}, AttributeNames: []string{"ApproximateReceiveCount"}})
	require.Len(t, msgs, 1)
	assert.Len(t, msgs[0].MessageAttributes, 2)
	assert.Contains(t, msgs[0].MessageAttributes, "trace.id")
	assert.Equal(t, map[string]string{"ApproximateReceiveCount": "2"}, msgs[0].Attributes)
	assert.Equal(t, attributesDigest(msgs[0].MessageAttributes), *msgs[0].MD5OfMessageAttributes)
}

func TestSelectMessageAttributes(t *testing.T) {
	attrs := map[string]models.MessageAttributeValue{
		"a":   {DataType: "String", StringValue: ptr("1")},
		"b.x": {DataType: "String", StringValue: ptr("2")},
	}
	assert.Nil(t, selectMessageAttributes(attrs, nil))
	assert.Equal(t, attrs, selectMessageAttributes(attrs, []string{".*"}))
	assert.Equal(t, attrs, selectMessageAttributes(attrs, []string{"All"}))
	assert.Len(t, selectMessageAttributes(attrs, []string{"b.*"}), 1)
	assert.Len(t, selectMessageAttributes(attrs, []string{"a"}), 1)
	assert.Nil(t, selectMessageAttributes(attrs, []string{"missing"}))
}

func TestSendMessageBatch(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)

	resp, err := svc.Messages.SendMessageBatch(ctx, testCaller, &models.SendMessageBatchRequest{
		QueueUrl: q.URL,
		Entries: []models.SendMessageBatchRequestEntry{
			{Id: "ok-1", MessageBody: "one"},
			{Id: "empty", MessageBody: ""},
			{Id: "ok-2", MessageBody: "two"},
			{MessageBody: "no id"},
			{Id: "bad id!", MessageBody: "three"},
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Successful, 2)
	assert.Equal(t, "ok-1", resp.Successful[0].Id)
	assert.Equal(t, bodyDigest("one"), resp.Successful[0].MD5OfMessageBody)
	assert.Equal(t, "ok-2", resp.Successful[1].Id)

	require.Len(t, resp.Failed, 3)
	assert.Equal(t, models.BatchResultErrorEntry{Id: "empty", Code: CodeMissingParameter, Message: errMissingParameter("MessageBody").Message, SenderFault: true}, resp.Failed[0])
	assert.Equal(t, "", resp.Failed[1].Id)
	assert.Equal(t, CodeMissingParameter, resp.Failed[1].Code)
	assert.Equal(t, "bad id!", resp.Failed[2].Id)
	assert.Equal(t, CodeInvalidBatchEntryId, resp.Failed[2].Code)

	assert.Len(t, receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10}), 2)

	_, err = svc.Messages.SendMessageBatch(ctx, testCaller, &models.SendMessageBatchRequest{QueueUrl: q.URL})
	requireCode(t, err, ErrInvalidArgument, CodeEmptyBatchRequest)

	many := make([]models.SendMessageBatchRequestEntry, 11)
	for i := range many {
		many[i] = models.SendMessageBatchRequestEntry{Id: strings.Repeat("x", i+1), MessageBody: "b"}
	}
	_, err = svc.Messages.SendMessageBatch(ctx, testCaller, &models.SendMessageBatchRequest{QueueUrl: q.URL, Entries: many})
	requireCode(t, err, ErrInvalidArgument, CodeTooManyEntriesInBatchRequest)

	_, err = svc.Messages.SendMessageBatch(ctx, testCaller, &models.SendMessageBatchRequest{QueueUrl: q.URL, Entries: []models.SendMessageBatchRequestEntry{
		{Id: "same", MessageBody: "1"}, {Id: "same", MessageBody: "2"},
	}})
	requireCode(t, err, ErrInvalidArgument, CodeBatchEntryIdsNotDistinct)

	big := strings.Repeat("x", 200000)
	_, err = svc.Messages.SendMessageBatch(ctx, testCaller, &models.SendMessageBatchRequest{QueueUrl: q.URL, Entries: []models.SendMessageBatchRequestEntry{
		{Id: "a", MessageBody: big}, {Id: "b", MessageBody: big},
	}})
	requireCode(t, err, ErrInvalidArgument, CodeBatchRequestTooLong)
}

func TestDeleteAndChangeVisibilityBatches(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	for _, body := range []string{"a", "b", "c"} {
		send(t, svc, q, body)
	}
	msgs := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10})
	require.Len(t, msgs, 3)

	cmv, err := svc.Messages.ChangeMessageVisibilityBatch(ctx, testCaller, &models.ChangeMessageVisibilityBatchRequest{
		QueueUrl: q.URL,
		Entries: []models.ChangeMessageVisibilityBatchRequestEntry{
			{Id: "release", ReceiptHandle: msgs[0].ReceiptHandle, VisibilityTimeout: ptr(0)},
			{Id: "stale", ReceiptHandle: msgs[1].MessageId + "/7", VisibilityTimeout: ptr(0)},
			{Id: "invalid", ReceiptHandle: "nonsense", VisibilityTimeout: ptr(0)},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.ChangeMessageVisibilityBatchResultEntry{{Id: "release"}}, cmv.Successful)
	require.Len(t, cmv.Failed, 2)
	assert.Equal(t, CodeMessageHandleExpired, cmv.Failed[0].Code)
	assert.Equal(t, CodeReceiptHandleIsInvalid, cmv.Failed[1].Code)

	del, err := svc.Messages.DeleteMessageBatch(ctx, testCaller, &models.DeleteMessageBatchRequest{
		QueueUrl: q.URL,
		Entries: []models.DeleteMessageBatchRequestEntry{
			{Id: "b", ReceiptHandle: msgs[1].ReceiptHandle},
			{Id: "c", ReceiptHandle: msgs[2].ReceiptHandle},
			{Id: "stale", ReceiptHandle: msgs[0].MessageId + "/9"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []models.DeleteMessageBatchResultEntry{{Id: "b"}, {Id: "c"}}, del.Successful)
	require.Len(t, del.Failed, 1)
	assert.Equal(t, "stale", del.Failed[0].Id)
	assert.Equal(t, CodeMessageHandleExpired, del.Failed[0].Code)
	assert.True(t, del.Failed[0].SenderFault)

	left := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10})
	require.Len(t, left, 1)
	assert.Equal(t, "a", left[0].Body)

	_, err = svc.Messages.DeleteMessageBatch(ctx, testCaller, &models.DeleteMessageBatchRequest{QueueUrl: q.URL})
	requireCode(t, err, ErrInvalidArgument, CodeEmptyBatchRequest)
}

func TestReceiveValidation(t *testing.T) {
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	for _, req := range []models.ReceiveMessageRequest{
		{QueueUrl: q.URL, MaxNumberOfMessages: 11},
		{QueueUrl: q.URL, VisibilityTimeout: ptr(-1)},
		{QueueUrl: q.URL, WaitTimeSeconds: ptr(21)},
	} {
		_, err := svc.Messages.ReceiveMessage(context.Background(), testCaller, &req)
		requireCode(t, err, ErrInvalidArgument, CodeInvalidParameterValue)
	}

	_, err := svc.Messages.ReceiveMessage(context.Background(), testCaller, &models.ReceiveMessageRequest{QueueUrl: q.URL + "-missing"})
	requireCode(t, err, ErrNotFound, CodeQueueDoesNotExist)
}

func TestReceiveRecordsLastPolled(t *testing.T) {
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "orders", nil)
	receive(t, svc, q, models.ReceiveMessageRequest{})

	stored, err := svc.Messages.c.Queues.Get(context.Background(), q.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastPolledAt)
	assert.True(t, stored.LastPolledAt.Equal(clock.Now()))
}

func TestFifoDeduplication(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "jobs.fifo", map[string]string{"FifoQueue": "true"})

	req := &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "job", MessageGroupId: ptr("g"), MessageDeduplicationId: ptr("d1")}
	first, err := svc.Messages.SendMessage(ctx, testCaller, req)
	require.NoError(t, err)
	require.NotNil(t, first.SequenceNumber)
	assert.Len(t, *first.SequenceNumber, 20)

	clock.Advance(time.Minute)
	again, err := svc.Messages.SendMessage(ctx, testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, first.MessageId, again.MessageId)
	assert.Equal(t, *first.SequenceNumber, *again.SequenceNumber)

	msgs := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10, AttributeNames: []string{"All"}})
	require.Len(t, msgs, 1)
	assert.Equal(t, "g", msgs[0].Attributes["MessageGroupId"])
	assert.Equal(t, "d1", msgs[0].Attributes["MessageDeduplicationId"])
	assert.Equal(t, *first.SequenceNumber, msgs[0].Attributes["SequenceNumber"])
	require.NoError(t, svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL, ReceiptHandle: msgs[0].ReceiptHandle}))

	// The window restarted on the duplicate, so it ends five minutes after it.
	clock.Advance(DedupWindow - time.Second)
	dup, err := svc.Messages.SendMessage(ctx, testCaller, req)
	require.NoError(t, err)
	assert.Equal(t, first.MessageId, dup.MessageId)

	clock.Advance(DedupWindow + time.Second)
	fresh, err := svc.Messages.SendMessage(ctx, testCaller, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.MessageId, fresh.MessageId)
	assert.Greater(t, *fresh.SequenceNumber, *first.SequenceNumber)
}

func TestFifoContentBasedDeduplication(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "jobs.fifo", map[string]string{"FifoQueue": "true", "ContentBasedDeduplication": "true"})

	a, err := svc.Messages.SendMessage(ctx, testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "same", MessageGroupId: ptr("g")})
	require.NoError(t, err)
	b, err := svc.Messages.SendMessage(ctx, testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "same", MessageGroupId: ptr("g")})
	require.NoError(t, err)
	c, err := svc.Messages.SendMessage(ctx, testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "different", MessageGroupId: ptr("g")})
	require.NoError(t, err)

	assert.Equal(t, a.MessageId, b.MessageId)
	assert.NotEqual(t, a.MessageId, c.MessageId)
}

func TestFifoGroupExclusivity(t *testing.T) {
	ctx := context.Background()
	svc, clock := newTestServices(t, Options{})
	q := createQueue(t, svc, "jobs.fifo", map[string]string{"FifoQueue": "true", "ContentBasedDeduplication": "true"})
	for _, m := range []struct{ group, body string }{{"g1", "g1-a"}, {"g1", "g1-b"}, {"g2", "g2-a"}, {"g2", "g2-b"}} {
		_, err := svc.Messages.SendMessage(ctx, testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: m.body, MessageGroupId: ptr(m.group)})
		require.NoError(t, err)
	}

	first := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10, VisibilityTimeout: ptr(30)})
	require.Len(t, first, 2)
	assert.Equal(t, "g1-a", first[0].Body)
	assert.Equal(t, "g2-a", first[1].Body)

	// Both groups have a message in flight.
	assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10}))

	require.NoError(t, svc.Messages.DeleteMessage(ctx, testCaller, &models.DeleteMessageRequest{QueueUrl: q.URL, ReceiptHandle: first[0].ReceiptHandle}))
	next := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10})
	require.Len(t, next, 1)
	assert.Equal(t, "g1-b", next[0].Body)

	// An expired lease frees the group and the same message comes back first.
	clock.Advance(31 * time.Second)
	again := receive(t, svc, q, models.ReceiveMessageRequest{MaxNumberOfMessages: 10})
	require.Len(t, again, 2)
	assert.Equal(t, "g1-b", again[0].Body)
	assert.Equal(t, "g2-a", again[1].Body)
}

func TestFifoConcurrentReceiversRespectGroups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestServices(t, Options{})
	q := createQueue(t, svc, "jobs.fifo", map[string]string{"FifoQueue": "true", "ContentBasedDeduplication": "true"})
	for _, body := range []string{"1", "2", "3", "4", "5"} {
		_, err := svc.Messages.SendMessage(ctx, testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: body, MessageGroupId: ptr("only")})
		require.NoError(t, err)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := svc.Messages.ReceiveMessage(ctx, testCaller, &models.ReceiveMessageRequest{QueueUrl: q.URL, MaxNumberOfMessages: 10})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			total += len(resp.Messages)
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, total)
}

func TestLongPoll(t *testing.T) {
	newRealServices := func(t *testing.T) *Services {
		svc, _ := newTestServices(t, Options{Clock: clockwork.NewRealClock(), PollInterval: 200 * time.Millisecond})
		return svc
	}

	t.Run("empty queue waits for the full duration", func(t *testing.T) {
		svc := newRealServices(t)
		q := createQueue(t, svc, "orders", nil)
		start := time.Now()
		msgs := receive(t, svc, q, models.ReceiveMessageRequest{WaitTimeSeconds: ptr(1)})
		elapsed := time.Since(start)
		assert.Empty(t, msgs)
		assert.GreaterOrEqual(t, elapsed, time.Second)
		assert.Less(t, elapsed, 2*time.Second)
	})

	t.Run("queue default wait time applies", func(t *testing.T) {
		svc := newRealServices(t)
		q := createQueue(t, svc, "orders", map[string]string{"ReceiveMessageWaitTimeSeconds": "1"})
		start := time.Now()
		assert.Empty(t, receive(t, svc, q, models.ReceiveMessageRequest{}))
		assert.GreaterOrEqual(t, time.Since(start), time.Second)
	})

	t.Run("a send wakes the waiting receiver", func(t *testing.T) {
		svc := newRealServices(t)
		q := createQueue(t, svc, "orders", nil)
		go func() {
			time.Sleep(300 * time.Millisecond)
			_, err := svc.Messages.SendMessage(context.Background(), testCaller, &models.SendMessageRequest{QueueUrl: q.URL, MessageBody: "wake up"})
			assert.NoError(t, err)
		}()
		start := time.Now()
		msgs := receive(t, svc, q, models.ReceiveMessageRequest{WaitTimeSeconds: ptr(5)})
		require.Len(t, msgs, 1)
		assert.Equal(t, "wake up", msgs[0].Body)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("cancellation stops the wait", func(t *testing.T) {
		svc := newRealServices(t)
		q := createQueue(t, svc, "orders", nil)
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		start := time.Now()
		_, err := svc.Messages.ReceiveMessage(ctx, testCaller, &models.ReceiveMessageRequest{QueueUrl: q.URL, WaitTimeSeconds: ptr(10)})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestMissingQueueDelay(t *testing.T) {
	svc, clock := newTestServices(t, Options{MissingQueueDelayMin: 5 * time.Second, MissingQueueDelayMax: 10 * time.Second})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Messages.ReceiveMessage(context.Background(), testCaller, &models.ReceiveMessageRequest{QueueUrl: "https://sqs.us-east-1.amazonaws.com/123456123456/nope"})
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	select {
	case <-done:
		t.Fatal("receive on a missing queue returned before the delay")
	default:
	}
	clock.Advance(10 * time.Second)
	select {
	case err := <-done:
		requireCode(t, err, ErrNotFound, CodeQueueDoesNotExist)
	case <-time.After(2 * time.Second):
		t.Fatal("receive on a missing queue did not return after the delay")
	}
}

func TestReceiptHandle(t *testing.T) {
	h, err := parseReceiptHandle("abc/3")
	require.NoError(t, err)
	assert.Equal(t, receiptHandle{MessageID: "abc", Deliveries: 3}, h)
	assert.Equal(t, "abc/3", h.String())

	for _, bad := range []string{"abc", "/1", "abc/0", "abc/x"} {
		_, err := parseReceiptHandle(bad)
		requireCode(t, err, ErrInvalidArgument, CodeReceiptHandleIsInvalid)
	}
}
