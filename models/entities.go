package models

import "time"

// QueueConfig is the resolved, fully defaulted configuration of a queue.
// Two CreateQueue calls for the same name are compatible only when their
// resolved configurations are equal field by field.
type QueueConfig struct {
	// DelaySeconds is the default delivery delay applied to new messages.
	DelaySeconds int `json:"delaySeconds"`
	// MaximumMessageSize is the largest accepted message body, in bytes.
	MaximumMessageSize int `json:"maximumMessageSize"`
	// MessageRetentionPeriod is how long, in seconds, a message is kept before it expires.
	MessageRetentionPeriod int `json:"messageRetentionPeriod"`
	// Policy is the queue's access policy document. It is stored, not enforced.
	Policy string `json:"policy"`
	// ReceiveMessageWaitTimeSeconds is the default long-poll duration for ReceiveMessage.
	ReceiveMessageWaitTimeSeconds int `json:"receiveMessageWaitTimeSeconds"`
	// RedrivePolicy is the dead-letter configuration as a JSON document. "{}" means none.
	RedrivePolicy string `json:"redrivePolicy"`
	// VisibilityTimeout is the default lease duration, in seconds.
	VisibilityTimeout int `json:"visibilityTimeout"`
	// FifoQueue marks the queue as first-in-first-out with per-group exclusivity.
	FifoQueue bool `json:"fifoQueue"`
	// ContentBasedDeduplication derives a missing deduplication id from the body hash (FIFO only).
	ContentBasedDeduplication bool `json:"contentBasedDeduplication"`
	// SqsManagedSseEnabled seals message bodies at rest.
	SqsManagedSseEnabled bool `json:"sqsManagedSseEnabled"`
}

// QueueCounters are advisory message counts maintained by the reconciler.
type QueueCounters struct {
	Visible    int       `json:"visible"`
	NotVisible int       `json:"notVisible"`
	Delayed    int       `json:"delayed"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Queue is the stored queue record. Its id is the queue ARN, which is unique
// per (region, account, name).
type Queue struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	AccountID    string            `json:"accountId"`
	Region       string            `json:"region"`
	URL          string            `json:"url"`
	Config       QueueConfig       `json:"config"`
	Tags         map[string]string `json:"tags,omitempty"`
	Counters     QueueCounters     `json:"counters"`
	CreatedAt    time.Time         `json:"createdAt"`
	ModifiedAt   time.Time         `json:"modifiedAt"`
	LastPolledAt *time.Time        `json:"lastPolledAt,omitempty"`
}

// Key returns the queue's document id.
func (q *Queue) Key() string { return q.ID }

// MessageState is the lifecycle state of a stored message.
type MessageState string

const (
	// StateWaiting messages are deliverable once their visibleAfter time has passed.
	StateWaiting MessageState = "Waiting"
	// StateDelivered messages are leased to a consumer until visibleAfter.
	// A Delivered message whose lease has run out is treated as Waiting.
	StateDelivered MessageState = "Delivered"
	// StateDeleted is terminal. Deleted messages are removed from the store,
	// so the value only appears in transient copies.
	StateDeleted MessageState = "Deleted"
)

// Message is the stored form of a message. It is keyed by "<queue id>/<message id>"
// so all messages of a queue share a key prefix.
type Message struct {
	ID      string `json:"id"`
	QueueID string `json:"queueId"`
	// Body holds the plain body. Queues with SSE enabled store SealedBody instead.
	Body       string `json:"body,omitempty"`
	SealedBody []byte `json:"sealedBody,omitempty"`
	MD5OfBody  string `json:"md5OfBody"`

	Attributes      map[string]MessageAttributeValue `json:"attributes,omitempty"`
	MD5OfAttributes string                           `json:"md5OfAttributes,omitempty"`
	TraceHeader     string                           `json:"traceHeader,omitempty"`
	SenderID        string                           `json:"senderId"`

	GroupID         string `json:"groupId,omitempty"`
	DeduplicationID string `json:"deduplicationId,omitempty"`
	SequenceNumber  string `json:"sequenceNumber,omitempty"`

	// Order is the position of the message in its queue. It increases with
	// every send and determines delivery order.
	Order            int64        `json:"order"`
	State            MessageState `json:"state"`
	VisibleAfter     time.Time    `json:"visibleAfter"`
	TotalDeliveries  int          `json:"totalDeliveries"`
	FirstDeliveredAt *time.Time   `json:"firstDeliveredAt,omitempty"`

	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// MessageKey builds the document id of a message.
func MessageKey(queueID, messageID string) string { return queueID + "/" + messageID }

// Key returns the message's document id.
func (m *Message) Key() string { return MessageKey(m.QueueID, m.ID) }

// Expired reports whether the retention period has run out.
func (m *Message) Expired(now time.Time) bool {
	return !m.ExpiresAt.IsZero() && !now.Before(m.ExpiresAt)
}

// Eligible reports whether the message can be leased at now.
func (m *Message) Eligible(now time.Time) bool {
	return m.State != StateDeleted && !now.Before(m.VisibleAfter) && !m.Expired(now)
}

// Leased reports whether a consumer currently holds the message.
func (m *Message) Leased(now time.Time) bool {
	return m.State == StateDelivered && now.Before(m.VisibleAfter)
}

// Delayed reports whether the message has never become visible yet.
func (m *Message) Delayed(now time.Time) bool {
	return m.State == StateWaiting && now.Before(m.VisibleAfter)
}

// DedupEntry remembers a FIFO deduplication id for the dedup window.
type DedupEntry struct {
	QueueID         string    `json:"queueId"`
	DeduplicationID string    `json:"deduplicationId"`
	MessageID       string    `json:"messageId"`
	SequenceNumber  string    `json:"sequenceNumber,omitempty"`
	ExpiresAt       time.Time `json:"expiresAt"`
}

// Key returns the entry's document id.
func (d *DedupEntry) Key() string { return d.QueueID + "/" + d.DeduplicationID }

// GroupLease records which message currently holds a FIFO message group.
// The group is busy while the holder is still leased with the recorded
// delivery count; every change to the record bumps Version.
type GroupLease struct {
	QueueID    string `json:"queueId"`
	GroupID    string `json:"groupId"`
	MessageID  string `json:"messageId"`
	Deliveries int    `json:"deliveries"`
	Version    int64  `json:"version"`
}

// Key returns the lease's document id.
func (g *GroupLease) Key() string { return g.QueueID + "/" + g.GroupID }

// Session is a set of temporary credentials issued by AssumeRoleWithWebIdentity.
// Sessions are never mutated and expire passively.
type Session struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	AccountID       string `json:"accountId"`

	RoleArn         string `json:"roleArn"`
	RoleSessionName string `json:"roleSessionName"`
	AssumedRoleArn  string `json:"assumedRoleArn"`
	AssumedRoleID   string `json:"assumedRoleId"`
	SourceIdentity  string `json:"sourceIdentity"`
	Provider        string `json:"provider"`
	Subject         string `json:"subject"`
	Audience        string `json:"audience"`

	Namespace          string `json:"namespace"`
	ServiceAccountName string `json:"serviceAccountName"`
	ServiceAccountUID  string `json:"serviceAccountUid"`
	PodName            string `json:"podName,omitempty"`
	PodUID             string `json:"podUid,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Key returns the session's document id.
func (s *Session) Key() string { return s.AccessKeyID }

// Valid reports whether the credentials are still usable at now.
func (s *Session) Valid(now time.Time) bool { return now.Before(s.ExpiresAt) }
