// Package broker provides the interface the administration core uses to talk to a message broker.
package broker

import (
	"context"
	"errors"
)

// Errors shared by every broker implementation. Implementations wrap them so callers can
// classify failures with errors.Is.
var (
	// ErrBrokerUnavailable means the broker could not be reached.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrNotFound means the queue or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrLeaseExpired means the receipt handle is stale, already used or otherwise invalid.
	ErrLeaseExpired = errors.New("receipt handle expired or invalid")

	// ErrAccessDenied means the broker rejected the caller's credentials or permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrPurgeInProgress means a purge of the same queue is already running.
	ErrPurgeInProgress = errors.New("purge already in progress")
)

// System attribute keys returned with received messages.
const (
	AttributeSentTimestamp                    = "SentTimestamp"
	AttributeApproximateReceiveCount          = "ApproximateReceiveCount"
	AttributeApproximateFirstReceiveTimestamp = "ApproximateFirstReceiveTimestamp"
)

// QueueRef identifies a queue known to the broker.
type QueueRef struct {
	// Name is the queue name.
	Name string

	// URL is the broker address of the queue.
	URL string
}

// RedrivePolicy is the dead-letter wiring reported by the broker for a queue.
type RedrivePolicy struct {
	// DeadLetterTargetArn identifies the dead-letter queue.
	DeadLetterTargetArn string

	// MaxReceiveCount is the receive threshold after which messages move to the dead-letter queue.
	MaxReceiveCount int
}

// TargetQueueName returns the queue name at the end of the dead-letter target ARN.
func (p RedrivePolicy) TargetQueueName() string {
	for i := len(p.DeadLetterTargetArn) - 1; i >= 0; i-- {
		if p.DeadLetterTargetArn[i] == ':' {
			return p.DeadLetterTargetArn[i+1:]
		}
	}
	return p.DeadLetterTargetArn
}

// QueueAttributes contains the live state of a queue.
type QueueAttributes struct {
	// ApproximateNumberOfMessages is the number of visible messages.
	ApproximateNumberOfMessages int

	// ApproximateNumberOfMessagesNotVisible is the number of received but undeleted messages.
	ApproximateNumberOfMessagesNotVisible int

	// VisibilityTimeout is the queue's default visibility timeout in seconds.
	VisibilityTimeout int

	// MessageRetentionPeriod is the queue's retention period in seconds.
	MessageRetentionPeriod int

	// RedrivePolicy is nil when the queue has no dead-letter wiring.
	RedrivePolicy *RedrivePolicy

	// OldestMessageAgeSeconds is nil when the broker does not expose it.
	OldestMessageAgeSeconds *int
}

// MessageAttribute is a user-defined message attribute. It is passed through unchanged on redrive.
type MessageAttribute struct {
	DataType    string
	StringValue string
	BinaryValue []byte
}

// Message represents a message received from a broker.
type Message struct {
	// ID is the broker-assigned identifier. It is not unique across receive calls.
	ID string

	// ReceiptHandle is the single-use lease token for this delivery.
	ReceiptHandle string

	// Body is the raw payload.
	Body string

	// Attributes contains the broker's system attributes.
	Attributes map[string]string

	// MessageAttributes contains the user-defined attributes.
	MessageAttributes map[string]MessageAttribute
}

// ReceiveOptions controls a single receive call.
type ReceiveOptions struct {
	// MaxMessages is the maximum number of messages to receive (1-10).
	MaxMessages int

	// VisibilityTimeout hides received messages for this many seconds. Zero uses the queue default.
	VisibilityTimeout int

	// WaitTimeSeconds is the long-poll wait. Zero uses the queue default.
	WaitTimeSeconds int
}

// Broker defines the administrative operations over a message broker.
type Broker interface {
	// ListQueues lists the queues whose names start with prefix.
	ListQueues(ctx context.Context, prefix string) ([]QueueRef, error)

	// QueueURL resolves a queue name to its URL.
	QueueURL(ctx context.Context, name string) (string, error)

	// GetQueueAttributes returns the live state of a queue.
	GetQueueAttributes(ctx context.Context, queueURL string) (QueueAttributes, error)

	// ReceiveMessages receives messages, acquiring a lease on each of them.
	ReceiveMessages(ctx context.Context, queueURL string, opts ReceiveOptions) ([]Message, error)

	// SendMessage publishes a message and returns its new ID.
	SendMessage(ctx context.Context, queueURL, body string, attributes map[string]MessageAttribute) (string, error)

	// DeleteMessage deletes the delivery identified by receiptHandle.
	DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error

	// PurgeQueue deletes every message in the queue.
	PurgeQueue(ctx context.Context, queueURL string) error
}

// Config contains configuration for a broker.
type Config struct {
	// Region is the AWS region for the queues.
	Region string

	// Endpoint is the endpoint URL for the queue service.
	Endpoint string

	// MaxMessages is the maximum number of messages to receive in a single call.
	MaxMessages int

	// QueueNamePrefix restricts queue listings.
	QueueNamePrefix string
}

// MaxReceiveBatch is the most messages a single receive call may return.
const MaxReceiveBatch = 10
