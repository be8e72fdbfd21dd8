// Package memory provides an in-process broker that simulates the SQS delivery model:
// visibility timeouts, single-use receipt handles, receive counting, redrive policies,
// retention and purge throttling.
//
// It backs the "memory" broker mode of the CLI and the property tests of the admin core.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/topology"
)

const (
	defaultBaseURL           = "http://memory.local/000000000000"
	arnPrefix                = "arn:aws:sqs:local:000000000000:"
	defaultVisibilityTimeout = 30
	defaultRetention         = 4 * 24 * 60 * 60
	purgeCooldown            = 60 * time.Second
)

// QueueOptions configures a queue created with CreateQueue.
type QueueOptions struct {
	VisibilityTimeout int
	RetentionSeconds  int
	RedrivePolicy     *broker.RedrivePolicy
}

type message struct {
	id                string
	body              string
	messageAttributes map[string]broker.MessageAttribute
	sentAt            time.Time
	firstReceivedAt   time.Time
	receiveCount      int
	visibleAt         time.Time
	receiptHandle     string
}

type queue struct {
	name      string
	url       string
	options   QueueOptions
	messages  []*message
	lastPurge time.Time
}

// Option configures a Broker.
type Option func(*Broker)

// WithClock replaces the wall clock. Tests use it to expire leases deterministically.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithBaseURL sets the URL prefix of created queues.
func WithBaseURL(baseURL string) Option {
	return func(b *Broker) { b.baseURL = strings.TrimSuffix(baseURL, "/") }
}

// Broker is an in-memory implementation of the broker interface.
type Broker struct {
	mu      sync.Mutex
	queues  map[string]*queue
	byURL   map[string]*queue
	now     func() time.Time
	baseURL string
	logger  *logrus.Entry
}

var _ broker.Broker = (*Broker)(nil)

// NewBroker creates an empty Broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{
		queues:  make(map[string]*queue),
		byURL:   make(map[string]*queue),
		now:     time.Now,
		baseURL: defaultBaseURL,
		logger:  logrus.WithField("component", "memory_broker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ARN returns the resource name used in redrive policies for a queue name.
func ARN(name string) string {
	return arnPrefix + name
}

// CreateQueue creates a queue, or updates the options of an existing one, and returns its URL.
func (b *Broker) CreateQueue(name string, options QueueOptions) string {
	if options.VisibilityTimeout <= 0 {
		options.VisibilityTimeout = defaultVisibilityTimeout
	}
	if options.RetentionSeconds <= 0 {
		options.RetentionSeconds = defaultRetention
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if q, ok := b.queues[name]; ok {
		q.options = options
		return q.url
	}
	q := &queue{
		name:    name,
		url:     b.baseURL + "/" + name,
		options: options,
	}
	b.queues[name] = q
	b.byURL[q.url] = q
	return q.url
}

// Provision creates every queue declared by the topology with its declared settings.
func (b *Broker) Provision(topo *topology.Topology) {
	for _, q := range topo.Queues() {
		options := QueueOptions{
			VisibilityTimeout: q.VisibilityTimeoutSeconds,
			RetentionSeconds:  q.RetentionSeconds,
		}
		if q.RedrivePolicy != nil {
			options.RedrivePolicy = &broker.RedrivePolicy{
				DeadLetterTargetArn: ARN(q.RedrivePolicy.TargetDeadLetterQueue),
				MaxReceiveCount:     q.RedrivePolicy.MaxReceiveCount,
			}
		}
		b.CreateQueue(q.Name, options)
	}
	b.logger.WithField("queue_count", len(topo.Queues())).Info("Provisioned in-memory queues")
}

// Snapshot returns the stored messages of a queue without receiving them. Receipt handles are
// omitted and receive counts are not touched.
func (b *Broker) Snapshot(name string) []broker.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	b.expire(q)
	out := make([]broker.Message, 0, len(q.messages))
	for _, m := range q.messages {
		msg := b.toBroker(m)
		msg.ReceiptHandle = ""
		out = append(out, msg)
	}
	return out
}

// ListQueues lists the queues whose names start with prefix, sorted by name.
func (b *Broker) ListQueues(ctx context.Context, prefix string) ([]broker.QueueRef, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	refs := make([]broker.QueueRef, 0, len(b.queues))
	for name, q := range b.queues {
		if strings.HasPrefix(name, prefix) {
			refs = append(refs, broker.QueueRef{Name: name, URL: q.url})
		}
	}
	b.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Name < refs[j].Name })
	metrics.ObserveBrokerCall("list_queues", time.Since(start), nil)
	return refs, nil
}

// QueueURL resolves a queue name to its URL.
func (b *Broker) QueueURL(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[name]
	if !ok {
		return "", fmt.Errorf("resolve queue %s: %w", name, broker.ErrNotFound)
	}
	return q.url, nil
}

// GetQueueAttributes returns the live state of a queue.
func (b *Broker) GetQueueAttributes(ctx context.Context, queueURL string) (broker.QueueAttributes, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return broker.QueueAttributes{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.lookup(queueURL)
	if err != nil {
		metrics.ObserveBrokerCall("get_queue_attributes", time.Since(start), err)
		return broker.QueueAttributes{}, fmt.Errorf("get queue attributes: %w", err)
	}
	b.expire(q)

	now := b.now()
	attrs := broker.QueueAttributes{
		VisibilityTimeout:      q.options.VisibilityTimeout,
		MessageRetentionPeriod: q.options.RetentionSeconds,
	}
	if q.options.RedrivePolicy != nil {
		policy := *q.options.RedrivePolicy
		attrs.RedrivePolicy = &policy
	}

	oldest := 0
	for _, m := range q.messages {
		if m.visibleAt.After(now) {
			attrs.ApproximateNumberOfMessagesNotVisible++
		} else {
			attrs.ApproximateNumberOfMessages++
		}
		if age := int(now.Sub(m.sentAt).Seconds()); age > oldest {
			oldest = age
		}
	}
	attrs.OldestMessageAgeSeconds = &oldest

	metrics.ObserveBrokerCall("get_queue_attributes", time.Since(start), nil)
	return attrs, nil
}

// ReceiveMessages receives visible messages in send order and leases them for the visibility
// timeout. Every receive increments the receive count; a message whose count exceeds the
// queue's redrive threshold is moved to the dead-letter queue instead of being returned.
// WaitTimeSeconds is ignored: the call never blocks.
func (b *Broker) ReceiveMessages(ctx context.Context, queueURL string, opts broker.ReceiveOptions) ([]broker.Message, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxMessages := opts.MaxMessages
	if maxMessages <= 0 || maxMessages > broker.MaxReceiveBatch {
		maxMessages = broker.MaxReceiveBatch
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.lookup(queueURL)
	if err != nil {
		metrics.ObserveBrokerCall("receive_message", time.Since(start), err)
		return nil, fmt.Errorf("receive messages: %w", err)
	}
	b.expire(q)

	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = q.options.VisibilityTimeout
	}

	now := b.now()
	var out []broker.Message
	kept := q.messages[:0]
	for _, m := range q.messages {
		if len(out) >= maxMessages || m.visibleAt.After(now) {
			kept = append(kept, m)
			continue
		}

		if dlq := b.deadLetterFor(q); dlq != nil && m.receiveCount >= q.options.RedrivePolicy.MaxReceiveCount {
			m.visibleAt = time.Time{}
			m.receiptHandle = ""
			dlq.messages = append(dlq.messages, m)
			b.logger.WithFields(logrus.Fields{
				"queue":      q.name,
				"dlq":        dlq.name,
				"message_id": m.id,
			}).Debug("Moved message to dead-letter queue")
			continue
		}

		m.receiveCount++
		if m.firstReceivedAt.IsZero() {
			m.firstReceivedAt = now
		}
		m.visibleAt = now.Add(time.Duration(visibility) * time.Second)
		m.receiptHandle = uuid.NewString()
		out = append(out, b.toBroker(m))
		kept = append(kept, m)
	}
	q.messages = kept

	metrics.ObserveBrokerCall("receive_message", time.Since(start), nil)
	return out, nil
}

// SendMessage publishes a message and returns its new ID.
func (b *Broker) SendMessage(ctx context.Context, queueURL, body string, attributes map[string]broker.MessageAttribute) (string, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.lookup(queueURL)
	if err != nil {
		metrics.ObserveBrokerCall("send_message", time.Since(start), err)
		return "", fmt.Errorf("send message: %w", err)
	}

	m := &message{
		id:                uuid.NewString(),
		body:              body,
		messageAttributes: copyAttributes(attributes),
		sentAt:            b.now(),
	}
	q.messages = append(q.messages, m)

	metrics.ObserveBrokerCall("send_message", time.Since(start), nil)
	return m.id, nil
}

// DeleteMessage deletes the delivery identified by receiptHandle. Handles are single-use and
// are invalidated when their lease expires or the message is received again.
func (b *Broker) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.lookup(queueURL)
	if err != nil {
		metrics.ObserveBrokerCall("delete_message", time.Since(start), err)
		return fmt.Errorf("delete message: %w", err)
	}

	now := b.now()
	for i, m := range q.messages {
		if receiptHandle == "" || m.receiptHandle != receiptHandle {
			continue
		}
		if !m.visibleAt.After(now) {
			break
		}
		q.messages = append(q.messages[:i], q.messages[i+1:]...)
		metrics.ObserveBrokerCall("delete_message", time.Since(start), nil)
		return nil
	}

	err = fmt.Errorf("delete message: %w", broker.ErrLeaseExpired)
	metrics.ObserveBrokerCall("delete_message", time.Since(start), err)
	return err
}

// PurgeQueue deletes every message in the queue. Like SQS, only one purge per queue is
// accepted per minute.
func (b *Broker) PurgeQueue(ctx context.Context, queueURL string) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	q, err := b.lookup(queueURL)
	if err != nil {
		metrics.ObserveBrokerCall("purge_queue", time.Since(start), err)
		return fmt.Errorf("purge queue: %w", err)
	}

	now := b.now()
	if !q.lastPurge.IsZero() && now.Sub(q.lastPurge) < purgeCooldown {
		err := fmt.Errorf("purge queue %s: %w", q.name, broker.ErrPurgeInProgress)
		metrics.ObserveBrokerCall("purge_queue", time.Since(start), err)
		return err
	}

	q.messages = nil
	q.lastPurge = now
	b.logger.WithField("queue", q.name).Info("Purged in-memory queue")

	metrics.ObserveBrokerCall("purge_queue", time.Since(start), nil)
	return nil
}

func (b *Broker) lookup(queueURL string) (*queue, error) {
	q, ok := b.byURL[queueURL]
	if !ok {
		return nil, fmt.Errorf("queue %s: %w", queueURL, broker.ErrNotFound)
	}
	return q, nil
}

// deadLetterFor returns the dead-letter queue of q, or nil when q has none.
func (b *Broker) deadLetterFor(q *queue) *queue {
	if q.options.RedrivePolicy == nil {
		return nil
	}
	return b.queues[q.options.RedrivePolicy.TargetQueueName()]
}

// expire drops messages older than the retention period.
func (b *Broker) expire(q *queue) {
	cutoff := b.now().Add(-time.Duration(q.options.RetentionSeconds) * time.Second)
	kept := q.messages[:0]
	for _, m := range q.messages {
		if m.sentAt.After(cutoff) {
			kept = append(kept, m)
		}
	}
	q.messages = kept
}

func (b *Broker) toBroker(m *message) broker.Message {
	attrs := map[string]string{
		broker.AttributeSentTimestamp:           strconv.FormatInt(m.sentAt.UnixMilli(), 10),
		broker.AttributeApproximateReceiveCount: strconv.Itoa(m.receiveCount),
	}
	if !m.firstReceivedAt.IsZero() {
		attrs[broker.AttributeApproximateFirstReceiveTimestamp] = strconv.FormatInt(m.firstReceivedAt.UnixMilli(), 10)
	}
	return broker.Message{
		ID:                m.id,
		ReceiptHandle:     m.receiptHandle,
		Body:              m.body,
		Attributes:        attrs,
		MessageAttributes: copyAttributes(m.messageAttributes),
	}
}

func copyAttributes(in map[string]broker.MessageAttribute) map[string]broker.MessageAttribute {
	if in == nil {
		return nil
	}
	out := make(map[string]broker.MessageAttribute, len(in))
	for k, v := range in {
		if v.BinaryValue != nil {
			v.BinaryValue = append([]byte(nil), v.BinaryValue...)
		}
		out[k] = v
	}
	return out
}
