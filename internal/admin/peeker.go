package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
)

// ListOptions controls ListMessages.
type ListOptions struct {
	// Limit is the maximum number of messages to return. Zero uses the configured default;
	// larger values are capped at the configured maximum.
	Limit int

	// Filter keeps only messages whose ID, body or preview contains it, case-insensitively.
	Filter string
}

// MessageList is the result of ListMessages.
type MessageList struct {
	// Queue is the inspected queue with its live metrics.
	Queue Queue

	// Messages are the unique messages received, in encounter order.
	Messages []Message

	// TotalCount is the approximate number of visible messages in the queue.
	TotalCount int

	// Duplicates is the number of repeated deliveries dropped from the result.
	Duplicates int
}

// ListMessages receives up to opts.Limit messages from a queue for inspection.
//
// This is not a side-effect-free peek. Every message returned has been received: its
// ApproximateReceiveCount is incremented and it is hidden from other consumers for the peek
// visibility timeout. On a queue with a redrive policy, repeated inspection can move messages
// to the dead-letter queue. The returned receipt handles are valid for one delete or redrive
// until the lease expires.
//
// Messages are deduplicated by ID, first occurrence wins. The filter is applied to the
// received messages and never causes additional broker calls.
func (s *Service) ListMessages(ctx context.Context, queueName string, opts ListOptions) (result *MessageList, err error) {
	ctx, span := tracing.StartOperation(ctx, "list_messages", queueName)
	defer func() { tracing.End(span, err) }()

	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.DefaultMessageLimit
	}
	if limit > s.config.MaxMessageLimit {
		limit = s.config.MaxMessageLimit
	}

	queue, err := s.GetQueue(ctx, queueName)
	if err != nil {
		return nil, err
	}

	received, duplicates, err := s.receiveUnique(ctx, queue.URL, limit)
	if err != nil {
		s.logger.WithError(err).WithField("queue", queueName).Error("Failed to receive messages")
		return nil, fmt.Errorf("list messages of %s: %w", queueName, err)
	}

	messages := make([]Message, 0, len(received))
	filter := strings.ToLower(strings.TrimSpace(opts.Filter))
	for _, raw := range received {
		msg := toMessage(raw)
		if filter != "" && !matches(msg, filter) {
			continue
		}
		messages = append(messages, msg)
	}

	metrics.ObservePeek(queueName, len(received), duplicates)
	if duplicates > 0 {
		s.logger.WithFields(map[string]interface{}{
			"queue":      queueName,
			"duplicates": duplicates,
		}).Debug("Dropped duplicate deliveries")
	}

	return &MessageList{
		Queue:      *queue,
		Messages:   messages,
		TotalCount: queue.MessageCount,
		Duplicates: duplicates,
	}, nil
}

// receiveUnique issues receive calls of at most MaxReceiveBatch messages until limit unique
// messages are collected, a batch comes back short, or ceil(limit/MaxReceiveBatch) calls
// have been made.
func (s *Service) receiveUnique(ctx context.Context, queueURL string, limit int) ([]broker.Message, int, error) {
	calls := (limit + broker.MaxReceiveBatch - 1) / broker.MaxReceiveBatch
	seen := make(map[string]struct{}, limit)
	unique := make([]broker.Message, 0, limit)
	duplicates := 0

	for call := 0; call < calls && len(unique) < limit; call++ {
		want := limit - len(unique)
		if want > broker.MaxReceiveBatch {
			want = broker.MaxReceiveBatch
		}

		batch, err := s.broker.ReceiveMessages(ctx, queueURL, broker.ReceiveOptions{
			MaxMessages:       want,
			VisibilityTimeout: s.config.PeekVisibilityTimeout,
			WaitTimeSeconds:   s.config.PeekWaitTime,
		})
		if err != nil {
			return nil, 0, err
		}

		for _, msg := range batch {
			if _, ok := seen[msg.ID]; ok {
				duplicates++
				continue
			}
			seen[msg.ID] = struct{}{}
			unique = append(unique, msg)
			if len(unique) == limit {
				break
			}
		}

		if len(batch) < want {
			break
		}
	}

	return unique, duplicates, nil
}

func toMessage(raw broker.Message) Message {
	msg := Message{
		ID:                raw.ID,
		ReceiptHandle:     raw.ReceiptHandle,
		Body:              raw.Body,
		Preview:           Preview(raw.Body),
		MessageAttributes: raw.MessageAttributes,
		Attributes: MessageAttributes{
			SentAt:                  parseMillis(raw.Attributes[broker.AttributeSentTimestamp]),
			ApproximateReceiveCount: parseCount(raw.Attributes[broker.AttributeApproximateReceiveCount]),
			FirstReceivedAt:         parseMillis(raw.Attributes[broker.AttributeApproximateFirstReceiveTimestamp]),
		},
	}
	if msg.Attributes.ApproximateReceiveCount != nil {
		msg.Severity = ReceiveCountSeverity(*msg.Attributes.ApproximateReceiveCount)
	}
	return msg
}

func matches(msg Message, filter string) bool {
	return strings.Contains(strings.ToLower(msg.ID), filter) ||
		strings.Contains(strings.ToLower(msg.Body), filter) ||
		strings.Contains(strings.ToLower(msg.Preview), filter)
}

func parseMillis(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}

func parseCount(s string) *int {
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
