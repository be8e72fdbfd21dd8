package admin

import (
	"context"
	"fmt"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
	"mailflowAdmin/internal/topology"
)

// ListQueues returns the declared queues, in topology order, enriched with live metrics,
// followed by the undeclared broker queues when configured. It fails only when the queue
// listing itself cannot be obtained; a queue whose metrics cannot be fetched is reported
// with Err set.
func (s *Service) ListQueues(ctx context.Context) (queues []Queue, err error) {
	ctx, span := tracing.StartOperation(ctx, "list_queues", s.config.QueuePrefix)
	defer func() { tracing.End(span, err) }()

	refs, err := s.broker.ListQueues(ctx, s.config.QueuePrefix)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list queues")
		return nil, fmt.Errorf("list queues: %w", err)
	}

	undeclared := make(map[string]string, len(refs))
	for _, ref := range refs {
		undeclared[ref.Name] = ref.URL
		s.rememberURL(ref.Name, ref.URL)
	}

	for _, declared := range s.topology.Queues() {
		q := s.describe(declared.Name)
		if url, ok := undeclared[declared.Name]; ok {
			q.URL = url
			delete(undeclared, declared.Name)
		} else {
			q.Err = fmt.Errorf("queue %s: %w", declared.Name, broker.ErrNotFound)
		}
		queues = append(queues, q)
	}
	if s.config.IncludeUndeclared {
		for _, ref := range refs {
			if _, ok := undeclared[ref.Name]; ok {
				q := s.describe(ref.Name)
				q.URL = ref.URL
				queues = append(queues, q)
			}
		}
	}

	fanOut(ctx, len(queues), s.config.BatchConcurrency, func(i int) bool {
		q := &queues[i]
		if q.Err != nil {
			return false
		}
		attrs, err := s.broker.GetQueueAttributes(ctx, q.URL)
		if err != nil {
			s.logger.WithError(err).WithField("queue", q.Name).Warn("Failed to get queue attributes")
			q.Err = err
			return false
		}
		s.applyAttributes(q, attrs)
		return false
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.WithField("queue_count", len(queues)).Debug("Listed queues")
	return queues, nil
}

// GetQueue returns a single queue enriched with live metrics.
func (s *Service) GetQueue(ctx context.Context, name string) (*Queue, error) {
	url, err := s.queueURL(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get queue %s: %w", name, err)
	}

	attrs, err := s.broker.GetQueueAttributes(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("get queue %s: %w", name, err)
	}

	q := s.describe(name)
	q.URL = url
	s.applyAttributes(&q, attrs)
	return &q, nil
}

func (s *Service) applyAttributes(q *Queue, attrs broker.QueueAttributes) {
	q.MessageCount = attrs.ApproximateNumberOfMessages
	q.MessagesInFlight = attrs.ApproximateNumberOfMessagesNotVisible
	q.OldestMessageAgeSeconds = attrs.OldestMessageAgeSeconds

	if declared, ok := s.topology.Lookup(q.Name); ok {
		q.Warnings = topology.CheckLive(declared, attrs)
		for _, warning := range q.Warnings {
			s.logger.WithField("queue", q.Name).Warn(warning)
		}
	} else {
		q.VisibilityTimeoutSeconds = attrs.VisibilityTimeout
		q.RetentionSeconds = attrs.MessageRetentionPeriod
		if attrs.RedrivePolicy != nil {
			q.RedrivePolicy = &topology.RedrivePolicy{
				TargetDeadLetterQueue: attrs.RedrivePolicy.TargetQueueName(),
				MaxReceiveCount:       attrs.RedrivePolicy.MaxReceiveCount,
			}
		}
	}

	metrics.SetQueueDepth(q.Name, string(q.Kind), q.MessageCount, q.MessagesInFlight)
}
