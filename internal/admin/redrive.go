package admin

import (
	"context"
	"fmt"
	"strings"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
)

// RedriveOutcome describes how far a redrive got.
type RedriveOutcome string

const (
	// OutcomeMoved means the message was published to the target and deleted from the source.
	OutcomeMoved RedriveOutcome = "moved"

	// OutcomeDuplicated means the message was published to the target but could not be
	// deleted from the source, so it is now present in both queues.
	OutcomeDuplicated RedriveOutcome = "duplicated"
)

// RedriveRequest identifies the message to move.
type RedriveRequest struct {
	// MessageID is used for logging only.
	MessageID string

	// ReceiptHandle is the lease of the message in the source queue.
	ReceiptHandle string

	// Body is published unchanged to the target.
	Body string

	// MessageAttributes are published unchanged to the target.
	MessageAttributes map[string]broker.MessageAttribute

	// TargetQueueName overrides target derivation when set.
	TargetQueueName string
}

// RedriveResult is the outcome of a redrive that published its message.
type RedriveResult struct {
	SourceQueue  string
	TargetQueue  string
	NewMessageID string
	Outcome      RedriveOutcome

	// DeleteErr is the reason the source message could not be deleted when Outcome is
	// OutcomeDuplicated.
	DeleteErr error
}

// ResolveRedriveTarget picks the queue a message from sourceQueue should be moved to: the
// explicit target if given, else the single declared queue whose redrive policy points at
// sourceQueue, else the name derived from the dead-letter naming convention.
func (s *Service) ResolveRedriveTarget(sourceQueue, explicitTarget string) (string, error) {
	target := strings.TrimSpace(explicitTarget)
	if target == "" {
		if sources := s.topology.SourcesFor(sourceQueue); len(sources) == 1 {
			target = sources[0].Name
		}
	}
	if target == "" {
		derived, err := DeriveSourceQueueName(sourceQueue)
		if err != nil {
			return "", fmt.Errorf("%w for %s: %w", ErrTargetUndeterminable, sourceQueue, err)
		}
		target = derived
	}

	if target == sourceQueue {
		return "", fmt.Errorf("%w: redrive target equals source queue %s", ErrInvalidRequest, sourceQueue)
	}
	return target, nil
}

// Redrive moves a message from sourceQueue to its target queue. The message is published to
// the target first and deleted from the source only after the publish succeeded, so it is
// never lost: if the publish fails the error wraps ErrPublishFailed and the source is
// untouched; if the delete fails the result reports OutcomeDuplicated with a nil error.
func (s *Service) Redrive(ctx context.Context, sourceQueue string, req RedriveRequest) (result *RedriveResult, err error) {
	ctx, span := tracing.StartOperation(ctx, "redrive", sourceQueue)
	defer func() { tracing.End(span, err) }()

	if req.ReceiptHandle == "" {
		return nil, fmt.Errorf("redrive from %s: %w: receipt handle is required", sourceQueue, broker.ErrLeaseExpired)
	}

	target, err := s.ResolveRedriveTarget(sourceQueue, req.TargetQueueName)
	if err != nil {
		metrics.ObserveOperation("redrive", string(Classify(err)))
		return nil, err
	}
	span.SetAttributes(tracing.AttrTargetQueue.String(target))

	sourceURL, err := s.queueURL(ctx, sourceQueue)
	if err != nil {
		metrics.ObserveOperation("redrive", string(Classify(err)))
		return nil, fmt.Errorf("redrive from %s: %w", sourceQueue, err)
	}
	targetURL, err := s.queueURL(ctx, target)
	if err != nil {
		metrics.ObserveOperation("redrive", string(Classify(err)))
		return nil, fmt.Errorf("redrive to %s: %w", target, err)
	}

	result, err = s.redrive(ctx, sourceQueue, sourceURL, target, targetURL, req)
	if err != nil {
		metrics.ObserveOperation("redrive", string(Classify(err)))
		return nil, err
	}
	metrics.ObserveOperation("redrive", string(result.Outcome))
	return result, nil
}

// redrive performs the publish-then-delete sequence on resolved queues.
func (s *Service) redrive(ctx context.Context, source, sourceURL, target, targetURL string, req RedriveRequest) (*RedriveResult, error) {
	logger := s.logger.WithFields(map[string]interface{}{
		"source_queue":          source,
		"target_queue":          target,
		"message_id":            req.MessageID,
		"receipt_handle_prefix": receiptPrefix(req.ReceiptHandle),
	})

	newID, err := s.broker.SendMessage(ctx, targetURL, req.Body, req.MessageAttributes)
	if err != nil {
		logger.WithError(err).Error("Redrive publish failed, source message left in place")
		return nil, fmt.Errorf("redrive to %s: %w: %w", target, ErrPublishFailed, err)
	}

	result := &RedriveResult{
		SourceQueue:  source,
		TargetQueue:  target,
		NewMessageID: newID,
		Outcome:      OutcomeMoved,
	}

	// Once published, the delete ignores caller cancellation.
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ItemTimeout)
	defer cancel()

	if err := s.broker.DeleteMessage(deleteCtx, sourceURL, req.ReceiptHandle); err != nil {
		logger.WithError(err).Warn("Redrive published but source delete failed, message is duplicated")
		result.Outcome = OutcomeDuplicated
		result.DeleteErr = err
		return result, nil
	}

	logger.WithField("new_message_id", newID).Info("Message redriven")
	return result, nil
}

// DeleteMessage deletes one delivery of a message using its receipt handle.
func (s *Service) DeleteMessage(ctx context.Context, queueName, receiptHandle string) (err error) {
	ctx, span := tracing.StartOperation(ctx, "delete", queueName)
	defer func() {
		metrics.ObserveOperation("delete", outcomeLabel(err))
		tracing.End(span, err)
	}()

	if receiptHandle == "" {
		return fmt.Errorf("delete from %s: %w: receipt handle is required", queueName, broker.ErrLeaseExpired)
	}

	url, err := s.queueURL(ctx, queueName)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", queueName, err)
	}

	if err := s.broker.DeleteMessage(ctx, url, receiptHandle); err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"queue":                 queueName,
			"receipt_handle_prefix": receiptPrefix(receiptHandle),
		}).Warn("Failed to delete message")
		return fmt.Errorf("delete from %s: %w", queueName, err)
	}

	s.logger.WithFields(map[string]interface{}{
		"queue":                 queueName,
		"receipt_handle_prefix": receiptPrefix(receiptHandle),
	}).Info("Message deleted")
	return nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(Classify(err))
}
