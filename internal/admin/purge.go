package admin

import (
	"context"
	"fmt"

	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
)

// Purge irreversibly deletes every message of queueName. It proceeds only when confirmation
// equals queueName exactly (case-sensitive); otherwise it fails with ErrConfirmationMismatch
// without calling the broker. The broker's purge error is returned unmodified.
func (s *Service) Purge(ctx context.Context, queueName, confirmation string) (err error) {
	ctx, span := tracing.StartOperation(ctx, "purge", queueName)
	defer func() {
		metrics.ObserveOperation("purge", outcomeLabel(err))
		tracing.End(span, err)
	}()

	if queueName == "" || confirmation != queueName {
		s.logger.WithField("queue", queueName).Warn("Purge refused, confirmation does not match")
		return fmt.Errorf("%w: expected %q", ErrConfirmationMismatch, queueName)
	}

	url, err := s.queueURL(ctx, queueName)
	if err != nil {
		return err
	}

	s.logger.WithField("queue", queueName).Warn("Purging queue, all messages will be deleted")
	if err := s.broker.PurgeQueue(ctx, url); err != nil {
		s.logger.WithError(err).WithField("queue", queueName).Error("Failed to purge queue")
		return err
	}

	s.logger.WithField("queue", queueName).Info("Queue purged")
	return nil
}
