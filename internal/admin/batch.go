package admin

import (
	"context"
	"fmt"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
	"mailflowAdmin/internal/observability/tracing"
)

// Operation is the mutation applied by ApplyBatch. It is either DeleteOp or RedriveOp.
type Operation interface {
	// Name returns the operation name used in logs and metrics.
	Name() string

	operation()
}

// DeleteOp deletes every item.
type DeleteOp struct{}

// Name returns "delete".
func (DeleteOp) Name() string { return "delete" }

func (DeleteOp) operation() {}

// RedriveOp redrives every item to the same target queue.
type RedriveOp struct {
	// TargetQueueName overrides target derivation when set.
	TargetQueueName string
}

// Name returns "redrive".
func (RedriveOp) Name() string { return "redrive" }

func (RedriveOp) operation() {}

// BatchItem is one message of a batch.
type BatchItem struct {
	MessageID         string
	ReceiptHandle     string
	Body              string
	MessageAttributes map[string]broker.MessageAttribute
}

// ItemStatus is the outcome of one batch item.
type ItemStatus string

// Item statuses.
const (
	ItemSucceeded ItemStatus = "succeeded"
	ItemFailed    ItemStatus = "failed"
	ItemSkipped   ItemStatus = "skipped"
)

// ItemResult is the outcome of one batch item. Each item has exactly one result.
type ItemResult struct {
	Index     int
	MessageID string
	Status    ItemStatus
	Kind      FailureKind
	Err       error

	// Duplicated is set for a redrive that published but could not delete the source.
	Duplicated bool

	// NewMessageID is the ID of the published copy of a redriven item.
	NewMessageID string
}

// BatchResult aggregates the outcome of a batch. It is never all-or-nothing: every item is
// reported individually.
type BatchResult struct {
	Operation  string
	Total      int
	Succeeded  int
	Failed     int
	Skipped    int
	Duplicated int
	Items      []ItemResult
}

// Failures returns the items that failed or were skipped.
func (r *BatchResult) Failures() []ItemResult {
	var out []ItemResult
	for _, item := range r.Items {
		if item.Status != ItemSucceeded {
			out = append(out, item)
		}
	}
	return out
}

// Err returns a *PartialBatchFailureError when any item failed or was skipped, else nil.
func (r *BatchResult) Err() error {
	failures := r.Failures()
	if len(failures) == 0 {
		return nil
	}
	return &PartialBatchFailureError{
		Operation: r.Operation,
		Total:     r.Total,
		Failures:  failures,
	}
}

type itemFunc func(ctx context.Context, item BatchItem) ItemResult

// ApplyBatch applies op to every item independently. Item failures are classified and
// recorded in the result, never returned. Up to BatchConcurrency items run at once, each
// bounded by ItemTimeout.
//
// Validation of the queue and, for redrive, of the target happens once before any item is
// issued; a validation failure is returned with a nil result. Cancelling ctx stops issuing
// new items, which are reported as skipped. An item failing because the broker is
// unavailable or denies access also stops issuance; the returned error then wraps that
// failure and the partial result is returned alongside it.
func (s *Service) ApplyBatch(ctx context.Context, queueName string, op Operation, items []BatchItem) (result *BatchResult, err error) {
	if op == nil {
		return nil, fmt.Errorf("%w: batch operation is required", ErrInvalidRequest)
	}

	ctx, span := tracing.StartOperation(ctx, "batch_"+op.Name(), queueName, tracing.AttrItemCount.Int(len(items)))
	defer func() { tracing.End(span, err) }()

	sourceURL, err := s.queueURL(ctx, queueName)
	if err != nil {
		return nil, fmt.Errorf("batch %s on %s: %w", op.Name(), queueName, err)
	}

	var run itemFunc
	switch op := op.(type) {
	case DeleteOp:
		run = func(ctx context.Context, item BatchItem) ItemResult {
			if item.ReceiptHandle == "" {
				return ItemResult{Err: fmt.Errorf("%w: receipt handle is required", broker.ErrLeaseExpired)}
			}
			return ItemResult{Err: s.broker.DeleteMessage(ctx, sourceURL, item.ReceiptHandle)}
		}
	case RedriveOp:
		target, err := s.ResolveRedriveTarget(queueName, op.TargetQueueName)
		if err != nil {
			return nil, err
		}
		targetURL, err := s.queueURL(ctx, target)
		if err != nil {
			return nil, fmt.Errorf("batch redrive to %s: %w", target, err)
		}
		span.SetAttributes(tracing.AttrTargetQueue.String(target))

		run = func(ctx context.Context, item BatchItem) ItemResult {
			if item.ReceiptHandle == "" {
				return ItemResult{Err: fmt.Errorf("%w: receipt handle is required", broker.ErrLeaseExpired)}
			}
			res, err := s.redrive(ctx, queueName, sourceURL, target, targetURL, RedriveRequest{
				MessageID:         item.MessageID,
				ReceiptHandle:     item.ReceiptHandle,
				Body:              item.Body,
				MessageAttributes: item.MessageAttributes,
			})
			if err != nil {
				return ItemResult{Err: err}
			}
			return ItemResult{
				NewMessageID: res.NewMessageID,
				Duplicated:   res.Outcome == OutcomeDuplicated,
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported batch operation %T", ErrInvalidRequest, op)
	}

	slots := make([]ItemResult, len(items))
	issued := fanOut(ctx, len(items), s.config.BatchConcurrency, func(i int) bool {
		itemCtx, cancel := context.WithTimeout(ctx, s.config.ItemTimeout)
		defer cancel()

		res := run(itemCtx, items[i])
		res.Index = i
		res.MessageID = items[i].MessageID
		if res.Err != nil {
			res.Status = ItemFailed
			res.Kind = Classify(res.Err)
		} else {
			res.Status = ItemSucceeded
		}
		slots[i] = res
		return res.Err != nil && isFatal(res.Err)
	})
	for i := issued; i < len(items); i++ {
		slots[i] = ItemResult{
			Index:     i,
			MessageID: items[i].MessageID,
			Status:    ItemSkipped,
		}
	}

	result = aggregate(op.Name(), slots)
	s.logger.WithFields(map[string]interface{}{
		"queue":      queueName,
		"operation":  op.Name(),
		"total":      result.Total,
		"succeeded":  result.Succeeded,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
		"duplicated": result.Duplicated,
	}).Info("Batch completed")

	if fatal := firstFatal(slots); fatal != nil {
		return result, fmt.Errorf("batch %s on %s aborted: %w", op.Name(), queueName, fatal)
	}
	if err := ctx.Err(); err != nil && result.Skipped > 0 {
		return result, fmt.Errorf("batch %s on %s cancelled: %w", op.Name(), queueName, err)
	}
	return result, nil
}

// aggregate merges the per-item slots once every item has finished.
func aggregate(operation string, slots []ItemResult) *BatchResult {
	result := &BatchResult{
		Operation: operation,
		Total:     len(slots),
		Items:     slots,
	}
	for _, slot := range slots {
		switch slot.Status {
		case ItemSucceeded:
			result.Succeeded++
			if slot.Duplicated {
				result.Duplicated++
				metrics.ObserveBatchItem(operation, string(OutcomeDuplicated))
			} else {
				metrics.ObserveBatchItem(operation, "success")
			}
		case ItemFailed:
			result.Failed++
			metrics.ObserveBatchItem(operation, string(slot.Kind))
		case ItemSkipped:
			result.Skipped++
			metrics.ObserveBatchItem(operation, "skipped")
		}
	}
	return result
}

func firstFatal(slots []ItemResult) error {
	for _, slot := range slots {
		if slot.Status == ItemFailed && isFatal(slot.Err) {
			return slot.Err
		}
	}
	return nil
}
