package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"mailflowAdmin/internal/broker"
)

// Validation and workflow errors raised by the admin core. Broker failures use the sentinels
// of the broker package.
var (
	// ErrNamingConvention means a dead-letter queue name matches neither the "-dlq" suffix nor
	// the "dlq-" prefix convention.
	ErrNamingConvention = errors.New("queue name does not follow a dead-letter naming convention")

	// ErrTargetUndeterminable means no redrive target was given and none could be derived.
	ErrTargetUndeterminable = errors.New("redrive target cannot be determined")

	// ErrConfirmationMismatch means the purge confirmation did not equal the queue name.
	ErrConfirmationMismatch = errors.New("confirmation does not match queue name")

	// ErrPublishFailed means a redrive could not publish to the target queue. The source
	// message is left in place.
	ErrPublishFailed = errors.New("publish to target queue failed")

	// ErrPartialBatchFailure means at least one batch item failed or was skipped.
	ErrPartialBatchFailure = errors.New("partial batch failure")

	// ErrInvalidRequest means the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")
)

// FailureKind is the classified cause of a failed operation or batch item.
type FailureKind string

// Failure kinds.
const (
	KindNone                 FailureKind = ""
	KindBrokerUnavailable    FailureKind = "BrokerUnavailable"
	KindNotFound             FailureKind = "NotFound"
	KindLeaseExpired         FailureKind = "LeaseExpired"
	KindAccessDenied         FailureKind = "AccessDenied"
	KindPurgeInProgress      FailureKind = "PurgeInProgress"
	KindNamingConvention     FailureKind = "NamingConventionError"
	KindTargetUndeterminable FailureKind = "TargetUndeterminable"
	KindConfirmationMismatch FailureKind = "ConfirmationMismatch"
	KindPublishFailed        FailureKind = "PublishFailed"
	KindPartialBatchFailure  FailureKind = "PartialBatchFailure"
	KindInvalidRequest       FailureKind = "InvalidRequest"
	KindCancelled            FailureKind = "Cancelled"
	KindTimeout              FailureKind = "Timeout"
	KindUnknown              FailureKind = "Unknown"
)

// Classify maps err onto the failure taxonomy. A redrive whose publish step failed is
// reported as KindPublishFailed whatever the underlying cause, and a target that could not be
// derived as KindTargetUndeterminable even when the naming error is wrapped too.
func Classify(err error) FailureKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrPublishFailed):
		return KindPublishFailed
	case errors.Is(err, ErrPartialBatchFailure):
		return KindPartialBatchFailure
	case errors.Is(err, ErrTargetUndeterminable):
		return KindTargetUndeterminable
	case errors.Is(err, ErrNamingConvention):
		return KindNamingConvention
	case errors.Is(err, ErrConfirmationMismatch):
		return KindConfirmationMismatch
	case errors.Is(err, ErrInvalidRequest):
		return KindInvalidRequest
	case errors.Is(err, broker.ErrLeaseExpired):
		return KindLeaseExpired
	case errors.Is(err, broker.ErrNotFound):
		return KindNotFound
	case errors.Is(err, broker.ErrAccessDenied):
		return KindAccessDenied
	case errors.Is(err, broker.ErrPurgeInProgress):
		return KindPurgeInProgress
	case errors.Is(err, broker.ErrBrokerUnavailable):
		return KindBrokerUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, context.Canceled):
		return KindCancelled
	default:
		return KindUnknown
	}
}

// isFatal reports whether err means the broker as a whole is unusable, so that issuing
// further calls is pointless.
func isFatal(err error) bool {
	return errors.Is(err, broker.ErrBrokerUnavailable) || errors.Is(err, broker.ErrAccessDenied)
}

// PartialBatchFailureError carries the failed and skipped items of a batch.
type PartialBatchFailureError struct {
	// Operation is the batch operation name.
	Operation string

	// Total is the number of items in the batch.
	Total int

	// Failures lists every item that did not succeed.
	Failures []ItemResult
}

// Error implements the error interface.
func (e *PartialBatchFailureError) Error() string {
	kinds := make(map[FailureKind]int)
	for _, f := range e.Failures {
		kind := f.Kind
		if f.Status == ItemSkipped {
			kind = "Skipped"
		}
		kinds[kind]++
	}
	parts := make([]string, 0, len(kinds))
	for kind, n := range kinds {
		parts = append(parts, fmt.Sprintf("%s=%d", kind, n))
	}
	sort.Strings(parts)
	return fmt.Sprintf("%s: %d of %d items did not succeed (%s)",
		e.Operation, len(e.Failures), e.Total, strings.Join(parts, ", "))
}

// Unwrap makes the error match ErrPartialBatchFailure.
func (e *PartialBatchFailureError) Unwrap() error {
	return ErrPartialBatchFailure
}
