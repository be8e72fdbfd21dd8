package admin

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflowAdmin/internal/broker"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{err: nil, want: KindNone},
		{err: fmt.Errorf("delete: %w", broker.ErrLeaseExpired), want: KindLeaseExpired},
		{err: fmt.Errorf("get: %w", broker.ErrNotFound), want: KindNotFound},
		{err: broker.ErrBrokerUnavailable, want: KindBrokerUnavailable},
		{err: broker.ErrAccessDenied, want: KindAccessDenied},
		{err: broker.ErrPurgeInProgress, want: KindPurgeInProgress},
		{err: fmt.Errorf("%w: %w", ErrPublishFailed, broker.ErrBrokerUnavailable), want: KindPublishFailed},
		{err: ErrTargetUndeterminable, want: KindTargetUndeterminable},
		{err: ErrNamingConvention, want: KindNamingConvention},
		{err: fmt.Errorf("%w for orders: %w", ErrTargetUndeterminable, ErrNamingConvention), want: KindTargetUndeterminable},
		{err: ErrConfirmationMismatch, want: KindConfirmationMismatch},
		{err: ErrInvalidRequest, want: KindInvalidRequest},
		{err: context.DeadlineExceeded, want: KindTimeout},
		{err: context.Canceled, want: KindCancelled},
		{err: errors.New("boom"), want: KindUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestPartialBatchFailureError(t *testing.T) {
	result := &BatchResult{
		Operation: "delete",
		Total:     3,
		Items: []ItemResult{
			{Index: 0, Status: ItemSucceeded},
			{Index: 1, Status: ItemFailed, Kind: KindLeaseExpired, Err: broker.ErrLeaseExpired},
			{Index: 2, Status: ItemSkipped},
		},
	}

	err := result.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialBatchFailure)
	assert.Equal(t, KindPartialBatchFailure, Classify(err))

	var partial *PartialBatchFailureError
	require.True(t, errors.As(err, &partial))
	assert.Len(t, partial.Failures, 2)
	assert.Equal(t, "delete: 2 of 3 items did not succeed (LeaseExpired=1, Skipped=1)", err.Error())

	assert.NoError(t, (&BatchResult{Items: []ItemResult{{Status: ItemSucceeded}}}).Err())
}
