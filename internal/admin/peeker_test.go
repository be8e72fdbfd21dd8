package admin

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflowAdmin/internal/broker"
)

func bodies(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(`{"messageType":"EVENT","id":"evt-%d"}`, i)
	}
	return out
}

func TestListMessages_DefaultLimitAndAttributes(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "mailflow-app1-dev", bodies(15)...)

	list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Messages, 10)
	assert.Equal(t, 15, list.TotalCount)
	assert.Equal(t, "mailflow-app1-dev", list.Queue.Name)
	assert.Equal(t, 1, f.broker.Calls("receive"))

	first := list.Messages[0]
	assert.Equal(t, ids[0], first.ID)
	assert.NotEmpty(t, first.ReceiptHandle)
	assert.Equal(t, "Message type: EVENT, ID: evt-0", first.Preview)
	require.NotNil(t, first.Attributes.ApproximateReceiveCount)
	assert.Equal(t, 1, *first.Attributes.ApproximateReceiveCount)
	require.NotNil(t, first.Attributes.SentAt)
	assert.True(t, first.Attributes.SentAt.Equal(f.clock.Now()))
	require.NotNil(t, first.Attributes.FirstReceivedAt)
	assert.Equal(t, SeverityNone, first.Severity)
}

func TestListMessages_LimitIsCappedAndBatched(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "mailflow-app1-dev", bodies(60)...)

	list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{Limit: 500})
	require.NoError(t, err)
	assert.Len(t, list.Messages, 50)
	assert.Equal(t, 5, f.broker.Calls("receive"))
}

func TestListMessages_StopsOnShortBatch(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "mailflow-app1-dev", bodies(12)...)

	list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{Limit: 40})
	require.NoError(t, err)
	assert.Len(t, list.Messages, 12)
	assert.Equal(t, 2, f.broker.Calls("receive"))
}

func TestListMessages_DeduplicatesFirstSeenWins(t *testing.T) {
	f := newFixture(t)

	// The broker redelivers messages across overlapping receive calls.
	batches := [][]broker.Message{
		{{ID: "a", ReceiptHandle: "a-1", Body: "first a"}, {ID: "b", ReceiptHandle: "b-1"}, {ID: "a", ReceiptHandle: "a-2", Body: "second a"}},
		{{ID: "b", ReceiptHandle: "b-2"}, {ID: "c", ReceiptHandle: "c-1"}},
	}
	call := 0
	f.broker.receive = func(_ context.Context, _ string, opts broker.ReceiveOptions) ([]broker.Message, error) {
		assert.Equal(t, 300, opts.VisibilityTimeout)
		if call >= len(batches) {
			return nil, nil
		}
		batch := batches[call]
		call++
		// Pad to a full batch so the peeker keeps receiving.
		for len(batch) < opts.MaxMessages && call == 1 {
			batch = append(batch, broker.Message{ID: "a", ReceiptHandle: "a-n"})
		}
		return batch, nil
	}

	list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{Limit: 20})
	require.NoError(t, err)

	var ids []string
	seen := make(map[string]bool)
	for _, m := range list.Messages {
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
	assert.Equal(t, "a-1", list.Messages[0].ReceiptHandle)
	assert.Equal(t, "first a", list.Messages[0].Body)
	assert.Equal(t, 9, list.Duplicates)
}

func TestListMessages_FilterIsClientSide(t *testing.T) {
	f := newFixture(t)
	ids := f.seed(t, "mailflow-app1-dev",
		`{"email":{"from":{"address":"alice@example.com"},"subject":"Invoice"}}`,
		`{"email":{"from":{"address":"bob@example.com"},"subject":"Hello"}}`,
		"plain INVOICE reminder",
	)

	list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{Filter: "invoice"})
	require.NoError(t, err)
	assert.Len(t, list.Messages, 2)
	assert.Equal(t, 1, f.broker.Calls("receive"))

	f.clock.Advance(301 * time.Second)
	list, err = f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{Filter: ids[1][:8]})
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, ids[1], list.Messages[0].ID)
}

func TestListMessages_InspectionIncrementsReceiveCount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "mailflow-app1-dev", "inspect me")

	for want := 1; want <= 4; want++ {
		list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{})
		require.NoError(t, err)
		require.Len(t, list.Messages, 1)
		assert.Equal(t, want, *list.Messages[0].Attributes.ApproximateReceiveCount)
		f.clock.Advance(301 * time.Second)
	}

	// Four receives put the message in the warning band.
	list, err := f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, SeverityWarning, list.Messages[0].Severity)
}

func TestListMessages_InspectingOutboundCanDeadLetter(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "mailflow-outbound-dev", "slow delivery")

	for i := 0; i < 3; i++ {
		list, err := f.service.ListMessages(context.Background(), "mailflow-outbound-dev", ListOptions{})
		require.NoError(t, err)
		require.Len(t, list.Messages, 1)
		f.clock.Advance(301 * time.Second)
	}

	list, err := f.service.ListMessages(context.Background(), "mailflow-outbound-dev", ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list.Messages)
	assert.Len(t, f.broker.Snapshot("mailflow-dlq-dev"), 1)
}

func TestListMessages_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.ListMessages(context.Background(), "mailflow-missing-dev", ListOptions{})
	assert.ErrorIs(t, err, broker.ErrNotFound)

	f.broker.receive = func(context.Context, string, broker.ReceiveOptions) ([]broker.Message, error) {
		return nil, fmt.Errorf("receive messages: %w", broker.ErrBrokerUnavailable)
	}
	_, err = f.service.ListMessages(context.Background(), "mailflow-app1-dev", ListOptions{})
	assert.ErrorIs(t, err, broker.ErrBrokerUnavailable)
}
