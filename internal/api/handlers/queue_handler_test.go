package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/api/dto"
	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/topology"
)

func TestQueueHandler_ListQueues(t *testing.T) {
	age := 42
	mock := &MockQueueAdmin{
		ListQueuesFunc: func(context.Context) ([]admin.Queue, error) {
			return []admin.Queue{
				{Name: "mailflow-outbound-dev", Kind: topology.KindOutbound, MessageCount: 3, MessagesInFlight: 1, OldestMessageAgeSeconds: &age, Declared: true},
				{Name: "mailflow-app1-dev", Kind: topology.KindInbound, Err: fmt.Errorf("attrs: %w", broker.ErrAccessDenied)},
			}, nil
		},
	}

	router, w := setupGinTest()
	router.GET("/queues", NewQueueHandler(mock).ListQueues)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	assert.EqualValues(t, 2, raw["total"])
	first := raw["queues"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "outbound", first["kind"])
	assert.EqualValues(t, 3, first["messageCount"])
	assert.EqualValues(t, 1, first["messagesInFlight"])
	assert.EqualValues(t, 42, first["oldestMessageAgeSeconds"])

	second := raw["queues"].([]interface{})[1].(map[string]interface{})
	assert.Equal(t, "AccessDenied", second["error"])
}

func TestQueueHandler_ListQueues_BrokerUnavailable(t *testing.T) {
	mock := &MockQueueAdmin{
		ListQueuesFunc: func(context.Context) ([]admin.Queue, error) {
			return nil, fmt.Errorf("list queues: %w", broker.ErrBrokerUnavailable)
		},
	}

	router, w := setupGinTest()
	router.GET("/queues", NewQueueHandler(mock).ListQueues)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp dto.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Code)
}

func TestQueueHandler_ListMessages(t *testing.T) {
	count := 2
	sent := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var got admin.ListOptions
	mock := &MockQueueAdmin{
		ListMessagesFunc: func(_ context.Context, queueName string, opts admin.ListOptions) (*admin.MessageList, error) {
			got = opts
			return &admin.MessageList{
				Queue: admin.Queue{Name: queueName, Kind: topology.KindDeadLetter, MessageCount: 7},
				Messages: []admin.Message{{
					ID:            "m-1",
					ReceiptHandle: "rh-1",
					Body:          "hello",
					Preview:       "hello",
					Attributes:    admin.MessageAttributes{SentAt: &sent, ApproximateReceiveCount: &count},
					Severity:      admin.SeverityInfo,
				}},
				TotalCount: 7,
			}, nil
		},
	}

	router, w := setupGinTest()
	router.GET("/queues/:name/messages", NewQueueHandler(mock).ListMessages)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues/mailflow-dlq-dev/messages?limit=20&filter=hel", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, admin.ListOptions{Limit: 20, Filter: "hel"}, got)

	var resp dto.MessageListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "mailflow-dlq-dev", resp.QueueName)
	assert.Equal(t, 7, resp.TotalCount)
	assert.Equal(t, "dead-letter", resp.QueueInfo.Kind)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "m-1", resp.Messages[0].ID)
	assert.Equal(t, "rh-1", resp.Messages[0].ReceiptHandle)
	assert.Equal(t, 2, *resp.Messages[0].Attributes.ApproximateReceiveCount)
	assert.Equal(t, "info", resp.Messages[0].Severity)
}

func TestQueueHandler_ListMessages_InvalidLimit(t *testing.T) {
	called := false
	mock := &MockQueueAdmin{
		ListMessagesFunc: func(context.Context, string, admin.ListOptions) (*admin.MessageList, error) {
			called = true
			return &admin.MessageList{}, nil
		},
	}

	for _, limit := range []string{"abc", "0", "-3"} {
		router, w := setupGinTest()
		router.GET("/queues/:name/messages", NewQueueHandler(mock).ListMessages)
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/queues/q/messages?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, w.Code, limit)
	}
	assert.False(t, called)
}

func TestQueueHandler_DeleteMessage(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "success", body: `{"receiptHandle":"rh"}`, wantStatus: http.StatusOK},
		{name: "missing handle", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "stale handle", body: `{"receiptHandle":"rh"}`, err: broker.ErrLeaseExpired, wantStatus: http.StatusConflict},
		{name: "missing queue", body: `{"receiptHandle":"rh"}`, err: broker.ErrNotFound, wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockQueueAdmin{
				DeleteMessageFunc: func(_ context.Context, queueName, handle string) error {
					assert.Equal(t, "q", queueName)
					assert.Equal(t, "rh", handle)
					return tt.err
				},
			}

			router, w := setupGinTest()
			router.POST("/queues/:name/messages/delete", NewQueueHandler(mock).DeleteMessage)
			req := httptest.NewRequest(http.MethodPost, "/queues/q/messages/delete", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestQueueHandler_RedriveMessage(t *testing.T) {
	var got admin.RedriveRequest
	mock := &MockQueueAdmin{
		RedriveFunc: func(_ context.Context, source string, req admin.RedriveRequest) (*admin.RedriveResult, error) {
			got = req
			return &admin.RedriveResult{
				SourceQueue:  source,
				TargetQueue:  "mailflow-outbound-dev",
				NewMessageID: "new-1",
				Outcome:      admin.OutcomeDuplicated,
			}, nil
		},
	}

	router, w := setupGinTest()
	router.POST("/queues/:name/messages/redrive", NewQueueHandler(mock).RedriveMessage)
	body := `{"receiptHandle":"rh","body":"payload","targetQueueName":"","messageAttributes":{"tenant":{"dataType":"String","stringValue":"acme"}}}`
	req := httptest.NewRequest(http.MethodPost, "/queues/mailflow-dlq-dev/messages/redrive", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "payload", got.Body)
	assert.Equal(t, "acme", got.MessageAttributes["tenant"].StringValue)

	var resp dto.RedriveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "duplicated", resp.Outcome)
	assert.Equal(t, "new-1", resp.NewMessageID)
	assert.Contains(t, resp.Message, "still present")
}

func TestQueueHandler_RedriveMessage_PublishFailed(t *testing.T) {
	mock := &MockQueueAdmin{
		RedriveFunc: func(context.Context, string, admin.RedriveRequest) (*admin.RedriveResult, error) {
			return nil, fmt.Errorf("%w: %w", admin.ErrPublishFailed, broker.ErrBrokerUnavailable)
		},
	}

	router, w := setupGinTest()
	router.POST("/queues/:name/messages/redrive", NewQueueHandler(mock).RedriveMessage)
	req := httptest.NewRequest(http.MethodPost, "/queues/q/messages/redrive", strings.NewReader(`{"receiptHandle":"rh","body":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestQueueHandler_Purge(t *testing.T) {
	var confirmation string
	mock := &MockQueueAdmin{
		PurgeFunc: func(_ context.Context, queueName, confirm string) error {
			confirmation = confirm
			if confirm != queueName {
				return admin.ErrConfirmationMismatch
			}
			return nil
		},
	}

	router, w := setupGinTest()
	router.POST("/queues/:name/purge", NewQueueHandler(mock).Purge)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/queues/mailflow-dlq-dev/purge?confirm=mailflow-dlq-dev", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "mailflow-dlq-dev", confirmation)

	router, w = setupGinTest()
	router.POST("/queues/:name/purge", NewQueueHandler(mock).Purge)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/queues/mailflow-dlq-dev/purge", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_BatchRedrive(t *testing.T) {
	var gotOp admin.Operation
	var gotItems []admin.BatchItem
	mock := &MockQueueAdmin{
		ApplyBatchFunc: func(_ context.Context, _ string, op admin.Operation, items []admin.BatchItem) (*admin.BatchResult, error) {
			gotOp, gotItems = op, items
			return &admin.BatchResult{
				Operation: "redrive",
				Total:     2,
				Succeeded: 1,
				Failed:    1,
				Items: []admin.ItemResult{
					{Index: 0, MessageID: "a", Status: admin.ItemSucceeded},
					{Index: 1, MessageID: "b", Status: admin.ItemFailed, Kind: admin.KindLeaseExpired, Err: broker.ErrLeaseExpired},
				},
			}, nil
		},
	}

	router, w := setupGinTest()
	router.POST("/queues/:name/messages/batch-redrive", NewQueueHandler(mock).BatchRedrive)
	body := `{"targetQueueName":"mailflow-app1-dev","items":[{"messageId":"a","receiptHandle":"ra","body":"x"},{"messageId":"b","receiptHandle":"rb","body":"y"}]}`
	req := httptest.NewRequest(http.MethodPost, "/queues/mailflow-dlq-dev/messages/batch-redrive", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, admin.RedriveOp{TargetQueueName: "mailflow-app1-dev"}, gotOp)
	require.Len(t, gotItems, 2)
	assert.Equal(t, "rb", gotItems[1].ReceiptHandle)

	var resp dto.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Failures, 1)
	assert.Equal(t, dto.BatchFailure{MessageID: "b", Kind: "LeaseExpired", Error: broker.ErrLeaseExpired.Error()}, resp.Failures[0])
}

func TestQueueHandler_BatchDelete_AbortedKeepsResult(t *testing.T) {
	mock := &MockQueueAdmin{
		ApplyBatchFunc: func(_ context.Context, _ string, op admin.Operation, items []admin.BatchItem) (*admin.BatchResult, error) {
			assert.Equal(t, admin.DeleteOp{}, op)
			result := &admin.BatchResult{
				Operation: "delete",
				Total:     2,
				Failed:    1,
				Skipped:   1,
				Items: []admin.ItemResult{
					{Index: 0, MessageID: "a", Status: admin.ItemFailed, Kind: admin.KindBrokerUnavailable, Err: broker.ErrBrokerUnavailable},
					{Index: 1, MessageID: "b", Status: admin.ItemSkipped},
				},
			}
			return result, fmt.Errorf("batch delete on q aborted: %w", broker.ErrBrokerUnavailable)
		},
	}

	router, w := setupGinTest()
	router.POST("/queues/:name/messages/batch-delete", NewQueueHandler(mock).BatchDelete)
	req := httptest.NewRequest(http.MethodPost, "/queues/q/messages/batch-delete", strings.NewReader(`{"items":[{"messageId":"a","receiptHandle":"ra"},{"messageId":"b","receiptHandle":"rb"}]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp dto.BatchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SERVICE_UNAVAILABLE", resp.Code)
	assert.Equal(t, 1, resp.Skipped)
	require.Len(t, resp.Failures, 2)
	assert.Equal(t, "skipped", resp.Failures[1].Kind)
}

func TestQueueHandler_BatchRejectsEmptyItems(t *testing.T) {
	mock := &MockQueueAdmin{
		ApplyBatchFunc: func(context.Context, string, admin.Operation, []admin.BatchItem) (*admin.BatchResult, error) {
			t.Fatal("batch must not run")
			return nil, nil
		},
	}

	router, w := setupGinTest()
	router.POST("/queues/:name/messages/batch-delete", NewQueueHandler(mock).BatchDelete)
	req := httptest.NewRequest(http.MethodPost, "/queues/q/messages/batch-delete", strings.NewReader(`{"items":[]}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueHandler_Topology(t *testing.T) {
	topo, err := topology.Build(topology.Config{Environment: "dev", Apps: []string{"app1"}})
	require.NoError(t, err)
	mock := &MockQueueAdmin{TopologyFunc: func() *topology.Topology { return topo }}

	router, w := setupGinTest()
	router.GET("/topology", NewQueueHandler(mock).Topology)
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/topology", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.TopologyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "dev", resp.Environment)
	assert.Len(t, resp.Queues, 4)
	assert.Equal(t, "mailflow-outbound-dev", resp.Queues[1].Name)
	require.NotNil(t, resp.Queues[1].RedrivePolicy)
	assert.Equal(t, 3, resp.Queues[1].RedrivePolicy.MaxReceiveCount)
}
