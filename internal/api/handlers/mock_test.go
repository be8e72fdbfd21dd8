package handlers

import (
	"context"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/api/middleware"
	"mailflowAdmin/internal/topology"
)

// MockQueueAdmin implements QueueAdmin for testing.
type MockQueueAdmin struct {
	TopologyFunc      func() *topology.Topology
	ListQueuesFunc    func(ctx context.Context) ([]admin.Queue, error)
	ListMessagesFunc  func(ctx context.Context, queueName string, opts admin.ListOptions) (*admin.MessageList, error)
	DeleteMessageFunc func(ctx context.Context, queueName, receiptHandle string) error
	RedriveFunc       func(ctx context.Context, sourceQueue string, req admin.RedriveRequest) (*admin.RedriveResult, error)
	PurgeFunc         func(ctx context.Context, queueName, confirmation string) error
	ApplyBatchFunc    func(ctx context.Context, queueName string, op admin.Operation, items []admin.BatchItem) (*admin.BatchResult, error)
}

func (m *MockQueueAdmin) Topology() *topology.Topology {
	if m.TopologyFunc != nil {
		return m.TopologyFunc()
	}
	return nil
}

func (m *MockQueueAdmin) ListQueues(ctx context.Context) ([]admin.Queue, error) {
	if m.ListQueuesFunc != nil {
		return m.ListQueuesFunc(ctx)
	}
	return nil, nil
}

func (m *MockQueueAdmin) ListMessages(ctx context.Context, queueName string, opts admin.ListOptions) (*admin.MessageList, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, queueName, opts)
	}
	return &admin.MessageList{}, nil
}

func (m *MockQueueAdmin) DeleteMessage(ctx context.Context, queueName, receiptHandle string) error {
	if m.DeleteMessageFunc != nil {
		return m.DeleteMessageFunc(ctx, queueName, receiptHandle)
	}
	return nil
}

func (m *MockQueueAdmin) Redrive(ctx context.Context, sourceQueue string, req admin.RedriveRequest) (*admin.RedriveResult, error) {
	if m.RedriveFunc != nil {
		return m.RedriveFunc(ctx, sourceQueue, req)
	}
	return &admin.RedriveResult{SourceQueue: sourceQueue, TargetQueue: req.TargetQueueName, Outcome: admin.OutcomeMoved}, nil
}

func (m *MockQueueAdmin) Purge(ctx context.Context, queueName, confirmation string) error {
	if m.PurgeFunc != nil {
		return m.PurgeFunc(ctx, queueName, confirmation)
	}
	return nil
}

func (m *MockQueueAdmin) ApplyBatch(ctx context.Context, queueName string, op admin.Operation, items []admin.BatchItem) (*admin.BatchResult, error) {
	if m.ApplyBatchFunc != nil {
		return m.ApplyBatchFunc(ctx, queueName, op, items)
	}
	return &admin.BatchResult{Operation: op.Name(), Total: len(items), Succeeded: len(items)}, nil
}

func setupGinTest() (*gin.Engine, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.ErrorHandler())
	w := httptest.NewRecorder()
	return router, w
}
