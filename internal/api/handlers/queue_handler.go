// Package handlers implements the HTTP handlers of the queue administration API.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/api/dto"
	"mailflowAdmin/internal/api/middleware"
	"mailflowAdmin/internal/topology"
)

// QueueAdmin is the administration core used by the handlers. *admin.Service implements it.
type QueueAdmin interface {
	Topology() *topology.Topology
	ListQueues(ctx context.Context) ([]admin.Queue, error)
	ListMessages(ctx context.Context, queueName string, opts admin.ListOptions) (*admin.MessageList, error)
	DeleteMessage(ctx context.Context, queueName, receiptHandle string) error
	Redrive(ctx context.Context, sourceQueue string, req admin.RedriveRequest) (*admin.RedriveResult, error)
	Purge(ctx context.Context, queueName, confirmation string) error
	ApplyBatch(ctx context.Context, queueName string, op admin.Operation, items []admin.BatchItem) (*admin.BatchResult, error)
}

var _ QueueAdmin = (*admin.Service)(nil)

// QueueHandler handles the queue and message endpoints.
type QueueHandler struct {
	admin QueueAdmin
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(admin QueueAdmin) *QueueHandler {
	return &QueueHandler{admin: admin}
}

// ListQueues handles GET /queues.
func (h *QueueHandler) ListQueues(c *gin.Context) {
	queues, err := h.admin.ListQueues(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.ToQueueListResponse(queues))
}

// ListMessages handles GET /queues/:name/messages. Inspecting messages receives them, which
// hides them from consumers for the peek visibility timeout and counts as a receive.
func (h *QueueHandler) ListMessages(c *gin.Context) {
	opts := admin.ListOptions{Filter: c.Query("filter")}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			_ = c.Error(fmt.Errorf("%w: limit must be a positive integer, got %q", admin.ErrInvalidRequest, raw))
			return
		}
		opts.Limit = limit
	}

	list, err := h.admin.ListMessages(c.Request.Context(), c.Param("name"), opts)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.ToMessageListResponse(list))
}

// DeleteMessage handles POST /queues/:name/messages/delete.
func (h *QueueHandler) DeleteMessage(c *gin.Context) {
	var req dto.DeleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", admin.ErrInvalidRequest, err))
		return
	}

	queueName := c.Param("name")
	if err := h.admin.DeleteMessage(c.Request.Context(), queueName, req.ReceiptHandle); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: "Message deleted successfully"})
}

// RedriveMessage handles POST /queues/:name/messages/redrive.
func (h *QueueHandler) RedriveMessage(c *gin.Context) {
	var req dto.RedriveMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", admin.ErrInvalidRequest, err))
		return
	}

	source := c.Param("name")
	result, err := h.admin.Redrive(c.Request.Context(), source, admin.RedriveRequest{
		MessageID:         req.MessageID,
		ReceiptHandle:     req.ReceiptHandle,
		Body:              req.Body,
		MessageAttributes: dto.ToBrokerAttributes(req.MessageAttributes),
		TargetQueueName:   req.TargetQueueName,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	message := fmt.Sprintf("Message moved from %s to %s", result.SourceQueue, result.TargetQueue)
	if result.Outcome == admin.OutcomeDuplicated {
		message = fmt.Sprintf("Message published to %s but still present in %s", result.TargetQueue, result.SourceQueue)
	}
	c.JSON(http.StatusOK, dto.RedriveResponse{
		Success:      true,
		Message:      message,
		SourceQueue:  result.SourceQueue,
		TargetQueue:  result.TargetQueue,
		NewMessageID: result.NewMessageID,
		Outcome:      string(result.Outcome),
	})
}

// Purge handles POST /queues/:name/purge?confirm=<name>.
//
// The confirm query parameter is required and must equal the queue name exactly. A request
// without it is rejected with 400 even when the client already confirmed with the operator.
func (h *QueueHandler) Purge(c *gin.Context) {
	queueName := c.Param("name")
	if err := h.admin.Purge(c.Request.Context(), queueName, c.Query("confirm")); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Message: fmt.Sprintf("Queue '%s' has been purged successfully", queueName),
	})
}

// BatchDelete handles POST /queues/:name/messages/batch-delete.
func (h *QueueHandler) BatchDelete(c *gin.Context) {
	h.batch(c, func(dto.BatchRequest) admin.Operation { return admin.DeleteOp{} })
}

// BatchRedrive handles POST /queues/:name/messages/batch-redrive.
func (h *QueueHandler) BatchRedrive(c *gin.Context) {
	h.batch(c, func(req dto.BatchRequest) admin.Operation {
		return admin.RedriveOp{TargetQueueName: req.TargetQueueName}
	})
}

func (h *QueueHandler) batch(c *gin.Context, op func(dto.BatchRequest) admin.Operation) {
	var req dto.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(fmt.Errorf("%w: %v", admin.ErrInvalidRequest, err))
		return
	}

	result, err := h.admin.ApplyBatch(c.Request.Context(), c.Param("name"), op(req), dto.ToBatchItems(req.Items))
	if result == nil {
		_ = c.Error(err)
		return
	}

	resp := dto.ToBatchResponse(result)
	status := http.StatusOK
	if err != nil {
		status, resp.Code = middleware.StatusFor(err)
		resp.Error = err.Error()
		if status == http.StatusInternalServerError {
			resp.Error = "An internal error occurred"
		}
	}
	c.JSON(status, resp)
}

// Topology handles GET /topology.
func (h *QueueHandler) Topology(c *gin.Context) {
	c.JSON(http.StatusOK, dto.ToTopologyResponse(h.admin.Topology()))
}
