// Package dto defines the JSON request and response bodies of the HTTP API.
package dto

import (
	"time"

	"mailflowAdmin/internal/topology"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SuccessResponse acknowledges a mutation.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// QueueResponse describes one queue with its live metrics.
type QueueResponse struct {
	Name                     string                  `json:"name"`
	Kind                     string                  `json:"kind"`
	URL                      string                  `json:"url,omitempty"`
	MessageCount             int                     `json:"messageCount"`
	MessagesInFlight         int                     `json:"messagesInFlight"`
	OldestMessageAgeSeconds  *int                    `json:"oldestMessageAgeSeconds"`
	VisibilityTimeoutSeconds int                     `json:"visibilityTimeoutSeconds"`
	RetentionSeconds         int                     `json:"retentionSeconds"`
	RedrivePolicy            *topology.RedrivePolicy `json:"redrivePolicy,omitempty"`
	Declared                 bool                    `json:"declared"`
	Warnings                 []string                `json:"warnings,omitempty"`

	// Error is the failure kind when the queue's metrics could not be fetched.
	Error string `json:"error,omitempty"`
}

// QueueListResponse is the body of GET /queues.
type QueueListResponse struct {
	Queues []QueueResponse `json:"queues"`
	Total  int             `json:"total"`
}

// MessageAttribute is a user-defined message attribute. Binary values are base64 encoded.
type MessageAttribute struct {
	DataType    string `json:"dataType"`
	StringValue string `json:"stringValue,omitempty"`
	BinaryValue []byte `json:"binaryValue,omitempty"`
}

// MessageAttributes are the system attributes of a message.
type MessageAttributes struct {
	SentAt                  *time.Time `json:"sentAt,omitempty"`
	ApproximateReceiveCount *int       `json:"approximateReceiveCount,omitempty"`
	FirstReceivedAt         *time.Time `json:"firstReceivedAt,omitempty"`
}

// MessageResponse describes one inspected message.
type MessageResponse struct {
	ID                string                      `json:"id"`
	ReceiptHandle     string                      `json:"receiptHandle"`
	Body              string                      `json:"body"`
	Preview           string                      `json:"preview"`
	Attributes        MessageAttributes           `json:"attributes"`
	MessageAttributes map[string]MessageAttribute `json:"messageAttributes,omitempty"`
	Severity          string                      `json:"severity,omitempty"`
}

// MessageListResponse is the body of GET /queues/:name/messages.
type MessageListResponse struct {
	QueueName  string            `json:"queueName"`
	Messages   []MessageResponse `json:"messages"`
	QueueInfo  QueueResponse     `json:"queueInfo"`
	TotalCount int               `json:"totalCount"`
	Duplicates int               `json:"duplicates"`
}

// DeleteMessageRequest is the body of POST /queues/:name/messages/delete.
type DeleteMessageRequest struct {
	ReceiptHandle string `json:"receiptHandle" binding:"required"`
}

// RedriveMessageRequest is the body of POST /queues/:name/messages/redrive.
type RedriveMessageRequest struct {
	MessageID         string                      `json:"messageId"`
	ReceiptHandle     string                      `json:"receiptHandle" binding:"required"`
	Body              string                      `json:"body" binding:"required"`
	TargetQueueName   string                      `json:"targetQueueName"`
	MessageAttributes map[string]MessageAttribute `json:"messageAttributes"`
}

// RedriveResponse is the body of a redrive that published its message.
type RedriveResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	SourceQueue  string `json:"sourceQueue"`
	TargetQueue  string `json:"targetQueue"`
	NewMessageID string `json:"newMessageId"`
	Outcome      string `json:"outcome"`
}

// BatchItem is one message of a batch request.
type BatchItem struct {
	MessageID         string                      `json:"messageId"`
	ReceiptHandle     string                      `json:"receiptHandle"`
	Body              string                      `json:"body,omitempty"`
	MessageAttributes map[string]MessageAttribute `json:"messageAttributes,omitempty"`
}

// BatchRequest is the body of the batch-delete and batch-redrive endpoints.
type BatchRequest struct {
	TargetQueueName string      `json:"targetQueueName,omitempty"`
	Items           []BatchItem `json:"items" binding:"required,min=1,dive"`
}

// BatchFailure is one item of a batch that did not succeed.
type BatchFailure struct {
	MessageID string `json:"messageId"`
	Kind      string `json:"kind"`
	Error     string `json:"error,omitempty"`
}

// BatchResponse is the body of the batch endpoints.
type BatchResponse struct {
	Operation  string         `json:"operation"`
	Total      int            `json:"total"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Duplicated int            `json:"duplicated"`
	Failures   []BatchFailure `json:"failures"`

	// Error and Code are set when the batch was aborted or cancelled before every item ran.
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// TopologyResponse is the body of GET /topology.
type TopologyResponse struct {
	Environment string           `json:"environment"`
	Prefix      string           `json:"prefix"`
	Queues      []topology.Queue `json:"queues"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}
