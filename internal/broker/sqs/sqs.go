// Package sqs provides an implementation of the broker interface for AWS SQS.
package sqs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/observability/metrics"
)

// API is the subset of the SQS client used by the broker.
type API interface {
	ListQueues(ctx context.Context, params *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	PurgeQueue(ctx context.Context, params *sqs.PurgeQueueInput, optFns ...func(*sqs.Options)) (*sqs.PurgeQueueOutput, error)
}

// Broker is an implementation of the broker interface for AWS SQS.
type Broker struct {
	// client is the AWS SQS client.
	client API

	// config contains configuration for the broker.
	config broker.Config

	// logger is the logger for the broker.
	logger *logrus.Entry
}

var _ broker.Broker = (*Broker)(nil)

// NewBroker creates a new Broker.
func NewBroker(client API, config broker.Config) (*Broker, error) {
	if client == nil {
		return nil, errors.New("sqs client is nil")
	}

	if config.MaxMessages <= 0 || config.MaxMessages > broker.MaxReceiveBatch {
		config.MaxMessages = broker.MaxReceiveBatch
	}

	logger := logrus.WithFields(logrus.Fields{
		"component": "sqs_broker",
		"region":    config.Region,
	})

	return &Broker{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// ListQueues lists the queues whose names start with prefix.
func (b *Broker) ListQueues(ctx context.Context, prefix string) ([]broker.QueueRef, error) {
	if prefix == "" {
		prefix = b.config.QueueNamePrefix
	}

	input := &sqs.ListQueuesInput{
		MaxResults: aws.Int32(1000),
	}
	if prefix != "" {
		input.QueueNamePrefix = aws.String(prefix)
	}

	start := time.Now()
	var refs []broker.QueueRef
	paginator := sqs.NewListQueuesPaginator(b.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			metrics.ObserveBrokerCall("list_queues", time.Since(start), err)
			b.logger.WithError(err).Error("Failed to list SQS queues")
			return nil, classify("list queues", err)
		}
		for _, queueURL := range page.QueueUrls {
			refs = append(refs, broker.QueueRef{
				Name: nameFromURL(queueURL),
				URL:  queueURL,
			})
		}
	}
	metrics.ObserveBrokerCall("list_queues", time.Since(start), nil)

	b.logger.WithField("queue_count", len(refs)).Debug("Listed SQS queues")
	return refs, nil
}

// QueueURL resolves a queue name to its URL.
func (b *Broker) QueueURL(ctx context.Context, name string) (string, error) {
	start := time.Now()
	result, err := b.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{
		QueueName: aws.String(name),
	})
	metrics.ObserveBrokerCall("get_queue_url", time.Since(start), err)
	if err != nil {
		b.logger.WithError(err).WithField("queue", name).Warn("Failed to resolve queue URL")
		return "", classify(fmt.Sprintf("resolve queue %s", name), err)
	}
	if result.QueueUrl == nil {
		return "", fmt.Errorf("resolve queue %s: %w", name, broker.ErrNotFound)
	}
	return *result.QueueUrl, nil
}

// GetQueueAttributes returns the live state of a queue.
func (b *Broker) GetQueueAttributes(ctx context.Context, queueURL string) (broker.QueueAttributes, error) {
	start := time.Now()
	result, err := b.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameAll},
	})
	metrics.ObserveBrokerCall("get_queue_attributes", time.Since(start), err)
	if err != nil {
		return broker.QueueAttributes{}, classify("get queue attributes", err)
	}

	attrs := result.Attributes
	out := broker.QueueAttributes{
		ApproximateNumberOfMessages:           atoi(attrs[string(types.QueueAttributeNameApproximateNumberOfMessages)]),
		ApproximateNumberOfMessagesNotVisible: atoi(attrs[string(types.QueueAttributeNameApproximateNumberOfMessagesNotVisible)]),
		VisibilityTimeout:                     atoi(attrs[string(types.QueueAttributeNameVisibilityTimeout)]),
		MessageRetentionPeriod:                atoi(attrs[string(types.QueueAttributeNameMessageRetentionPeriod)]),
	}

	if raw := attrs[string(types.QueueAttributeNameRedrivePolicy)]; raw != "" {
		policy, err := parseRedrivePolicy(raw)
		if err != nil {
			b.logger.WithError(err).WithField("queue_url", queueURL).Warn("Ignoring unparseable redrive policy")
		} else {
			out.RedrivePolicy = &policy
		}
	}

	return out, nil
}

// ReceiveMessages receives messages, acquiring a lease on each of them.
func (b *Broker) ReceiveMessages(ctx context.Context, queueURL string, opts broker.ReceiveOptions) ([]broker.Message, error) {
	maxMessages := opts.MaxMessages
	if maxMessages <= 0 || maxMessages > b.config.MaxMessages {
		maxMessages = b.config.MaxMessages
	}

	params := &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(queueURL),
		MaxNumberOfMessages:   int32(maxMessages),
		VisibilityTimeout:     int32(opts.VisibilityTimeout),
		WaitTimeSeconds:       int32(opts.WaitTimeSeconds),
		MessageAttributeNames: []string{"All"},
		AttributeNames:        []types.QueueAttributeName{types.QueueAttributeNameAll},
	}

	start := time.Now()
	result, err := b.client.ReceiveMessage(ctx, params)
	metrics.ObserveBrokerCall("receive_message", time.Since(start), err)
	if err != nil {
		b.logger.WithError(err).WithField("queue_url", queueURL).Error("Failed to receive messages from SQS")
		return nil, classify("receive messages", err)
	}

	messages := make([]broker.Message, 0, len(result.Messages))
	for _, sqsMsg := range result.Messages {
		msg := broker.Message{
			ID:                aws.ToString(sqsMsg.MessageId),
			ReceiptHandle:     aws.ToString(sqsMsg.ReceiptHandle),
			Body:              aws.ToString(sqsMsg.Body),
			Attributes:        make(map[string]string, len(sqsMsg.Attributes)),
			MessageAttributes: make(map[string]broker.MessageAttribute, len(sqsMsg.MessageAttributes)),
		}
		for k, v := range sqsMsg.Attributes {
			msg.Attributes[k] = v
		}
		for k, v := range sqsMsg.MessageAttributes {
			msg.MessageAttributes[k] = broker.MessageAttribute{
				DataType:    aws.ToString(v.DataType),
				StringValue: aws.ToString(v.StringValue),
				BinaryValue: v.BinaryValue,
			}
		}
		messages = append(messages, msg)
	}

	b.logger.WithFields(logrus.Fields{
		"queue_url":     queueURL,
		"message_count": len(messages),
	}).Debug("Received messages from SQS")

	return messages, nil
}

// SendMessage publishes a message and returns its new ID.
func (b *Broker) SendMessage(ctx context.Context, queueURL, body string, attributes map[string]broker.MessageAttribute) (string, error) {
	messageAttributes := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		value := types.MessageAttributeValue{
			DataType: aws.String(v.DataType),
		}
		if v.DataType == "" {
			value.DataType = aws.String("String")
		}
		if v.BinaryValue != nil {
			value.BinaryValue = v.BinaryValue
		} else {
			value.StringValue = aws.String(v.StringValue)
		}
		messageAttributes[k] = value
	}

	start := time.Now()
	result, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: messageAttributes,
	})
	metrics.ObserveBrokerCall("send_message", time.Since(start), err)
	if err != nil {
		b.logger.WithError(err).WithField("queue_url", queueURL).Error("Failed to send message to SQS")
		return "", classify("send message", err)
	}

	messageID := aws.ToString(result.MessageId)
	b.logger.WithFields(logrus.Fields{
		"queue_url":  queueURL,
		"message_id": messageID,
	}).Debug("Message published to SQS")

	return messageID, nil
}

// DeleteMessage deletes the delivery identified by receiptHandle.
func (b *Broker) DeleteMessage(ctx context.Context, queueURL, receiptHandle string) error {
	start := time.Now()
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(queueURL),
		ReceiptHandle: aws.String(receiptHandle),
	})
	metrics.ObserveBrokerCall("delete_message", time.Since(start), err)
	if err != nil {
		b.logger.WithError(err).WithField("queue_url", queueURL).Warn("Failed to delete message from SQS")
		return classify("delete message", err)
	}
	return nil
}

// PurgeQueue deletes every message in the queue.
func (b *Broker) PurgeQueue(ctx context.Context, queueURL string) error {
	start := time.Now()
	_, err := b.client.PurgeQueue(ctx, &sqs.PurgeQueueInput{
		QueueUrl: aws.String(queueURL),
	})
	metrics.ObserveBrokerCall("purge_queue", time.Since(start), err)
	if err != nil {
		b.logger.WithError(err).WithField("queue_url", queueURL).Error("Failed to purge SQS queue")
		return classify("purge queue", err)
	}
	return nil
}

// classify maps an SDK error onto the broker error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var queueMissing *types.QueueDoesNotExist
	if errors.As(err, &queueMissing) {
		return fmt.Errorf("%s: %w: %v", op, broker.ErrNotFound, err)
	}
	var invalidHandle *types.ReceiptHandleIsInvalid
	if errors.As(err, &invalidHandle) {
		return fmt.Errorf("%s: %w: %v", op, broker.ErrLeaseExpired, err)
	}
	var notInflight *types.MessageNotInflight
	if errors.As(err, &notInflight) {
		return fmt.Errorf("%s: %w: %v", op, broker.ErrLeaseExpired, err)
	}
	var purging *types.PurgeQueueInProgress
	if errors.As(err, &purging) {
		return fmt.Errorf("%s: %w: %v", op, broker.ErrPurgeInProgress, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); {
		case code == "AWS.SimpleQueueService.NonExistentQueue" || code == "QueueDoesNotExist":
			return fmt.Errorf("%s: %w: %v", op, broker.ErrNotFound, err)
		case code == "ReceiptHandleIsInvalid" || code == "MessageNotInflight":
			return fmt.Errorf("%s: %w: %v", op, broker.ErrLeaseExpired, err)
		case code == "InvalidParameterValue" && strings.Contains(strings.ToLower(apiErr.ErrorMessage()), "receipthandle"):
			return fmt.Errorf("%s: %w: %v", op, broker.ErrLeaseExpired, err)
		case code == "AWS.SimpleQueueService.PurgeQueueInProgress" || code == "PurgeQueueInProgress":
			return fmt.Errorf("%s: %w: %v", op, broker.ErrPurgeInProgress, err)
		case strings.HasPrefix(code, "AccessDenied"),
			code == "InvalidClientTokenId",
			code == "UnrecognizedClientException",
			code == "SignatureDoesNotMatch",
			code == "ExpiredToken":
			return fmt.Errorf("%s: %w: %v", op, broker.ErrAccessDenied, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	// Anything that never produced an API response is a transport failure.
	return fmt.Errorf("%s: %w: %v", op, broker.ErrBrokerUnavailable, err)
}

// redrivePolicyJSON is the wire shape of the RedrivePolicy queue attribute.
type redrivePolicyJSON struct {
	DeadLetterTargetArn string          `json:"deadLetterTargetArn"`
	MaxReceiveCount     json.RawMessage `json:"maxReceiveCount"`
}

// parseRedrivePolicy parses the RedrivePolicy attribute. SQS reports maxReceiveCount either
// as a number or as a string.
func parseRedrivePolicy(raw string) (broker.RedrivePolicy, error) {
	var wire redrivePolicyJSON
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return broker.RedrivePolicy{}, fmt.Errorf("failed to parse redrive policy: %w", err)
	}

	count := strings.Trim(string(wire.MaxReceiveCount), `"`)
	maxReceiveCount, err := strconv.Atoi(count)
	if err != nil {
		return broker.RedrivePolicy{}, fmt.Errorf("invalid maxReceiveCount %q: %w", count, err)
	}

	return broker.RedrivePolicy{
		DeadLetterTargetArn: wire.DeadLetterTargetArn,
		MaxReceiveCount:     maxReceiveCount,
	}, nil
}

// nameFromURL returns the last path segment of a queue URL.
func nameFromURL(queueURL string) string {
	if i := strings.LastIndex(queueURL, "/"); i >= 0 {
		return queueURL[i+1:]
	}
	return queueURL
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
