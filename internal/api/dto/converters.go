package dto

import (
	"mailflowAdmin/internal/admin"
	"mailflowAdmin/internal/broker"
	"mailflowAdmin/internal/topology"
)

// ToQueueResponse converts admin.Queue to QueueResponse.
func ToQueueResponse(q admin.Queue) QueueResponse {
	resp := QueueResponse{
		Name:                     q.Name,
		Kind:                     string(q.Kind),
		URL:                      q.URL,
		MessageCount:             q.MessageCount,
		MessagesInFlight:         q.MessagesInFlight,
		OldestMessageAgeSeconds:  q.OldestMessageAgeSeconds,
		VisibilityTimeoutSeconds: q.VisibilityTimeoutSeconds,
		RetentionSeconds:         q.RetentionSeconds,
		RedrivePolicy:            q.RedrivePolicy,
		Declared:                 q.Declared,
		Warnings:                 q.Warnings,
	}
	if q.Err != nil {
		resp.Error = string(admin.Classify(q.Err))
	}
	return resp
}

// ToQueueListResponse converts a slice of admin.Queue to QueueListResponse.
func ToQueueListResponse(queues []admin.Queue) QueueListResponse {
	responses := make([]QueueResponse, 0, len(queues))
	for _, q := range queues {
		responses = append(responses, ToQueueResponse(q))
	}
	return QueueListResponse{
		Queues: responses,
		Total:  len(responses),
	}
}

// ToMessageResponse converts admin.Message to MessageResponse.
func ToMessageResponse(m admin.Message) MessageResponse {
	return MessageResponse{
		ID:            m.ID,
		ReceiptHandle: m.ReceiptHandle,
		Body:          m.Body,
		Preview:       m.Preview,
		Attributes: MessageAttributes{
			SentAt:                  m.Attributes.SentAt,
			ApproximateReceiveCount: m.Attributes.ApproximateReceiveCount,
			FirstReceivedAt:         m.Attributes.FirstReceivedAt,
		},
		MessageAttributes: FromBrokerAttributes(m.MessageAttributes),
		Severity:          string(m.Severity),
	}
}

// ToMessageListResponse converts admin.MessageList to MessageListResponse.
func ToMessageListResponse(list *admin.MessageList) MessageListResponse {
	messages := make([]MessageResponse, 0, len(list.Messages))
	for _, m := range list.Messages {
		messages = append(messages, ToMessageResponse(m))
	}
	return MessageListResponse{
		QueueName:  list.Queue.Name,
		Messages:   messages,
		QueueInfo:  ToQueueResponse(list.Queue),
		TotalCount: list.TotalCount,
		Duplicates: list.Duplicates,
	}
}

// FromBrokerAttributes converts broker message attributes to their JSON form.
func FromBrokerAttributes(attrs map[string]broker.MessageAttribute) map[string]MessageAttribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]MessageAttribute, len(attrs))
	for name, attr := range attrs {
		out[name] = MessageAttribute{
			DataType:    attr.DataType,
			StringValue: attr.StringValue,
			BinaryValue: attr.BinaryValue,
		}
	}
	return out
}

// ToBrokerAttributes converts JSON message attributes to broker attributes.
func ToBrokerAttributes(attrs map[string]MessageAttribute) map[string]broker.MessageAttribute {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]broker.MessageAttribute, len(attrs))
	for name, attr := range attrs {
		out[name] = broker.MessageAttribute{
			DataType:    attr.DataType,
			StringValue: attr.StringValue,
			BinaryValue: attr.BinaryValue,
		}
	}
	return out
}

// ToBatchItems converts the items of a batch request.
func ToBatchItems(items []BatchItem) []admin.BatchItem {
	out := make([]admin.BatchItem, len(items))
	for i, item := range items {
		out[i] = admin.BatchItem{
			MessageID:         item.MessageID,
			ReceiptHandle:     item.ReceiptHandle,
			Body:              item.Body,
			MessageAttributes: ToBrokerAttributes(item.MessageAttributes),
		}
	}
	return out
}

// ToBatchResponse converts admin.BatchResult to BatchResponse.
func ToBatchResponse(result *admin.BatchResult) BatchResponse {
	failures := make([]BatchFailure, 0)
	for _, item := range result.Failures() {
		failure := BatchFailure{MessageID: item.MessageID, Kind: string(item.Kind)}
		if item.Status == admin.ItemSkipped {
			failure.Kind = string(admin.ItemSkipped)
		}
		if item.Err != nil {
			failure.Error = item.Err.Error()
		}
		failures = append(failures, failure)
	}
	return BatchResponse{
		Operation:  result.Operation,
		Total:      result.Total,
		Succeeded:  result.Succeeded,
		Failed:     result.Failed,
		Skipped:    result.Skipped,
		Duplicated: result.Duplicated,
		Failures:   failures,
	}
}

// ToTopologyResponse converts a topology to TopologyResponse.
func ToTopologyResponse(topo *topology.Topology) TopologyResponse {
	return TopologyResponse{
		Environment: topo.Environment(),
		Prefix:      topo.Prefix(),
		Queues:      topo.Queues(),
	}
}
