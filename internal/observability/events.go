package observability

import (
	"context"
	"sync"
	"time"
)

const (
	HeaderRequestID = "x-request-id"
	HeaderTraceID   = "trace_id"
)

// Publisher sends JSON events to the message bus.
type Publisher interface {
	PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error
}

// EventEnvelope wraps push hub lifecycle events.
type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// BuildHeaders returns AMQP headers for the non-empty correlation ids.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers[HeaderRequestID] = requestID
	}
	if traceID != "" {
		headers[HeaderTraceID] = traceID
	}
	return headers
}

var (
	publisherMu      sync.RWMutex
	processPublisher Publisher
)

// SetPublisher installs the process-wide publisher used by PublishEvent. nil disables publishing.
func SetPublisher(publisher Publisher) {
	publisherMu.Lock()
	defer publisherMu.Unlock()
	processPublisher = publisher
}

// PublishEvent publishes through the process-wide publisher and counts failures.
func PublishEvent(ctx context.Context, routingKey string, envelope EventEnvelope, headers map[string]string) error {
	publisherMu.RLock()
	publisher := processPublisher
	publisherMu.RUnlock()
	if publisher == nil {
		return nil
	}

	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	if err := publisher.PublishJSON(ctx, routingKey, envelope, headers); err != nil {
		IncAMQPPublishError()
		return err
	}
	return nil
}
