// Package telemetry emits audit records for user-visible mutations.
package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

// Action names an audited mutation.
type Action string

const (
	ActionConversationCreated Action = "conversation.created"
	ActionMessageSent         Action = "message.sent"
	ActionMessageEdited       Action = "message.edited"
	ActionMessageDeleted      Action = "message.deleted"
	ActionProbe               Action = "audit.probe"
)

// Record describes one audited mutation.
type Record struct {
	Action         Action
	ActorID        string
	ConversationID string
	MessageID      string
	RequestID      string
	TraceID        string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	TraceID       string       `json:"trace_id,omitempty"`
	ActorID       string       `json:"actor_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Action         Action `json:"action"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
}

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
	log         *zap.Logger
	now         func() time.Time
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string, log *zap.Logger) *AuditEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
		log:         log.Named("audit"),
		now:         time.Now,
	}
}

// Record publishes r. Publish failures are logged, never returned; a nil emitter drops the record.
func (e *AuditEmitter) Record(ctx context.Context, r Record) {
	if e == nil || e.publisher == nil {
		return
	}

	e.log.Debug("audit",
		zap.String("action", string(r.Action)),
		zap.String("actor_id", r.ActorID),
		zap.String("conversation_id", r.ConversationID),
		zap.String("message_id", r.MessageID),
		zap.String("request_id", r.RequestID))

	envelope := AuditEnvelope{
		SchemaVersion: 2,
		EventType:     "audit_log",
		OccurredAt:    e.now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     r.RequestID,
		TraceID:       r.TraceID,
		ActorID:       r.ActorID,
		Payload: AuditPayload{
			Action:         r.Action,
			ConversationID: r.ConversationID,
			MessageID:      r.MessageID,
		},
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		e.log.Warn("audit publish failed", zap.String("action", string(r.Action)), zap.Error(err))
	}
}
