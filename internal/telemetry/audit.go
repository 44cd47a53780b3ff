package telemetry

import (
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Routing keys for the domain events published after a committed mutation.
const (
	EventFriendAdded   = "friend.added"
	EventFriendRemoved = "friend.removed"
	EventMessageSent   = "message.sent"
	EventMessageRead   = "message.read"
	EventAuditLog      = "audit_log"
)

const schemaVersion = 1

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// AuditEmitter wraps domain events in a versioned envelope and publishes them.
// A nil emitter is valid and drops everything.
type AuditEmitter struct {
	publisher   Publisher
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int     `json:"schema_version"`
	EventType     string  `json:"event_type"`
	OccurredAt    string  `json:"occurred_at"`
	Service       string  `json:"service"`
	Environment   string  `json:"environment"`
	RequestID     string  `json:"request_id"`
	UserID        *string `json:"user_id,omitempty"`
	Payload       any     `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

type FriendPayload struct {
	FriendID int `json:"friend_id"`
}

type MessageSentPayload struct {
	MessageID   int    `json:"message_id"`
	ReceiverID  int    `json:"receiver_id"`
	MessageType string `json:"message_type"`
}

type MessageReadPayload struct {
	SenderID int   `json:"sender_id"`
	Count    int64 `json:"count"`
}

func NewAuditEmitter(publisher Publisher, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		service:     service,
		environment: environment,
	}
}

// Emit publishes payload under eventType. Publish failures are logged, never
// returned: the mutation has already committed.
func (e *AuditEmitter) Emit(ctx context.Context, eventType, requestID string, userID int, payload any) {
	if e == nil || e.publisher == nil {
		return
	}

	envelope := AuditEnvelope{
		SchemaVersion: schemaVersion,
		EventType:     eventType,
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     requestID,
		Payload:       payload,
	}
	if userID != 0 {
		uid := strconv.Itoa(userID)
		envelope.UserID = &uid
	}

	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if err := e.publisher.Publish(ctx, eventType, envelope, headers); err != nil {
		log.Error().Err(err).Str("event_type", eventType).Str("request_id", requestID).Msg("audit publish failed")
	}
}

// Log emits a free-form audit_log entry.
func (e *AuditEmitter) Log(ctx context.Context, level, text, requestID string, userID int) {
	e.Emit(ctx, EventAuditLog, requestID, userID, AuditPayload{Level: level, Text: text})
}
