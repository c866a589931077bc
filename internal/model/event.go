package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies a conversation lifecycle event.
type EventType string

const (
	EventConversationCreated EventType = "conversation.created"
	EventConversationDeleted EventType = "conversation.deleted"
	EventMessageCreated      EventType = "message.created"
)

// Event is a lifecycle notification published to the event bus when one
// is configured. The database remains the system of record; events are
// best-effort.
type Event struct {
	ID             uuid.UUID `json:"id"`
	Type           EventType `json:"type"`
	UserID         uuid.UUID `json:"user_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
