package model

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message. Only user and assistant are
// ever persisted; the role column carries a matching CHECK constraint.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the persistable roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is one immutable turn in a conversation.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// SendMessageRequest is the request to submit a message to the active
// conversation.
type SendMessageRequest struct {
	Content string `json:"content"`
}
