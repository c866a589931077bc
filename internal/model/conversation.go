package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the placeholder title given to a fresh conversation
// until the first exchange produces a derived one.
const DefaultTitle = "New Chat"

// Conversation represents a titled thread of messages owned by one user.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SelectConversationRequest activates an existing conversation.
type SelectConversationRequest struct {
	ConversationID string `json:"conversation_id"`
}

// ChatView is the view model returned after every controller transition.
type ChatView struct {
	User          *User          `json:"user,omitempty"`
	Conversations []Conversation `json:"conversations"`
	ActiveID      *uuid.UUID     `json:"active_conversation_id,omitempty"`
	Messages      []Message      `json:"messages"`
}
