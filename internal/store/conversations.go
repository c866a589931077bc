package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
)

// ConversationStore persists conversations and their messages.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore creates a conversation store over the shared pool.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// ListByUser returns the user's conversations, most recently created
// first.
func (s *ConversationStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, COALESCE(title, ''), created_at, updated_at
		 FROM conversations
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]model.Conversation, 0)
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

// Create inserts a new conversation for the user.
func (s *ConversationStore) Create(ctx context.Context, userID uuid.UUID, title string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:     uuid.New(),
		UserID: userID,
		Title:  title,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO conversations (id, user_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		conv.ID, conv.UserID, conv.Title,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// ListMessages returns the conversation's messages in creation order.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages
		 WHERE conversation_id = $1
		 ORDER BY created_at ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendMessage persists a message. The role is validated before the
// insert; the CHECK constraint is the backstop.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID uuid.UUID, role model.Role, content string) (*model.Message, error) {
	if !role.Valid() {
		return nil, model.ErrInvalidRole
	}

	msg := &model.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (id, conversation_id, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	return msg, nil
}

// UpdateTitle sets the conversation title and bumps updated_at.
func (s *ConversationStore) UpdateTitle(ctx context.Context, conversationID uuid.UUID, title string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET title = $1, updated_at = NOW() WHERE id = $2`,
		title, conversationID)
	if err != nil {
		return fmt.Errorf("failed to update title: %w", err)
	}
	return nil
}

// Delete removes the conversation; messages cascade via the FK. It
// reports whether a row was actually removed.
func (s *ConversationStore) Delete(ctx context.Context, conversationID uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = $1`, conversationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
