package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/codechat-ai/codechat/internal/events"
	"github.com/codechat-ai/codechat/internal/llm"
	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/internal/session"
	"github.com/codechat-ai/codechat/internal/title"
	"github.com/codechat-ai/codechat/pkg/logger"
	"github.com/codechat-ai/codechat/pkg/metrics"
)

// Fixed replies of the controller. The greeting reply and fallbacks are
// part of the conversation log contract, so they stay stable.
const (
	greetingReply = "Hey there! Could you provide a specific coding question or topic? " +
		"For example, ask me to write a Python function or explain recursion."
	emptyReply       = "I couldn't generate a response."
	errorReplyPrefix = "⚠️ Error: "
)

// exitSentinel clears the current chat instead of being sent as a
// message.
const exitSentinel = "exit"

var greetings = map[string]struct{}{
	"hi":    {},
	"hello": {},
	"hey":   {},
}

// ConversationStore is the persistence surface the chat controller
// needs.
type ConversationStore interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error)
	Create(ctx context.Context, userID uuid.UUID, title string) (*model.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]model.Message, error)
	AppendMessage(ctx context.Context, conversationID uuid.UUID, role model.Role, content string) (*model.Message, error)
	UpdateTitle(ctx context.Context, conversationID uuid.UUID, title string) error
	Delete(ctx context.Context, conversationID uuid.UUID) (bool, error)
}

// ChatService is the session/conversation controller. Every operation
// takes the caller's session explicitly and returns the resulting view
// model; no state lives outside the session and the store.
type ChatService struct {
	store        ConversationStore
	llmClient    llm.Client
	publisher    *events.Publisher
	logger       *logger.Logger
	systemPrompt string
	modelName    string
	modelTimeout time.Duration
}

// NewChatService creates the controller. llmClient may be nil when no
// provider is configured; model calls then fail and surface in-band
// like any other model error.
func NewChatService(
	store ConversationStore,
	llmClient llm.Client,
	publisher *events.Publisher,
	log *logger.Logger,
	systemPrompt, modelName string,
	modelTimeout time.Duration,
) *ChatService {
	return &ChatService{
		store:        store,
		llmClient:    llmClient,
		publisher:    publisher,
		logger:       log,
		systemPrompt: systemPrompt,
		modelName:    modelName,
		modelTimeout: modelTimeout,
	}
}

// SignIn moves the session into the authenticated state: the
// conversation list is loaded synchronously, the most recent
// conversation becomes active when none is, and the message buffer is
// cleared so it reloads lazily.
func (s *ChatService) SignIn(ctx context.Context, sess *session.Session) (*model.ChatView, error) {
	sess.Lock()
	defer sess.Unlock()

	if err := s.loadConversations(ctx, sess); err != nil {
		return nil, err
	}
	return s.view(ctx, sess)
}

// SignOut clears the session state. Dropping the registry entry and the
// identity cookie is the transport layer's job.
func (s *ChatService) SignOut(sess *session.Session) {
	sess.Lock()
	defer sess.Unlock()

	sess.Conversations = nil
	sess.ClearActive()
	sess.Loaded = false
}

// View returns the current view, restoring list and buffer lazily.
// This is what makes a page reload pick up where the user left off.
func (s *ChatService) View(ctx context.Context, sess *session.Session) (*model.ChatView, error) {
	sess.Lock()
	defer sess.Unlock()

	if !sess.Loaded {
		if err := s.loadConversations(ctx, sess); err != nil {
			return nil, err
		}
	}
	return s.view(ctx, sess)
}

// NewChat creates a conversation with the default title, puts it at the
// front of the list and makes it active.
func (s *ChatService) NewChat(ctx context.Context, sess *session.Session) (*model.ChatView, error) {
	sess.Lock()
	defer sess.Unlock()

	if _, err := s.newChatLocked(ctx, sess); err != nil {
		return nil, err
	}
	return s.view(ctx, sess)
}

// SelectConversation activates one of the user's conversations and
// clears the buffer so messages reload.
func (s *ChatService) SelectConversation(ctx context.Context, sess *session.Session, id uuid.UUID) (*model.ChatView, error) {
	sess.Lock()
	defer sess.Unlock()

	if !sess.Loaded {
		if err := s.loadConversations(ctx, sess); err != nil {
			return nil, err
		}
	}

	found := false
	for i := range sess.Conversations {
		if sess.Conversations[i].ID == id {
			found = true
			break
		}
	}
	if !found {
		return nil, model.ErrNotFound
	}

	sess.SetActive(id)
	return s.view(ctx, sess)
}

// Messages returns the transcript of one of the user's conversations
// without changing which conversation is active.
func (s *ChatService) Messages(ctx context.Context, sess *session.Session, id uuid.UUID) ([]model.Message, error) {
	sess.Lock()
	defer sess.Unlock()

	if !sess.Loaded {
		if err := s.loadConversations(ctx, sess); err != nil {
			return nil, err
		}
	}

	owned := false
	for i := range sess.Conversations {
		if sess.Conversations[i].ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return nil, model.ErrNotFound
	}

	return s.store.ListMessages(ctx, id)
}

// DeleteConversation removes a conversation. When the active one is
// deleted, the most recent of the remainder becomes active, or none.
func (s *ChatService) DeleteConversation(ctx context.Context, sess *session.Session, id uuid.UUID) (*model.ChatView, error) {
	sess.Lock()
	defer sess.Unlock()

	if !sess.Loaded {
		if err := s.loadConversations(ctx, sess); err != nil {
			return nil, err
		}
	}

	owned := false
	for i := range sess.Conversations {
		if sess.Conversations[i].ID == id {
			owned = true
			break
		}
	}
	if !owned {
		return nil, model.ErrNotFound
	}

	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if deleted {
		metrics.ConversationsDeleted.Inc()
		s.publisher.Publish(ctx, &model.Event{
			ID:             uuid.New(),
			Type:           model.EventConversationDeleted,
			UserID:         sess.UserID,
			ConversationID: id,
			CreatedAt:      time.Now(),
		})
	}

	remaining := sess.Conversations[:0]
	for _, conv := range sess.Conversations {
		if conv.ID != id {
			remaining = append(remaining, conv)
		}
	}
	sess.Conversations = remaining

	if sess.ActiveID != nil && *sess.ActiveID == id {
		sess.ClearActive()
		if len(sess.Conversations) > 0 {
			sess.SetActive(sess.Conversations[0].ID)
		}
	}

	return s.view(ctx, sess)
}

// SendMessage runs one interaction of the controller state machine.
func (s *ChatService) SendMessage(ctx context.Context, sess *session.Session, text string) (*model.ChatView, error) {
	sess.Lock()
	defer sess.Unlock()

	if !sess.Loaded {
		if err := s.loadConversations(ctx, sess); err != nil {
			return nil, err
		}
	}

	q := strings.TrimSpace(text)

	// The exit sentinel clears the chat and is never stored.
	if strings.EqualFold(q, exitSentinel) {
		if _, err := s.newChatLocked(ctx, sess); err != nil {
			return nil, err
		}
		return s.view(ctx, sess)
	}

	if sess.ActiveID == nil {
		if _, err := s.newChatLocked(ctx, sess); err != nil {
			return nil, err
		}
	}

	// Make sure the transcript is buffered before appending, so the
	// prompt sees the whole conversation.
	if sess.Messages == nil {
		msgs, err := s.store.ListMessages(ctx, *sess.ActiveID)
		if err != nil {
			return nil, err
		}
		sess.Messages = msgs
	}

	userMsg, err := s.appendLocked(ctx, sess, model.RoleUser, q)
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	reply := s.generateReply(ctx, sess, q)

	if _, err := s.appendLocked(ctx, sess, model.RoleAssistant, reply); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	s.assignTitleOnce(ctx, sess, userMsg.Content)

	return s.view(ctx, sess)
}

// generateReply produces the assistant's text for the just-buffered
// user turn. Model failures are recovered into in-band text so the
// conversation is never left without an assistant turn.
func (s *ChatService) generateReply(ctx context.Context, sess *session.Session, q string) string {
	if _, ok := greetings[strings.ToLower(q)]; ok {
		return greetingReply
	}

	prompt := s.buildPrompt(sess.Messages)

	tracer := otel.Tracer("codechat/chat")
	ctx, span := tracer.Start(ctx, "model.complete")
	span.SetAttributes(attribute.Int("prompt_chars", len(prompt)))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.modelTimeout)
	defer cancel()

	start := time.Now()
	provider := "none"
	if s.llmClient != nil {
		provider = s.llmClient.Name()
	}

	var (
		resp *llm.CompletionResponse
		err  error
	)
	if s.llmClient == nil {
		err = fmt.Errorf("no model provider configured")
	} else {
		resp, err = s.llmClient.Complete(callCtx, &llm.CompletionRequest{
			Model:  s.modelName,
			Prompt: prompt,
		})
	}
	if err != nil {
		metrics.RecordModelCall(provider, "error", time.Since(start).Seconds(), 0, 0)
		s.logger.
			WithSession(logger.CorrelationID(ctx), sess.UserID.String(), sess.ActiveID.String()).
			Warn("model invocation failed", zap.Error(err))
		return errorReplyPrefix + err.Error()
	}

	metrics.RecordModelCall(provider, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return emptyReply
	}
	return text
}

// buildPrompt concatenates the fixed system instruction with the full
// transcript, oldest first, each line prefixed by its role.
func (s *ChatService) buildPrompt(messages []model.Message) string {
	var b strings.Builder
	b.WriteString(s.systemPrompt)
	b.WriteString("\n\n")
	for i, msg := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		if msg.Role == model.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(msg.Content)
	}
	return b.String()
}

// assignTitleOnce derives and persists a title from the first user
// message while the conversation still carries the default title.
func (s *ChatService) assignTitleOnce(ctx context.Context, sess *session.Session, userText string) {
	conv := sess.Active()
	if conv == nil {
		return
	}
	if conv.Title != "" && conv.Title != model.DefaultTitle {
		return
	}

	derived := title.Derive(userText)
	if err := s.store.UpdateTitle(ctx, conv.ID, derived); err != nil {
		// Title assignment is cosmetic; the message exchange already
		// succeeded.
		s.logger.Warn("failed to update conversation title",
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err))
		return
	}
	conv.Title = derived
}

// newChatLocked creates and activates a fresh conversation. Caller
// holds the session lock.
func (s *ChatService) newChatLocked(ctx context.Context, sess *session.Session) (*model.Conversation, error) {
	conv, err := s.store.Create(ctx, sess.UserID, model.DefaultTitle)
	if err != nil {
		return nil, err
	}

	metrics.ConversationsTotal.Inc()
	s.publisher.Publish(ctx, &model.Event{
		ID:             uuid.New(),
		Type:           model.EventConversationCreated,
		UserID:         sess.UserID,
		ConversationID: conv.ID,
		CreatedAt:      time.Now(),
	})

	sess.Conversations = append([]model.Conversation{*conv}, sess.Conversations...)
	sess.SetActive(conv.ID)
	sess.Messages = []model.Message{}
	return conv, nil
}

// appendLocked persists a message and appends it to the buffer. Caller
// holds the session lock.
func (s *ChatService) appendLocked(ctx context.Context, sess *session.Session, role model.Role, content string) (*model.Message, error) {
	msg, err := s.store.AppendMessage(ctx, *sess.ActiveID, role, content)
	if err != nil {
		return nil, err
	}

	sess.Messages = append(sess.Messages, *msg)
	metrics.MessagesTotal.WithLabelValues(string(role)).Inc()
	s.publisher.Publish(ctx, &model.Event{
		ID:             uuid.New(),
		Type:           model.EventMessageCreated,
		UserID:         sess.UserID,
		ConversationID: msg.ConversationID,
		Role:           role,
		CreatedAt:      msg.CreatedAt,
	})
	return msg, nil
}

// loadConversations fetches the list, selects the most recent when no
// conversation is active, and clears the buffer. Caller holds the lock.
func (s *ChatService) loadConversations(ctx context.Context, sess *session.Session) error {
	conversations, err := s.store.ListByUser(ctx, sess.UserID)
	if err != nil {
		return err
	}

	sess.Conversations = conversations
	sess.Loaded = true
	sess.Messages = nil

	if sess.ActiveID == nil && len(conversations) > 0 {
		sess.SetActive(conversations[0].ID)
	}
	return nil
}

// view builds the view model, loading the active conversation's
// messages lazily. Caller holds the lock.
func (s *ChatService) view(ctx context.Context, sess *session.Session) (*model.ChatView, error) {
	if sess.ActiveID != nil && sess.Messages == nil {
		msgs, err := s.store.ListMessages(ctx, *sess.ActiveID)
		if err != nil {
			return nil, err
		}
		sess.Messages = msgs
	}

	view := &model.ChatView{
		Conversations: append([]model.Conversation(nil), sess.Conversations...),
		Messages:      append([]model.Message(nil), sess.Messages...),
	}
	if view.Conversations == nil {
		view.Conversations = []model.Conversation{}
	}
	if view.Messages == nil {
		view.Messages = []model.Message{}
	}
	if sess.ActiveID != nil {
		id := *sess.ActiveID
		view.ActiveID = &id
	}
	return view, nil
}
