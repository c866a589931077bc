package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/codechat-ai/codechat/internal/middleware"
	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/internal/service"
	"github.com/codechat-ai/codechat/internal/session"
	"github.com/codechat-ai/codechat/pkg/logger"
)

// ChatHandler handles the conversation/message endpoints. All routes
// require an authenticated user.
type ChatHandler struct {
	chat     *service.ChatService
	sessions *session.Manager
	logger   *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService, sessions *session.Manager, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:     chat,
		sessions: sessions,
		logger:   log,
	}
}

func (h *ChatHandler) sessionFor(r *http.Request) (*session.Session, *model.User, error) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		return nil, nil, model.ErrNoActiveUser
	}
	return h.sessions.Get(user.ID), user, nil
}

// View handles GET /api/v1/chat — the current state, restored lazily
// so a page reload picks up where the user left off.
func (h *ChatHandler) View(w http.ResponseWriter, r *http.Request) {
	sess, user, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	view, err := h.chat.View(r.Context(), sess)
	if err != nil {
		h.logger.Error("failed to build chat view")
		writeError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	view.User = user

	writeJSON(w, http.StatusOK, view)
}

// New handles POST /api/v1/chat/new.
func (h *ChatHandler) New(w http.ResponseWriter, r *http.Request) {
	sess, user, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	view, err := h.chat.NewChat(r.Context(), sess)
	if err != nil {
		h.logger.Error("failed to create conversation")
		writeError(w, http.StatusInternalServerError, "failed to create conversation")
		return
	}
	view.User = user

	writeJSON(w, http.StatusCreated, view)
}

// Select handles POST /api/v1/chat/select.
func (h *ChatHandler) Select(w http.ResponseWriter, r *http.Request) {
	sess, user, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req model.SelectConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := middleware.ValidateConversationID(req.ConversationID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.chat.SelectConversation(r.Context(), sess, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to select conversation")
		writeError(w, http.StatusInternalServerError, "failed to select conversation")
		return
	}
	view.User = user

	writeJSON(w, http.StatusOK, view)
}

// Send handles POST /api/v1/chat/messages — one synchronous
// interaction of the controller state machine.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	sess, user, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The exit sentinel is valid input even though it is blank-ish for
	// content purposes; validate everything else.
	if !strings.EqualFold(strings.TrimSpace(req.Content), "exit") {
		if err := middleware.ValidateMessageContent(req.Content); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	view, err := h.chat.SendMessage(r.Context(), sess, req.Content)
	if err != nil {
		// Persistence failures are deliberately not swallowed: the
		// caller sees the failure instead of a silently lost message.
		h.logger.Error("failed to process message")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view.User = user

	writeJSON(w, http.StatusOK, view)
}

// List handles GET /api/v1/conversations.
func (h *ChatHandler) List(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	view, err := h.chat.View(r.Context(), sess)
	if err != nil {
		h.logger.Error("failed to list conversations")
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, view.Conversations)
}

// Messages handles GET /api/v1/conversations/{id}/messages.
func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := middleware.ValidateConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	messages, err := h.chat.Messages(r.Context(), sess, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to list messages")
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

// Delete handles DELETE /api/v1/conversations/{id}.
func (h *ChatHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sess, user, err := h.sessionFor(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := middleware.ValidateConversationID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.chat.DeleteConversation(r.Context(), sess, id)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
			return
		}
		h.logger.Error("failed to delete conversation")
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	view.User = user

	writeJSON(w, http.StatusOK, view)
}
