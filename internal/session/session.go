// Package session holds per-user in-memory interaction state.
//
// Each signed-in user gets one Session object carrying the conversation
// list, the active conversation and a lazily loaded message buffer.
// Sessions are independent; the only state shared across users is the
// database underneath.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
	"github.com/codechat-ai/codechat/pkg/metrics"
)

// Session is the explicit per-user state object passed to every
// controller operation. Callers must hold Lock around transitions; one
// interaction is one synchronous request/response cycle.
type Session struct {
	sync.Mutex

	UserID        uuid.UUID
	Conversations []model.Conversation

	// ActiveID is nil when no conversation is active.
	ActiveID *uuid.UUID

	// Messages is the buffered transcript of the active conversation.
	// nil means not loaded; an empty non-nil slice means loaded and
	// empty.
	Messages []model.Message

	// Loaded reports whether the conversation list has been fetched.
	Loaded bool
}

// Active returns the active conversation from the in-memory list, or
// nil.
func (s *Session) Active() *model.Conversation {
	if s.ActiveID == nil {
		return nil
	}
	for i := range s.Conversations {
		if s.Conversations[i].ID == *s.ActiveID {
			return &s.Conversations[i]
		}
	}
	return nil
}

// SetActive activates a conversation and clears the message buffer so
// it reloads lazily.
func (s *Session) SetActive(id uuid.UUID) {
	s.ActiveID = &id
	s.Messages = nil
}

// ClearActive drops the active conversation and message buffer.
func (s *Session) ClearActive() {
	s.ActiveID = nil
	s.Messages = nil
}

// Manager is the session registry, keyed by user id.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates an empty session registry.
func NewManager() *Manager {
	return &Manager{sessions: make(map[uuid.UUID]*Session)}
}

// Get returns the user's session, creating it if absent.
func (m *Manager) Get(userID uuid.UUID) *Session {
	m.mu.RLock()
	sess, ok := m.sessions[userID]
	m.mu.RUnlock()
	if ok {
		return sess
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok = m.sessions[userID]; ok {
		return sess
	}
	sess = &Session{UserID: userID}
	m.sessions[userID] = sess
	metrics.SessionsActive.Set(float64(len(m.sessions)))
	return sess
}

// Drop removes the user's session, e.g. on sign-out.
func (m *Manager) Drop(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	metrics.SessionsActive.Set(float64(len(m.sessions)))
}
