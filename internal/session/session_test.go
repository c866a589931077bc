package session

import (
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/codechat-ai/codechat/internal/model"
)

func TestManagerGetReturnsSameSession(t *testing.T) {
	m := NewManager()
	userID := uuid.New()

	first := m.Get(userID)
	second := m.Get(userID)
	if first != second {
		t.Error("expected the same session for the same user")
	}
	if first.UserID != userID {
		t.Errorf("session carries wrong user id: %v", first.UserID)
	}

	if other := m.Get(uuid.New()); other == first {
		t.Error("different users share a session")
	}
}

func TestManagerGetConcurrent(t *testing.T) {
	m := NewManager()
	userID := uuid.New()

	sessions := make([]*Session, 32)
	var wg sync.WaitGroup
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = m.Get(userID)
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(sessions); i++ {
		if sessions[i] != sessions[0] {
			t.Fatal("concurrent Get returned distinct sessions")
		}
	}
}

func TestManagerDrop(t *testing.T) {
	m := NewManager()
	userID := uuid.New()

	first := m.Get(userID)
	m.Drop(userID)

	if m.Get(userID) == first {
		t.Error("dropped session was returned again")
	}
}

func TestSetActiveClearsBuffer(t *testing.T) {
	s := &Session{UserID: uuid.New()}
	conv := model.Conversation{ID: uuid.New(), UserID: s.UserID, Title: "first"}
	s.Conversations = []model.Conversation{conv}
	s.Messages = []model.Message{{ID: uuid.New(), Content: "stale"}}

	s.SetActive(conv.ID)

	if s.ActiveID == nil || *s.ActiveID != conv.ID {
		t.Fatalf("active not set: %v", s.ActiveID)
	}
	if s.Messages != nil {
		t.Error("buffer not cleared on activation")
	}
	if got := s.Active(); got == nil || got.ID != conv.ID {
		t.Errorf("Active() = %v, want %v", got, conv.ID)
	}

	s.ClearActive()
	if s.ActiveID != nil || s.Active() != nil {
		t.Error("ClearActive left an active conversation")
	}
}
